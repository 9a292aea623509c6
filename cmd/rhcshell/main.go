// rhcshell is an interactive REPL for poking at an in-process
// [rhc.RHC]: store samples, dispose/unregister instances, and read or
// take against arbitrary state/view/instance masks, without standing
// up a DDS participant.
//
// Usage:
//
//	rhcshell [flags]
//
// Commands (in REPL):
//
//	store <key> <payload> [writer]     Store a data sample
//	dispose <key> [writer]             Dispose an instance
//	unregister <key> [writer]          Unregister a writer from an instance
//	unregister-writer <writer>         Unregister a writer from every instance
//	relinquish <writer>                Drop a writer's ownership cache everywhere
//	read [n]                           Read up to n samples (0 = all)
//	take [n]                           Take up to n samples (0 = all)
//	status                             Show lost/rejected/missed-deadline counters
//	poll-deadline                      Check for missed deadlines against now
//	poll-lifespan                      Expire any samples past their lifespan
//	help                               Show this help
//	exit / quit / q                    Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/ddsgo/rhc"
	"github.com/ddsgo/rhc/internal/fixture"
)

func main() {
	var (
		keepAll   bool
		depth     int
		exclusive bool
		qosFile   string
	)

	flag.BoolVar(&keepAll, "keep-all", false, "start with KEEP_ALL history instead of KEEP_LAST")
	flag.IntVar(&depth, "keep-last-depth", 1, "KEEP_LAST depth")
	flag.BoolVar(&exclusive, "exclusive", false, "start with EXCLUSIVE ownership")
	flag.StringVar(&qosFile, "qos", "", "load initial QoS from a HuJSON file")

	flag.Parse()

	qos := rhc.DefaultQoS()

	if qosFile != "" {
		data, err := os.ReadFile(qosFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rhcshell: %v\n", err)
			os.Exit(1)
		}

		qos, err = rhc.ParseQoSHuJSON(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rhcshell: %v\n", err)
			os.Exit(1)
		}
	} else {
		if keepAll {
			qos.History = rhc.History{Kind: rhc.KeepAll}
		} else {
			qos.History = rhc.History{Kind: rhc.KeepLast, Depth: depth}
		}

		if exclusive {
			qos.Ownership = rhc.Exclusive
		}
	}

	repl := &REPL{cache: rhc.New(qos, rhc.NopNotifier{}), nextWriter: 1}
	defer repl.cache.Free()

	if err := repl.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "rhcshell: %v\n", err)
		os.Exit(1)
	}
}

// REPL is the interactive command loop.
type REPL struct {
	cache      *rhc.RHC
	liner      *liner.State
	nextWriter uint64
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".rhcshell_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("rhcshell - DDS reader history cache REPL")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("rhc> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "store":
			r.cmdStore(args)

		case "dispose":
			r.cmdDispose(args)

		case "unregister":
			r.cmdUnregister(args)

		case "unregister-writer":
			r.cmdUnregisterWriter(args)

		case "relinquish":
			r.cmdRelinquish(args)

		case "read":
			r.cmdRead(args)

		case "take":
			r.cmdTake(args)

		case "status":
			r.cmdStatus()

		case "poll-deadline":
			r.cache.PollDeadlineMissed(time.Now())
			fmt.Println("ok")

		case "poll-lifespan":
			r.cache.PollLifespanExpired(time.Now())
			fmt.Println("ok")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"store", "dispose", "unregister", "unregister-writer", "relinquish",
		"read", "take", "status", "poll-deadline", "poll-lifespan",
		"help", "exit", "quit", "q",
	}

	var out []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}

func (r *REPL) printHelp() {
	fmt.Print(`Commands:
  store <key> <payload> [writer]     Store a data sample
  dispose <key> [writer]             Dispose an instance
  unregister <key> [writer]          Unregister a writer from an instance
  unregister-writer <writer>         Unregister a writer from every instance
  relinquish <writer>                Drop a writer's ownership cache everywhere
  read [n]                           Read up to n samples (0 = all)
  take [n]                           Take up to n samples (0 = all)
  status                             Show lost/rejected/missed-deadline counters
  poll-deadline                      Check for missed deadlines against now
  poll-lifespan                      Expire any samples past their lifespan
  help                               Show this help
  exit / quit / q                    Exit
`)
}

func (r *REPL) writerIID(args []string, idx int) uint64 {
	if idx >= len(args) {
		return 1
	}

	n, err := strconv.ParseUint(args[idx], 10, 64)
	if err != nil {
		return 1
	}

	return n
}

func (r *REPL) cmdStore(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: store <key> <payload> [writer]")

		return
	}

	key, payload := args[0], args[1]
	writer := rhc.WriterInfo{IID: r.writerIID(args, 2)}
	ts := time.Now()

	stored, err := r.cache.Store(writer, fixture.NewDataSample(key, payload, ts), fixture.NewKeyedInstance(key, ts))
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Printf("stored=%v\n", stored)
}

func (r *REPL) cmdDispose(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: dispose <key> [writer]")

		return
	}

	key := args[0]
	writer := rhc.WriterInfo{IID: r.writerIID(args, 1)}
	ts := time.Now()

	stored, err := r.cache.Store(writer, fixture.NewKeySample(key, ts, rhc.StatusInfoDispose), fixture.NewKeyedInstance(key, ts))
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Printf("disposed=%v\n", stored)
}

func (r *REPL) cmdUnregister(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: unregister <key> [writer]")

		return
	}

	key := args[0]
	writer := rhc.WriterInfo{IID: r.writerIID(args, 1)}
	ts := time.Now()

	_, err := r.cache.Store(writer, fixture.NewKeySample(key, ts, rhc.StatusInfoUnregister), fixture.NewKeyedInstance(key, ts))
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdUnregisterWriter(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: unregister-writer <writer>")

		return
	}

	writer := r.writerIID(args, 0)

	if err := r.cache.UnregisterWriter(writer); err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdRelinquish(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: relinquish <writer>")

		return
	}

	writer := r.writerIID(args, 0)

	if err := r.cache.RelinquishOwnership(writer); err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdRead(args []string) { r.readOrTake(args, false) }
func (r *REPL) cmdTake(args []string) { r.readOrTake(args, true) }

func (r *REPL) readOrTake(args []string, take bool) {
	maxCount := 0

	if len(args) >= 1 {
		n, err := strconv.Atoi(args[0])
		if err == nil {
			maxCount = n
		}
	}

	var (
		infos []rhc.SampleInfo
		err   error
	)

	if take {
		infos, _, err = r.cache.Take(maxCount, rhc.SampleStateAny, nil)
	} else {
		infos, _, err = r.cache.Read(maxCount, rhc.SampleStateAny, nil)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	if len(infos) == 0 {
		fmt.Println("(no samples)")

		return
	}

	for _, info := range infos {
		fmt.Printf("handle=%d valid=%v sample_rank=%d gen_rank=%d writer=%d ts=%s\n",
			info.InstanceHandle, info.ValidData, info.SampleRank, info.GenerationRank,
			info.PublicationHandle, info.SourceTimestamp.Format(time.RFC3339))
	}
}

func (r *REPL) cmdStatus() {
	s := r.cache.Status()
	fmt.Printf("sample_lost=%d sample_rejected=%d requested_deadline_missed=%d\n",
		s.SampleLostTotal, s.SampleRejectedTotal, s.RequestedDeadlineMissedTotal)
}
