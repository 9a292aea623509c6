// rhcbench drives an in-process [rhc.RHC] with synthetic writer load
// and reports store/read/take throughput, mirroring the shape of a
// DDS reader under sustained publication.
//
// Usage:
//
//	rhcbench [flags]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/ddsgo/rhc"
	"github.com/ddsgo/rhc/internal/fixture"
)

// Config holds all benchmark configuration.
type Config struct {
	Instances      int
	SamplesPerInst int
	KeepLastDepth  int
	KeepAll        bool
	Exclusive      bool
	ReportPath     string
	QoSFile        string
}

func main() {
	cfg := Config{}

	flag.IntVarP(&cfg.Instances, "instances", "i", 1000, "number of distinct instances to publish")
	flag.IntVarP(&cfg.SamplesPerInst, "samples", "s", 50, "samples stored per instance")
	flag.IntVar(&cfg.KeepLastDepth, "keep-last-depth", 4, "KEEP_LAST depth (ignored with --keep-all)")
	flag.BoolVar(&cfg.KeepAll, "keep-all", false, "use KEEP_ALL history instead of KEEP_LAST")
	flag.BoolVar(&cfg.Exclusive, "exclusive", false, "use EXCLUSIVE ownership instead of SHARED")
	flag.StringVarP(&cfg.ReportPath, "out", "o", "", "write a JSON report to this path (atomic replace)")
	flag.StringVar(&cfg.QoSFile, "qos", "", "load QoS from a HuJSON file instead of --keep-all/--keep-last-depth")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: rhcbench [flags]\n\n")
		fmt.Fprint(os.Stderr, "Benchmarks RHC store/read/take throughput under synthetic writer load.\n\n")
		fmt.Fprint(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if err := run(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "rhcbench: %v\n", err)
		os.Exit(1)
	}
}

// Report is the JSON document written by --out.
type Report struct {
	Instances      int           `json:"instances"`
	SamplesPerInst int           `json:"samples_per_instance"`
	StoreElapsed   time.Duration `json:"store_elapsed_ns"`
	StoresPerSec   float64       `json:"stores_per_sec"`
	ReadElapsed    time.Duration `json:"read_elapsed_ns"`
	TakeElapsed    time.Duration `json:"take_elapsed_ns"`
	SamplesTaken   int           `json:"samples_taken"`
}

func run(cfg *Config) error {
	qos := rhc.DefaultQoS()

	switch {
	case cfg.QoSFile != "":
		data, err := os.ReadFile(cfg.QoSFile)
		if err != nil {
			return fmt.Errorf("reading qos file: %w", err)
		}

		qos, err = rhc.ParseQoSHuJSON(data)
		if err != nil {
			return fmt.Errorf("parsing qos file: %w", err)
		}
	case cfg.KeepAll:
		qos.History = rhc.History{Kind: rhc.KeepAll}
	default:
		qos.History = rhc.History{Kind: rhc.KeepLast, Depth: cfg.KeepLastDepth}
	}

	if cfg.Exclusive {
		qos.Ownership = rhc.Exclusive
	}

	cache := rhc.New(qos, rhc.NopNotifier{})
	defer cache.Free()

	writer := rhc.WriterInfo{IID: 1, OwnershipStrength: 0}
	base := time.Now()

	storeStart := time.Now()

	for i := 0; i < cfg.Instances; i++ {
		key := fmt.Sprintf("instance-%d", i)

		for j := 0; j < cfg.SamplesPerInst; j++ {
			ts := base.Add(time.Duration(j) * time.Millisecond)
			payload := fmt.Sprintf("payload-%d-%d", i, j)

			_, err := cache.Store(writer, fixture.NewDataSample(key, payload, ts), fixture.NewKeyedInstance(key, ts))
			if err != nil {
				return fmt.Errorf("store %s/%d: %w", key, j, err)
			}
		}
	}

	storeElapsed := time.Since(storeStart)

	total := cfg.Instances * cfg.SamplesPerInst
	if qos.History.Kind == rhc.KeepLast {
		total = cfg.Instances * min(cfg.SamplesPerInst, max(cfg.KeepLastDepth, 1))
	}

	readStart := time.Now()
	infos, _, err := cache.Read(0, rhc.SampleStateAny, nil)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	readElapsed := time.Since(readStart)

	takeStart := time.Now()
	taken, _, err := cache.Take(0, rhc.SampleStateAny, nil)
	if err != nil {
		return fmt.Errorf("take: %w", err)
	}

	takeElapsed := time.Since(takeStart)

	report := Report{
		Instances:      cfg.Instances,
		SamplesPerInst: cfg.SamplesPerInst,
		StoreElapsed:   storeElapsed,
		StoresPerSec:   float64(cfg.Instances*cfg.SamplesPerInst) / storeElapsed.Seconds(),
		ReadElapsed:    readElapsed,
		TakeElapsed:    takeElapsed,
		SamplesTaken:   len(taken),
	}

	fmt.Printf("stored %d samples across %d instances in %s (%.0f stores/s)\n",
		cfg.Instances*cfg.SamplesPerInst, cfg.Instances, storeElapsed, report.StoresPerSec)
	fmt.Printf("read returned %d live samples in %s\n", len(infos), readElapsed)
	fmt.Printf("take removed %d samples in %s (expected roughly %d after history retention)\n",
		len(taken), takeElapsed, total)

	if cfg.ReportPath == "" {
		return nil
	}

	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	// Round-trip through hujson.Standardize to confirm the written
	// report stays parseable by the same HuJSON reader the --qos flag
	// uses, in case a user hand-edits it afterward.
	if _, err := hujson.Standardize(buf); err != nil {
		return fmt.Errorf("report is not valid JSON: %w", err)
	}

	if err := atomic.WriteFile(cfg.ReportPath, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	fmt.Printf("wrote report to %s\n", cfg.ReportPath)

	return nil
}
