// Package deadline implements the per-instance deadline-missed
// detector (§4.6 "Deadline-missed"): each alive instance is registered
// with a timer, and a fired timer reports how many periods were missed
// before re-arming for the next one.
package deadline

import (
	"time"

	"github.com/ddsgo/rhc/internal/schedule"
)

// Tracker maintains deadline registrations for every alive instance.
// A zero period disables tracking entirely (no deadline QoS set).
type Tracker struct {
	queue  *schedule.Queue[uint64]
	period time.Duration
}

// NewTracker returns a deadline tracker with the given period. Pass 0
// to disable deadline tracking.
func NewTracker(period time.Duration) *Tracker {
	return &Tracker{queue: schedule.New[uint64](), period: period}
}

// SetPeriod updates the deadline period. Existing registrations keep
// their currently scheduled expiry; only future Register calls use the
// new period.
func (t *Tracker) SetPeriod(period time.Duration) { t.period = period }

// Enabled reports whether deadline tracking is active.
func (t *Tracker) Enabled() bool { return t.period > 0 }

// Register (re)arms iid's deadline timer one period out from now. A
// no-op when tracking is disabled. Called whenever the instance
// accepts a sample while alive, and whenever it transitions to alive
// (§4.6: "Registration toggles in lock-step with isdisposed").
func (t *Tracker) Register(iid uint64, now time.Time) {
	if !t.Enabled() {
		return
	}

	t.queue.Register(iid, now.Add(t.period))
}

// Unregister disarms iid's deadline timer, called when the instance
// becomes disposed or is destroyed.
func (t *Tracker) Unregister(iid uint64) { t.queue.Unregister(iid) }

// Missed is one fired deadline registration.
type Missed struct {
	IID   uint64
	Count int // number of full periods missed, always >= 1
}

// PollMissed reports every instance whose deadline expired at or
// before now, re-registering each for its next period so a silent
// instance keeps missing on schedule (§4.6, S6).
func (t *Tracker) PollMissed(now time.Time) []Missed {
	if !t.Enabled() {
		return nil
	}

	due := t.queue.PopExpired(now)
	if len(due) == 0 {
		return nil
	}

	out := make([]Missed, 0, len(due))

	for _, e := range due {
		missed := int(now.Sub(e.Expiry)/t.period) + 1
		out = append(out, Missed{IID: e.Key, Count: missed})

		next := e.Expiry
		for !next.After(now) {
			next = next.Add(t.period)
		}

		t.queue.Register(e.Key, next)
	}

	return out
}

// NextExpiry returns the earliest outstanding deadline, used by
// [rhc.RHC.NextDeadline] for callers driving their own timer loop.
func (t *Tracker) NextExpiry() (time.Time, bool) { return t.queue.NextExpiry() }
