// Package lifespan implements per-sample expiry scheduling (§4.6
// "Lifespan"): a sample armed with a lifespan expiry is removed as if
// taken once its deadline passes, without the read-state/condition
// bookkeeping a normal take performs beyond the removal itself.
package lifespan

import (
	"time"

	"github.com/ddsgo/rhc/internal/sample"
	"github.com/ddsgo/rhc/internal/schedule"
)

// Key identifies one scheduled sample expiry. Sample pointers are
// stable for the sample's lifetime (the instance owns the list; the
// RHC never reallocates a live sample), so they're usable directly as
// a comparable map/heap key.
type Key struct {
	IID    uint64
	Sample *sample.Sample
}

// Tracker maintains lifespan registrations across every instance's
// samples.
type Tracker struct {
	queue *schedule.Queue[Key]
}

// NewTracker returns an empty lifespan tracker.
func NewTracker() *Tracker { return &Tracker{queue: schedule.New[Key]()} }

// Register arms s's expiry timer. A zero expiry means "no lifespan"
// and is a no-op.
func (t *Tracker) Register(iid uint64, s *sample.Sample, expiry time.Time) {
	if expiry.IsZero() {
		return
	}

	s.SetLifespanArmed(true)
	t.queue.Register(Key{IID: iid, Sample: s}, expiry)
}

// Unregister disarms s's expiry timer, if armed. Called when s is
// removed by an ordinary take or by keep-last overwrite, so the
// scheduler never fires on a sample that's already gone.
func (t *Tracker) Unregister(iid uint64, s *sample.Sample) {
	if !s.LifespanArmed() {
		return
	}

	t.queue.Unregister(Key{IID: iid, Sample: s})
	s.SetLifespanArmed(false)
}

// PollExpired returns every sample whose lifespan has elapsed at or
// before now, disarming each. The caller (rhc package) is responsible
// for unlinking the sample from its instance and running the
// non-empty→empty cleanup if applicable.
func (t *Tracker) PollExpired(now time.Time) []Key {
	due := t.queue.PopExpired(now)
	out := make([]Key, 0, len(due))

	for _, e := range due {
		e.Key.Sample.SetLifespanArmed(false)
		out = append(out, e.Key)
	}

	return out
}

// NextExpiry returns the earliest outstanding lifespan expiry.
func (t *Tracker) NextExpiry() (time.Time, bool) { return t.queue.NextExpiry() }
