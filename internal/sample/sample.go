// Package sample implements the per-instance circular sample list
// (§3.1, §4.3 Step E, §9 "circular sample lists"): oldest→newest,
// appending and keep-last overwrite are both O(1).
package sample

import (
	"time"

	"github.com/ddsgo/rhc/internal/core"
)

// Sample is one stored data update. The instance owns the list of
// samples; a Sample never outlives its instance, so Next is a plain
// pointer rather than a reference-counted one (§9 "cyclic reference
// risk").
type Sample struct {
	Data core.SerializedSample
	Next *Sample // circular: last sample's Next points back to the oldest

	WRIID           uint64
	IsRead          bool
	DisposedGen     uint32
	NoWritersGen    uint32
	Conds           uint64 // bitmask of matching query conditions
	SourceTimestamp time.Time

	lifespanArmed bool
}

// LifespanArmed reports whether this sample is currently registered
// with a lifespan scheduler.
func (s *Sample) LifespanArmed() bool { return s.lifespanArmed }

// SetLifespanArmed records lifespan-scheduler registration state.
func (s *Sample) SetLifespanArmed(v bool) { s.lifespanArmed = v }

// List is the circular, oldest→newest list threaded through an
// instance's samples. The zero value is an empty list.
type List struct {
	latest *Sample // newest sample; latest.Next is the oldest
	count  int
}

// Len returns the number of samples currently in the list.
func (l *List) Len() int { return l.count }

// Latest returns the most recently appended sample, or nil if empty.
func (l *List) Latest() *Sample { return l.latest }

// Oldest returns the first sample in arrival order, or nil if empty.
func (l *List) Oldest() *Sample {
	if l.latest == nil {
		return nil
	}

	return l.latest.Next
}

// Append splices s in as the newest sample, O(1).
func (l *List) Append(s *Sample) {
	if l.latest == nil {
		s.Next = s
	} else {
		s.Next = l.latest.Next
		l.latest.Next = s
	}

	l.latest = s
	l.count++
}

// OverwriteOldest replaces the oldest sample in place with s, keeping
// list order and length unchanged — the keep-last depth-D overwrite
// path (§4.3 Step E). Returns the replaced sample so its conds can be
// unwound from query-condition accounting.
func (l *List) OverwriteOldest(s *Sample) *Sample {
	if l.latest == nil {
		l.Append(s)

		return nil
	}

	oldest := l.latest.Next
	s.Next = oldest.Next
	l.latest.Next = s
	l.latest = s

	return oldest
}

// Remove unlinks s from the list. prev must be s's predecessor
// (Latest() when s is the oldest, otherwise found by walking); callers
// that already walk the list for other reasons should track prev
// themselves to keep removal O(1).
func (l *List) Remove(prev, s *Sample) {
	if l.count == 1 {
		l.latest = nil
		l.count = 0

		return
	}

	prev.Next = s.Next

	if s == l.latest {
		l.latest = prev
	}

	l.count--
}

// RemoveMatching removes every sample for which match returns true,
// calling onRemove for each just before unlinking it, in oldest→newest
// order. Unlike repeated calls to [List.Remove] driven by a concurrent
// [List.Each] walk, this is safe when an arbitrary subset of samples —
// including adjacent runs or the entire list — is removed in one pass,
// since it rebuilds the survivor chain directly rather than relying on
// a possibly-stale prev pointer.
func (l *List) RemoveMatching(match func(*Sample) bool, onRemove func(*Sample)) {
	if l.latest == nil {
		return
	}

	origCount := l.count
	head := l.latest.Next

	var firstKept, lastKept *Sample

	s := head

	for i := 0; i < origCount; i++ {
		next := s.Next

		if match(s) {
			onRemove(s)
			l.count--
		} else {
			if lastKept != nil {
				lastKept.Next = s
			}

			lastKept = s

			if firstKept == nil {
				firstKept = s
			}
		}

		s = next
	}

	if firstKept == nil {
		l.latest = nil

		return
	}

	lastKept.Next = firstKept
	l.latest = lastKept
}

// Each calls fn for every sample oldest→newest. fn returning false
// stops iteration early.
func (l *List) Each(fn func(prev, s *Sample) bool) {
	if l.latest == nil {
		return
	}

	prev := l.latest
	s := l.latest.Next

	for {
		cont := fn(prev, s)
		if !cont || s == l.latest {
			return
		}

		prev = s
		s = s.Next
	}
}
