// Package condition implements the read/query condition bitmask pool
// and the atomic trigger counters waitsets watch (§3.1 "Condition",
// §4.5). The actual incremental-vs-recompute accounting walk lives in
// the rhc package, which alone has access to the instance store and
// sample lists; this package owns only the condition's own state.
package condition

import (
	"errors"
	"sync/atomic"

	"github.com/ddsgo/rhc/internal/core"
)

// ErrCapacity is returned by [Tracker.AllocateBit] when all 64 query
// condition slots are in use (§4.5, §7 "Capacity").
var ErrCapacity = errors.New("condition: query-condition bit-slot pool exhausted")

// Condition is a read-condition or query-condition attached to a
// reader. Plain read conditions have QCMask == 0 and Predicate == nil.
type Condition struct {
	SampleStates   core.StateMask
	ViewStates     core.StateMask
	InstanceStates core.StateMask
	Qminv          core.StateMask

	Predicate core.Predicate

	// QCMask is this condition's single allocated bit in the shared
	// 64-bit qcmask space, or 0 for a plain read condition.
	QCMask uint64

	trigger atomic.Int64
}

// New constructs a condition from the caller's state masks and an
// optional predicate. Pass qcmask == 0 for a plain read condition.
func New(sampleStates, viewStates, instanceStates core.StateMask, predicate core.Predicate, qcmask uint64) *Condition {
	accept := core.Normalize(sampleStates | viewStates | instanceStates)

	return &Condition{
		SampleStates:   sampleStates,
		ViewStates:     viewStates,
		InstanceStates: instanceStates,
		Qminv:          core.Qminv(accept),
		Predicate:      predicate,
		QCMask:         qcmask,
	}
}

// IsQuery reports whether this is a query condition (has a predicate
// and an allocated qcmask bit) rather than a plain read condition.
func (c *Condition) IsQuery() bool { return c.QCMask != 0 }

// Trigger returns the current trigger count. Safe to call without the
// RHC's mutex held (§5: "readers-not-holding-the-mutex may observe
// trigger > 0").
func (c *Condition) Trigger() int64 { return c.trigger.Load() }

// Add atomically adjusts the trigger count by delta and returns the
// new value.
func (c *Condition) Add(delta int64) int64 {
	if delta == 0 {
		return c.trigger.Load()
	}

	return c.trigger.Add(delta)
}

// Set atomically pins the trigger count to n, used when a condition is
// first attached and its initial count is computed from scratch.
func (c *Condition) Set(n int64) { c.trigger.Store(n) }
