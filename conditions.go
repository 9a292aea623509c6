package rhc

import (
	"github.com/ddsgo/rhc/internal/condition"
	"github.com/ddsgo/rhc/internal/core"
	"github.com/ddsgo/rhc/internal/instance"
	"github.com/ddsgo/rhc/internal/sample"
)

// Condition is a read-condition or query-condition attached to an
// RHC's reader, returned by [RHC.AddCondition] (§3.1, §4.5).
type Condition struct {
	inner *condition.Condition
}

// Trigger returns the condition's current trigger count. Safe to call
// without holding any lock (§5): a positive value means "a read/take
// with this condition would return at least one sample", though by the
// time the caller acts on it more mutations may have occurred.
func (c *Condition) Trigger() int64 {
	if c == nil || c.inner == nil {
		return 0
	}

	return c.inner.Trigger()
}

// AddCondition attaches a new condition (§3.3, §4.5 "Attach"). Pass a
// nil predicate for a plain read condition (capacity-unbounded); a
// non-nil predicate allocates one of the 64 shared query-condition
// bits and returns [ErrConditionCapacity] once they're exhausted.
func (r *RHC) AddCondition(sampleStates, viewStates, instanceStates StateMask, predicate Predicate) (*Condition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	var qcmask uint64

	if predicate != nil {
		bit, err := r.conditions.AllocateBit()
		if err != nil {
			return nil, wrapErr(ErrConditionCapacity)
		}

		qcmask = bit
	}

	c := condition.New(sampleStates, viewStates, instanceStates, predicate, qcmask)

	if predicate != nil {
		r.rescanForCondition(c)
	}

	var total int64

	r.instances.EachAll(func(inst *instance.Instance) bool {
		total += r.recomputeConditionTrigger(c, inst)

		return true
	})

	c.Set(total)
	r.conditions.Attach(c)

	return &Condition{inner: c}, nil
}

// rescanForCondition implements §4.5 Attach step 2: evaluate c's
// predicate against every instance's key projection and every
// sample's full form, setting or clearing c's bit accordingly (a
// detached-then-reused bit must be cleared on instances/samples that
// no longer match, not just set on ones that do).
func (r *RHC) rescanForCondition(c *condition.Condition) {
	r.instances.EachAll(func(inst *instance.Instance) bool {
		if c.Predicate(inst.KeySample) {
			inst.Conds |= c.QCMask
		} else {
			inst.Conds &^= c.QCMask
		}

		inst.Samples.Each(func(_, s *sample.Sample) bool {
			if c.Predicate(s.Data) {
				s.Conds |= c.QCMask
			} else {
				s.Conds &^= c.QCMask
			}

			return true
		})

		return true
	})
}

// RemoveCondition detaches c (§3.3, §4.5 "Detach"). Detaching frees
// the bit slot immediately; no rescan is performed. A condition that is
// not attached to this RHC yields [ErrPreconditionNotMet].
func (r *RHC) RemoveCondition(c *Condition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c == nil || c.inner == nil {
		return wrapErr(ErrPreconditionNotMet)
	}

	attached := false

	for _, x := range r.conditions.All() {
		if x == c.inner {
			attached = true

			break
		}
	}

	if !attached {
		return wrapErr(ErrPreconditionNotMet)
	}

	r.conditions.Detach(c.inner)

	return nil
}

// snapshotConditionCounts captures, for every attached condition, its
// current contribution from inst — the "pre" half of the §4.5
// incremental update. This implementation recomputes from scratch per
// mutated instance rather than applying the fully incremental
// mdelta/dec_conds/inc_conds bookkeeping §4.5 describes; §9
// ("Incremental vs. recompute") explicitly sanctions a
// correctness-first recompute-per-instance strategy as an alternative.
func (r *RHC) snapshotConditionCounts(inst *instance.Instance) map[*condition.Condition]int64 {
	conds := r.conditions.All()
	if len(conds) == 0 {
		return nil
	}

	pre := make(map[*condition.Condition]int64, len(conds))
	for _, c := range conds {
		pre[c] = r.recomputeConditionTrigger(c, inst)
	}

	return pre
}

// finishConditionUpdate computes the "post" half of the §4.5
// incremental update, applies the delta to every condition's trigger,
// and fires NotifyDataAvailable once if any condition's trigger
// transitioned from zero to positive.
func (r *RHC) finishConditionUpdate(pre map[*condition.Condition]int64, inst *instance.Instance) {
	conds := r.conditions.All()
	if len(conds) == 0 {
		return
	}

	becameAvailable := false

	for _, c := range conds {
		post := r.recomputeConditionTrigger(c, inst)
		delta := post - pre[c]

		if delta == 0 {
			continue
		}

		before := c.Trigger()
		after := c.Add(delta)

		if before <= 0 && after > 0 {
			becameAvailable = true
		}
	}

	if becameAvailable {
		r.notifier.NotifyDataAvailable()
	}
}

// recomputeConditionTrigger counts inst's current contribution to c's
// trigger: 0 or 1 for a plain read condition (§4.5 "the count of
// non-empty instances whose state masks are satisfied" — reduced via
// [instanceReadStates] so a condition scoped to NOT_READ stops
// counting an instance once every sample on it has been read), or the
// number of matching samples (plus a possible invalid sample) for a
// query condition.
func (r *RHC) recomputeConditionTrigger(c *condition.Condition, inst *instance.Instance) int64 {
	if core.Rejects(instanceLevelQminv(c.Qminv), inst.StateMask()) {
		return 0
	}

	if !c.IsQuery() {
		if inst.Empty() {
			return 0
		}

		hasRead, hasNotRead := instanceReadStates(inst)
		if (hasRead && !core.Rejects(c.Qminv, core.SampleStateRead)) ||
			(hasNotRead && !core.Rejects(c.Qminv, core.SampleStateNotRead)) {
			return 1
		}

		return 0
	}

	var n int64

	inst.Samples.Each(func(_, s *sample.Sample) bool {
		if !core.Rejects(c.Qminv, sampleStateTriple(inst, s)) && s.Conds&c.QCMask != 0 {
			n++
		}

		return true
	})

	if inst.InvExists && !core.Rejects(c.Qminv, invalidStateTriple(inst)) && inst.Conds&c.QCMask != 0 {
		n++
	}

	return n
}
