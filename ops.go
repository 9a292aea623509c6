package rhc

import (
	"time"

	"github.com/ddsgo/rhc/internal/instance"
	"github.com/ddsgo/rhc/internal/sample"
)

// UnregisterWriter processes a discovery notification that writer_iid
// is gone for good (§6.2 "unregister_writer"), as distinct from a
// per-sample UNREGISTER status bit processed inline by Store (§4.3
// Step G): this removes the writer's registration from every instance
// it holds one on, synthesizing NOT_ALIVE_NO_WRITERS invalid samples
// and destroying now-empty unregistered instances exactly as Step G
// would.
func (r *RHC) UnregisterWriter(writerIID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	r.instances.EachAll(func(inst *instance.Instance) bool {
		if !inst.HasWriter(writerIID) {
			return true
		}

		pre := r.snapshotConditionCounts(inst)
		iid := inst.IID

		droppedToZero := inst.UnregisterWriter(writerIID)
		if droppedToZero {
			switch {
			case !inst.Empty():
				if inst.AutoDispose && !inst.IsDisposed {
					inst.IsDisposed = true
					inst.DisposedGen++
				}

				if !r.hasUnreadValid(inst) {
					inst.InvExists = true
					inst.InvIsRead = false
					inst.InvWRIID = writerIID
				}
			case !inst.IsDisposed:
				r.deadlines.Unregister(iid)
				r.instances.Remove(inst)

				return true
			}
		}

		r.syncLinkage(inst)
		r.updateDeadlineRegistration(inst, iid)
		r.finishConditionUpdate(pre, inst)

		return true
	})

	return nil
}

// RelinquishOwnership drops writer_iid's fast-path ownership cache on
// every instance it currently owns, without unregistering it (§6.2
// "relinquish_ownership", SPEC_FULL §12.5): the writer stays
// registered and can still be preempted/re-elected by the normal
// acceptance filter.
func (r *RHC) RelinquishOwnership(writerIID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	r.instances.EachAll(func(inst *instance.Instance) bool {
		inst.RelinquishOwnership(writerIID)

		return true
	})

	return nil
}

// PollDeadlineMissed checks every alive instance's deadline
// registration against now, raising REQUESTED_DEADLINE_MISSED for each
// that fired and re-arming it for the next period (§4.6). Production
// callers drive this from a ticker against [RHC.NextDeadline]; tests
// call it directly with chosen instants.
func (r *RHC) PollDeadlineMissed(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for _, m := range r.deadlines.PollMissed(now) {
		r.counters.RequestedDeadlineMissedTotal += uint64(m.Count)
		r.notifier.NotifyStatus(StatusRequestedDeadlineMissed, StatusEvent{
			InstanceHandle:      InstanceHandle(m.IID),
			DeadlineMissedCount: m.Count,
		})
	}
}

// NextDeadline returns the earliest outstanding deadline expiry.
func (r *RHC) NextDeadline() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deadlines.NextExpiry()
}

// PollLifespanExpired removes every sample whose lifespan has elapsed
// at or before now, as if taken but without read-state or
// beyond-the-removal-delta condition bookkeeping (§4.6 "Lifespan").
func (r *RHC) PollLifespanExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for _, k := range r.lifespans.PollExpired(now) {
		inst, ok := r.instances.Lookup(k.IID)
		if !ok {
			continue
		}

		pre := r.snapshotConditionCounts(inst)

		inst.Samples.RemoveMatching(
			func(s *sample.Sample) bool { return s == k.Sample },
			func(s *sample.Sample) { s.Data.Unref() },
		)

		r.syncLinkage(inst)

		if inst.Destroyable() {
			r.deadlines.Unregister(inst.IID)
			r.instances.Remove(inst)
		}

		r.finishConditionUpdate(pre, inst)
	}
}

// NextLifespanExpiry returns the earliest outstanding sample lifespan
// expiry.
func (r *RHC) NextLifespanExpiry() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lifespans.NextExpiry()
}
