package rhc

import (
	"sync"
	"time"

	"github.com/ddsgo/rhc/internal/condition"
	"github.com/ddsgo/rhc/internal/core"
	"github.com/ddsgo/rhc/internal/deadline"
	"github.com/ddsgo/rhc/internal/instance"
	"github.com/ddsgo/rhc/internal/lifespan"
	"github.com/ddsgo/rhc/internal/sample"
)

// RHC is a reader history cache. All public methods take the same
// mutex for their full duration (§5); an RHC is safe for concurrent
// use by multiple goroutines.
type RHC struct {
	mu sync.Mutex

	qos           QoS
	contentFilter Predicate
	now           func() time.Time

	instances  *instance.Store
	conditions *condition.Tracker
	deadlines  *deadline.Tracker
	lifespans  *lifespan.Tracker

	notifier ReaderNotifier
	counters StatusCounters

	closed bool
}

// Option configures an [RHC] at construction.
type Option func(*RHC)

// WithClock overrides the time source used to arm deadline
// registrations. Lifespan expiries come from [WriterInfo] and source
// timestamps from the sample, so neither uses this clock. Tests pass
// [internal/testutil.Clock.Now] (or an equivalent) for deterministic
// behavior; production use leaves this unset and gets time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *RHC) { r.now = now }
}

// WithContentFilter installs the reader's topic content-filter
// predicate (§4.3 Step C). A nil filter (the default) accepts every
// sample.
func WithContentFilter(p Predicate) Option {
	return func(r *RHC) { r.contentFilter = p }
}

// New constructs an RHC with the given initial QoS and notifier. A nil
// notifier discards every notification.
func New(qos QoS, notifier ReaderNotifier, opts ...Option) *RHC {
	if notifier == nil {
		notifier = NopNotifier{}
	}

	r := &RHC{
		qos:        qos,
		instances:  instance.New(),
		conditions: condition.NewTracker(),
		deadlines:  deadline.NewTracker(qos.Deadline.Period),
		lifespans:  lifespan.NewTracker(),
		notifier:   notifier,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// SetQoS updates the mutable QoS in effect (§6.2 "set_qos"):
// resource limits, history, time-based filter, and deadline period.
// Ownership and source-timestamp ordering are fixed at construction.
func (r *RHC) SetQoS(qos QoS) {
	r.mu.Lock()
	defer r.mu.Unlock()

	qos.Ownership = r.qos.Ownership
	qos.UseSourceTimestampOrdering = r.qos.UseSourceTimestampOrdering
	r.qos = qos
	r.deadlines.SetPeriod(qos.Deadline.Period)
}

// Free destroys the RHC: subsequent Store, Read, Take, ReadInstance,
// TakeInstance, AddCondition, UnregisterWriter and RelinquishOwnership
// calls return [ErrClosed], and the Poll methods do nothing.
// Matches §6.2 "free()"; there are no background goroutines to join in
// this implementation (lifespan/deadline firing is driven by the
// caller via [RHC.PollLifespanExpired] / [RHC.PollDeadlineMissed], not
// by an internal timer goroutine), so Free never blocks.
func (r *RHC) Free() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.instances.Each(func(inst *instance.Instance) bool {
		inst.Samples.Each(func(_, s *sample.Sample) bool {
			s.Data.Unref()

			return true
		})

		return true
	})

	r.closed = true
}

// classify implements §4.3 Step A.
func classify(data SerializedSample) (hasData bool, statusInfo StatusInfo) {
	if data == nil {
		return false, 0
	}

	return data.Kind() == SampleKindData, data.StatusInfoBits()
}

// Store implements §4.3 store(writer_info, sample, tkmap_instance).
// The returned bool is false only when a reliable transport must
// retry: a rejected (but registered) sample, or a sample that
// overflowed a keep-all resource limit.
func (r *RHC) Store(w WriterInfo, data SerializedSample, key KeyedInstance) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}

	hasData, statusInfo := classify(data)
	dispose := statusInfo.Has(StatusInfoDispose)
	unregister := statusInfo.Has(StatusInfoUnregister)

	// Step A.
	if !hasData && !dispose && !unregister {
		return true, nil
	}

	iid := key.IID()

	inst, existed := r.instances.Lookup(iid)
	if !existed {
		// Step B.
		if !hasData && !dispose {
			return true, nil
		}

		inst = r.instances.Create(iid)
		inst.KeySample = key.KeySample()
		inst.IsNew = true
		r.initInstanceConds(inst)
	}

	pre := r.snapshotConditionCounts(inst)

	// Step C.
	if r.rejects(inst, w, data, hasData) {
		inst.RegisterWriter(w.IID, w.GUID, w.OwnershipStrength, w.AutoDisposeUnregisteredInstances)
		r.syncLinkage(inst)
		r.counters.SampleLostTotal++
		r.notifier.NotifyStatus(StatusSampleLost, StatusEvent{InstanceHandle: InstanceHandle(iid), WriterIID: w.IID})
		r.finishConditionUpdate(pre, inst)

		return false, nil
	}

	ok, destroyed := r.acceptAndStore(inst, w, data, hasData, dispose, unregister, iid)

	if !destroyed {
		r.syncLinkage(inst)
		r.updateDeadlineRegistration(inst, iid)
		r.finishConditionUpdate(pre, inst)
	}

	return ok, nil
}

// updateDeadlineRegistration implements §4.3 Step H.
func (r *RHC) updateDeadlineRegistration(inst *instance.Instance, iid uint64) {
	if inst.IsAlive() {
		r.deadlines.Register(iid, r.now())
		inst.DeadlineReg = true
	} else if inst.DeadlineReg {
		r.deadlines.Unregister(iid)
		inst.DeadlineReg = false
	}
}

// syncLinkage keeps the non-empty instance list consistent with
// invariant 1 after any mutation.
func (r *RHC) syncLinkage(inst *instance.Instance) {
	if inst.Empty() {
		r.instances.MarkEmpty(inst)
	} else {
		r.instances.MarkNonEmpty(inst)
	}
}

// rejects implements the §4.3 Step C acceptance filter.
func (r *RHC) rejects(inst *instance.Instance, w WriterInfo, data SerializedSample, hasData bool) bool {
	var ts time.Time

	tsValid := false
	if data != nil {
		ts, tsValid = data.Timestamp()
	}

	if r.qos.UseSourceTimestampOrdering && inst.TStampValid && tsValid {
		switch {
		case ts.Before(inst.TStamp):
			return true
		case ts.Equal(inst.TStamp):
			sameWriter := inst.WRIIDIsLive && inst.WRIID == w.IID
			if !sameWriter && !w.GUID.Less(inst.WRGUID) {
				return true
			}
		}
	}

	if sep := r.qos.TimeBasedFilter.MinimumSeparation; sep > 0 && tsValid && inst.TStampValid {
		if ts.Sub(inst.TStamp) < sep {
			return true
		}
	}

	if r.qos.Ownership == Exclusive && inst.WRIIDIsLive && inst.WRIID != w.IID {
		switch {
		case w.OwnershipStrength < inst.Strength:
			return true
		case w.OwnershipStrength == inst.Strength && !w.GUID.Less(inst.WRGUID):
			return true
		}
	}

	if hasData && r.contentFilter != nil && !r.contentFilter(data) {
		return true
	}

	return false
}

// acceptAndStore implements §4.3 Steps D–G. It returns the store's
// success/failure (for reliable-retry signalling) and whether the
// instance was destroyed in Step G.
func (r *RHC) acceptAndStore(inst *instance.Instance, w WriterInfo, data SerializedSample, hasData, dispose, unregister bool, iid uint64) (ok bool, destroyed bool) {
	// Step D.
	wasAlive := inst.IsAlive()
	wasDisposed := inst.IsDisposed

	inst.RegisterWriter(w.IID, w.GUID, w.OwnershipStrength, w.AutoDisposeUnregisteredInstances)
	inst.RefreshOwnerCache(w.IID, w.GUID, w.OwnershipStrength)

	if data != nil {
		if ts, valid := data.Timestamp(); valid {
			inst.TStamp = ts
			inst.TStampValid = true
		}
	}

	if hasData && !wasAlive {
		inst.IsNew = true
	}

	if hasData && wasDisposed {
		inst.DisposedGen++

		if !dispose {
			inst.IsDisposed = false
		}
	}

	if dispose {
		inst.IsDisposed = true
	}

	ok = true

	// Step E.
	if hasData {
		ok = r.insertSample(inst, w, data, iid)
		if !ok {
			return ok, false
		}
	}

	// Step F.
	if dispose && !wasDisposed {
		r.synthesizeInvalid(inst, w.IID)
	}

	// Step G.
	if unregister {
		destroyed = r.processUnregister(inst, w, iid)
	}

	return ok, destroyed
}

// insertSample implements §4.3 Step E.
func (r *RHC) insertSample(inst *instance.Instance, w WriterInfo, data SerializedSample, iid uint64) bool {
	s := &sample.Sample{
		Data:        data,
		WRIID:       w.IID,
		DisposedGen: inst.DisposedGen,
		NoWritersGen: inst.NoWritersGen,
	}

	if ts, valid := data.Timestamp(); valid {
		s.SourceTimestamp = ts
	}

	s.Conds = r.computeSampleConds(data)

	switch {
	case r.qos.History.Kind == KeepLast && inst.Samples.Len() >= max(r.qos.History.Depth, 1):
		replaced := inst.Samples.OverwriteOldest(s)
		if replaced != nil {
			r.lifespans.Unregister(iid, replaced)
			replaced.Data.Unref()
		}
	case r.qos.History.Kind == KeepAll && r.exceedsResourceLimits(inst):
		r.counters.SampleRejectedTotal++
		r.notifier.NotifyStatus(StatusSampleRejected, StatusEvent{
			InstanceHandle: InstanceHandle(iid),
			WriterIID:      w.IID,
			RejectedReason: r.resourceLimitReason(inst),
		})

		return false
	default:
		inst.Samples.Append(s)
	}

	data.Ref()

	inst.InvExists = false
	inst.InvIsRead = false

	if !w.LifespanExpiry.IsZero() {
		r.lifespans.Register(iid, s, w.LifespanExpiry)
	}

	return true
}

// exceedsResourceLimits checks the keep-all resource QoS (§4.3 Step E,
// §7 "Resource" errors). max_instances is checked against the store's
// total tracked-instance count, which already includes inst since it
// was looked up or created before this call.
func (r *RHC) exceedsResourceLimits(inst *instance.Instance) bool {
	lim := r.qos.ResourceLimits

	if !unlimited(lim.MaxSamplesPerInstance) && inst.Samples.Len() >= lim.MaxSamplesPerInstance {
		return true
	}

	if !unlimited(lim.MaxSamples) && r.totalSamples() >= lim.MaxSamples {
		return true
	}

	if !unlimited(lim.MaxInstances) && r.instances.Len() > lim.MaxInstances {
		return true
	}

	return false
}

func (r *RHC) resourceLimitReason(inst *instance.Instance) SampleRejectedReason {
	lim := r.qos.ResourceLimits

	switch {
	case !unlimited(lim.MaxSamplesPerInstance) && inst.Samples.Len() >= lim.MaxSamplesPerInstance:
		return RejectedByMaxSamplesPerInstance
	case !unlimited(lim.MaxInstances) && r.instances.Len() > lim.MaxInstances:
		return RejectedByMaxInstances
	default:
		return RejectedByMaxSamples
	}
}

func (r *RHC) totalSamples() int {
	total := 0
	r.instances.Each(func(inst *instance.Instance) bool {
		total += inst.Samples.Len()

		return true
	})

	return total
}

// synthesizeInvalid implements §4.3 Step F.
func (r *RHC) synthesizeInvalid(inst *instance.Instance, wrIID uint64) {
	if r.hasUnreadValid(inst) {
		return
	}

	inst.InvExists = true
	inst.InvIsRead = false
	inst.InvWRIID = wrIID
}

func (r *RHC) hasUnreadValid(inst *instance.Instance) bool {
	unread := false

	inst.Samples.Each(func(_, s *sample.Sample) bool {
		if !s.IsRead {
			unread = true

			return false
		}

		return true
	})

	return unread
}

// processUnregister implements §4.3 Step G.
func (r *RHC) processUnregister(inst *instance.Instance, w WriterInfo, iid uint64) (destroyed bool) {
	droppedToZero := inst.UnregisterWriter(w.IID)
	if !droppedToZero {
		return false
	}

	if !inst.Empty() {
		if inst.AutoDispose {
			wasDisposed := inst.IsDisposed
			inst.IsDisposed = true

			if !wasDisposed {
				inst.DisposedGen++
			}
		}

		if !r.hasUnreadValid(inst) {
			inst.InvExists = true
			inst.InvIsRead = false
			inst.InvWRIID = w.IID
		}

		return false
	}

	if !inst.IsDisposed {
		r.deadlines.Unregister(iid)
		r.instances.Remove(inst)

		return true
	}

	return false
}

// computeSampleConds evaluates every attached query condition's
// predicate against data, returning the resulting qcmask bitset
// (§4.3 Step E "compute conds").
func (r *RHC) computeSampleConds(data core.SerializedSample) uint64 {
	var mask uint64

	for _, c := range r.conditions.All() {
		if c.IsQuery() && c.Predicate(data) {
			mask |= c.QCMask
		}
	}

	return mask
}

// initInstanceConds evaluates every attached query condition's
// predicate against a freshly created instance's key projection.
func (r *RHC) initInstanceConds(inst *instance.Instance) {
	inst.Conds = r.computeSampleConds(inst.KeySample)
}
