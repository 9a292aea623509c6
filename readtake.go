package rhc

import (
	"github.com/ddsgo/rhc/internal/core"
	"github.com/ddsgo/rhc/internal/instance"
	"github.com/ddsgo/rhc/internal/sample"
)

// hit is one sample or invalid-sample slated for return by a
// read/take pass.
type hit struct {
	inst *instance.Instance
	s    *sample.Sample // nil for the instance's invalid sample
}

// Read returns up to maxCount samples matching mask (and, if cond is
// non-nil, cond's masks and predicate), marking them READ (§4.4). Pass
// maxCount <= 0 for unlimited.
func (r *RHC) Read(maxCount int, mask StateMask, cond *Condition) ([]SampleInfo, []SerializedSample, error) {
	return r.readOrTake(maxCount, mask, cond, nil, false)
}

// Take behaves like Read but removes returned samples from the cache.
func (r *RHC) Take(maxCount int, mask StateMask, cond *Condition) ([]SampleInfo, []SerializedSample, error) {
	return r.readOrTake(maxCount, mask, cond, nil, true)
}

// ReadInstance restricts Read to a single instance handle, returning
// [ErrPreconditionNotMet] if the handle is unknown (SPEC_FULL §12.1,
// grounded on Cyclone DDS's read_instance entry point).
func (r *RHC) ReadInstance(handle InstanceHandle, maxCount int, mask StateMask, cond *Condition) ([]SampleInfo, []SerializedSample, error) {
	return r.readOrTakeInstance(handle, maxCount, mask, cond, false)
}

// TakeInstance is the take analog of ReadInstance.
func (r *RHC) TakeInstance(handle InstanceHandle, maxCount int, mask StateMask, cond *Condition) ([]SampleInfo, []SerializedSample, error) {
	return r.readOrTakeInstance(handle, maxCount, mask, cond, true)
}

func (r *RHC) readOrTakeInstance(handle InstanceHandle, maxCount int, mask StateMask, cond *Condition, take bool) ([]SampleInfo, []SerializedSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, ErrClosed
	}

	inst, ok := r.instances.Lookup(uint64(handle))
	if !ok {
		return nil, nil, wrapErr(ErrPreconditionNotMet, withInstance(handle))
	}

	return r.collectAndMutate(maxCount, mask, cond, inst, take)
}

func (r *RHC) readOrTake(maxCount int, mask StateMask, cond *Condition, only *instance.Instance, take bool) ([]SampleInfo, []SerializedSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, ErrClosed
	}

	return r.collectAndMutate(maxCount, mask, cond, only, take)
}

// collectAndMutate implements §4.4 end to end: enumeration (step 1-3),
// read/take mutation (step 4), view-state advance (step 5), sample-info
// synthesis with rank patching, and condition/deadline/empty-instance
// follow-up. Callers must hold r.mu.
func (r *RHC) collectAndMutate(maxCount int, mask StateMask, cond *Condition, only *instance.Instance, take bool) ([]SampleInfo, []SerializedSample, error) {
	qminv := core.Qminv(mask)

	var qcmask uint64
	if cond != nil {
		if cond.inner == nil {
			return nil, nil, wrapErr(ErrPreconditionNotMet)
		}

		qminv |= cond.inner.Qminv
		qcmask = cond.inner.QCMask
	}

	hits := r.enumerate(qminv, qcmask, maxCount, only)

	infos := make([]SampleInfo, len(hits))
	datas := make([]SerializedSample, len(hits))
	insts := make([]*instance.Instance, len(hits))

	for i, h := range hits {
		infos[i], datas[i] = r.synthesizeInfo(h.inst, h.s)
		insts[i] = h.inst
	}

	patchRanks(infos, insts)
	r.applyMutation(hits, take)

	return infos, datas, nil
}

// enumerate implements §4.4 steps 1-3.
func (r *RHC) enumerate(qminv core.StateMask, qcmask uint64, maxCount int, only *instance.Instance) []hit {
	var hits []hit

	limited := func() bool { return maxCount > 0 && len(hits) >= maxCount }

	visit := func(inst *instance.Instance) bool {
		if limited() {
			return false
		}

		if core.Rejects(instanceLevelQminv(qminv), inst.StateMask()) {
			return true
		}

		inst.Samples.Each(func(_, s *sample.Sample) bool {
			if limited() {
				return false
			}

			if core.Rejects(qminv, sampleStateTriple(inst, s)) {
				return true
			}

			if qcmask != 0 && s.Conds&qcmask == 0 {
				return true
			}

			hits = append(hits, hit{inst: inst, s: s})

			return true
		})

		if !limited() && inst.InvExists {
			if !core.Rejects(qminv, invalidStateTriple(inst)) && (qcmask == 0 || inst.Conds&qcmask != 0) {
				hits = append(hits, hit{inst: inst})
			}
		}

		return true
	}

	if only != nil {
		visit(only)
	} else {
		r.instances.Each(visit)
	}

	return hits
}

// applyMutation implements §4.4 step 4 (mark-read or unlink-and-free)
// and step 5 (view-state advance), grouping by contiguous per-instance
// runs so each instance's condition accounting runs exactly once.
func (r *RHC) applyMutation(hits []hit, take bool) {
	i := 0
	for i < len(hits) {
		j := i
		for j < len(hits) && hits[j].inst == hits[i].inst {
			j++
		}

		r.mutateInstanceRun(hits[i].inst, hits[i:j], take)
		i = j
	}
}

func (r *RHC) mutateInstanceRun(inst *instance.Instance, run []hit, take bool) {
	pre := r.snapshotConditionCounts(inst)

	invIncluded := false
	taken := make(map[*sample.Sample]bool, len(run))

	for _, h := range run {
		if h.s == nil {
			invIncluded = true

			continue
		}

		taken[h.s] = true
	}

	if take {
		inst.Samples.RemoveMatching(
			func(s *sample.Sample) bool { return taken[s] },
			func(s *sample.Sample) {
				r.lifespans.Unregister(inst.IID, s)
				s.Data.Unref()
			},
		)

		if invIncluded {
			inst.InvExists = false
			inst.InvIsRead = false
		}
	} else {
		for s := range taken {
			s.IsRead = true
		}

		if invIncluded {
			inst.InvIsRead = true
		}
	}

	inst.IsNew = false

	r.syncLinkage(inst)

	if take && inst.Destroyable() {
		r.deadlines.Unregister(inst.IID)
		r.instances.Remove(inst)
	}

	r.finishConditionUpdate(pre, inst)
}

func (r *RHC) synthesizeInfo(inst *instance.Instance, s *sample.Sample) (SampleInfo, SerializedSample) {
	if s != nil {
		return SampleInfo{
			SampleState:              sampleStateOf(s.IsRead),
			ViewState:                viewStateOf(inst.IsNew),
			InstanceState:            instanceStateOf(inst),
			InstanceHandle:           InstanceHandle(inst.IID),
			PublicationHandle:        s.WRIID,
			DisposedGenerationCount:  s.DisposedGen,
			NoWritersGenerationCount: s.NoWritersGen,
			AbsoluteGenerationRank:   int64(inst.DisposedGen) + int64(inst.NoWritersGen) - int64(s.DisposedGen) - int64(s.NoWritersGen),
			ValidData:                true,
			SourceTimestamp:          s.SourceTimestamp,
		}, s.Data
	}

	return SampleInfo{
		SampleState:              sampleStateOf(inst.InvIsRead),
		ViewState:                viewStateOf(inst.IsNew),
		InstanceState:            instanceStateOf(inst),
		InstanceHandle:           InstanceHandle(inst.IID),
		PublicationHandle:        inst.InvWRIID,
		DisposedGenerationCount:  inst.DisposedGen,
		NoWritersGenerationCount: inst.NoWritersGen,
		AbsoluteGenerationRank:   0,
		ValidData:                false,
		SourceTimestamp:          inst.TStamp,
	}, nil
}

// patchRanks implements the §4.4 sample-info rank patch: within each
// contiguous run of returned samples sharing an instance, sample_rank
// counts down to zero at the run's last sample and generation_rank is
// relative to that last sample's generation snapshot.
func patchRanks(infos []SampleInfo, insts []*instance.Instance) {
	i := 0
	for i < len(infos) {
		j := i
		for j < len(infos) && insts[j] == insts[i] {
			j++
		}

		last := j - 1
		refGen := int64(infos[last].DisposedGenerationCount) + int64(infos[last].NoWritersGenerationCount)

		for k := i; k < j; k++ {
			infos[k].SampleRank = int64(last - k)
			infos[k].GenerationRank = refGen - int64(infos[k].DisposedGenerationCount) - int64(infos[k].NoWritersGenerationCount)
		}

		i = j
	}
}

func sampleStateOf(read bool) StateMask {
	if read {
		return SampleStateRead
	}

	return SampleStateNotRead
}

func viewStateOf(isNew bool) StateMask {
	if isNew {
		return ViewStateNew
	}

	return ViewStateNotNew
}

func instanceStateOf(inst *instance.Instance) StateMask {
	switch {
	case inst.IsDisposed:
		return InstanceStateNotAliveDisposed
	case inst.WRCount == 0:
		return InstanceStateNotAliveNoWriters
	default:
		return InstanceStateAlive
	}
}
