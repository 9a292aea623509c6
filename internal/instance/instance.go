// Package instance implements the per-key instance record (§3.1, §4.1,
// §4.2): the DDS sample/view/instance state machine, the writer
// fast-path cache, and the sparse writer-registration table.
package instance

import (
	"time"

	"github.com/ddsgo/rhc/internal/core"
	"github.com/ddsgo/rhc/internal/sample"
)

// writerEntry is a registration kept in the sparse table (§4.2) for
// any writer that isn't the fast-path cached one.
type writerEntry struct {
	guid        core.GUID
	strength    int32
	autoDispose bool
}

// Instance is the equivalence class of samples sharing a key value.
type Instance struct {
	IID uint64

	// KeySample is the key-only projection the key map stored for this
	// instance, used to evaluate query-condition predicates against the
	// instance itself (for invalid-sample matching, §4.5).
	KeySample core.SerializedSample

	Samples sample.List

	WRCount     int
	WRIID       uint64
	WRIIDIsLive bool
	WRGUID      core.GUID
	Strength    int32

	IsNew       bool
	IsDisposed  bool
	AutoDispose bool // sticky: set once any writer had the flag

	InvExists bool
	InvIsRead bool
	InvWRIID  uint64 // publication handle attributed to the invalid sample

	DisposedGen  uint32
	NoWritersGen uint32

	TStamp      time.Time
	TStampValid bool

	Conds uint64 // query conditions whose key-only predicate matches

	DeadlineReg bool

	extra map[uint64]writerEntry

	// non-empty-instance list linkage (see Store), nil when not linked.
	prev, next *Instance
}

// Empty reports invariant 1: an instance is empty iff it holds no
// valid samples and no invalid sample.
func (inst *Instance) Empty() bool {
	return inst.Samples.Len() == 0 && !inst.InvExists
}

// Destroyable reports invariant 2.
func (inst *Instance) Destroyable() bool {
	return inst.Empty() && inst.WRCount == 0
}

// StateMask returns the instance's current one-hot state triple for
// view/instance state (sample state is per-sample, computed by the
// read/take engine).
func (inst *Instance) StateMask() core.StateMask {
	m := core.ViewStateNotNew
	if inst.IsNew {
		m = core.ViewStateNew
	}

	switch {
	case inst.WRCount == 0 && !inst.IsDisposed:
		m |= core.InstanceStateNotAliveNoWriters
	case inst.IsDisposed:
		m |= core.InstanceStateNotAliveDisposed
	default:
		m |= core.InstanceStateAlive
	}

	return m
}

// IsAlive reports whether the instance currently has live writers and
// has not been disposed.
func (inst *Instance) IsAlive() bool {
	return inst.WRCount > 0 && !inst.IsDisposed
}

// HasWriter reports whether iid currently holds a registration, whether
// it lives in the fast path or the sparse table.
func (inst *Instance) HasWriter(iid uint64) bool {
	if inst.WRIID == iid && inst.WRIIDIsLive {
		return true
	}

	_, ok := inst.extra[iid]

	return ok
}

// RegisterWriter ensures iid holds a registration, performing the §4.2
// sparse-table bookkeeping (invariant 6: the table holds a pair iff
// wrcount≥2, or wrcount==1 and the fast path isn't live). It does not
// touch the fast-path "current owner" cache — that is
// [Instance.RefreshOwnerCache]'s job, called once per accepted sample
// in the same store() pass. Returns true if this registration takes
// wrcount from 0 to 1.
func (inst *Instance) RegisterWriter(iid uint64, guid core.GUID, strength int32, autoDispose bool) bool {
	if autoDispose {
		inst.AutoDispose = true
	}

	if inst.WRCount == 0 {
		inst.WRCount = 1
		inst.WRIID = iid
		inst.WRGUID = guid
		inst.Strength = strength
		inst.WRIIDIsLive = true

		return true
	}

	if inst.HasWriter(iid) {
		if e, ok := inst.extra[iid]; ok {
			e.guid = guid
			e.strength = strength
			e.autoDispose = e.autoDispose || autoDispose
			inst.extra[iid] = e
		}

		return false
	}

	if inst.extra == nil {
		inst.extra = make(map[uint64]writerEntry, 2)
	}

	// wrcount: 1 -> 2 with a new writer: both the cached writer and
	// the new one move into the table (§4.2).
	if inst.WRCount == 1 && inst.WRIIDIsLive {
		inst.extra[inst.WRIID] = writerEntry{guid: inst.WRGUID, strength: inst.Strength, autoDispose: inst.AutoDispose}
	}

	inst.extra[iid] = writerEntry{guid: guid, strength: strength, autoDispose: autoDispose}
	inst.WRCount++

	return false
}

// RefreshOwnerCache applies §4.3 Step D ("update tstamp, strength,
// wr_guid; set wr_iid_islive") to the fast-path owner cache. iid must
// already be registered — callers invoke [Instance.RegisterWriter]
// first within the same store() pass.
//
// At wrcount==1 this promotes iid out of the sparse table and into the
// fast path, since invariant 6 forbids a table entry once the sole
// writer is cached live. At wrcount≥2 the table already holds every
// writer unconditionally, so the cache is just a convenience pointer
// to "the" most recently accepted writer and the table entry is left
// in place (kept in sync).
func (inst *Instance) RefreshOwnerCache(iid uint64, guid core.GUID, strength int32) {
	if inst.WRCount == 1 {
		delete(inst.extra, iid)
	} else if e, ok := inst.extra[iid]; ok {
		e.guid, e.strength = guid, strength
		inst.extra[iid] = e
	}

	inst.WRIID = iid
	inst.WRGUID = guid
	inst.Strength = strength
	inst.WRIIDIsLive = true
}

// UnregisterWriter removes iid's registration (§3.3, §4.3 Step G). It
// returns true if wrcount dropped to zero.
func (inst *Instance) UnregisterWriter(iid uint64) bool {
	if !inst.HasWriter(iid) {
		return false
	}

	if inst.WRIID == iid && inst.WRIIDIsLive {
		inst.WRIIDIsLive = false
	}

	delete(inst.extra, iid)

	inst.WRCount--

	if inst.WRCount == 0 {
		inst.WRIID = 0

		return true
	}

	inst.promoteIfSingular()

	return false
}

// promoteIfSingular implements "wrcount: n -> n-1 leaving one writer w
// cached: remove w from the table; fast-path takes over" (§4.2). If the
// surviving writer is already the live fast-path owner, only its table
// entry is removed.
func (inst *Instance) promoteIfSingular() {
	if inst.WRCount != 1 {
		return
	}

	if inst.WRIIDIsLive {
		delete(inst.extra, inst.WRIID)

		return
	}

	for iid, e := range inst.extra {
		inst.WRIID = iid
		inst.WRGUID = e.guid
		inst.Strength = e.strength
		inst.WRIIDIsLive = true
		delete(inst.extra, iid)

		break
	}
}

// RelinquishOwnership drops the fast-path ownership cache for writer
// iid without touching its registration (§6.2, SPEC_FULL §12.5): the
// writer remains registered, it just stops being the privileged cached
// owner. If other writers remain registered, one of them is promoted
// into the cache so reads always have a current-owner candidate; if
// iid was the sole writer, its entry moves into the sparse table per
// invariant 6.
func (inst *Instance) RelinquishOwnership(iid uint64) {
	if inst.WRIID != iid || !inst.WRIIDIsLive {
		return
	}

	inst.WRIIDIsLive = false

	if inst.WRCount == 1 {
		if inst.extra == nil {
			inst.extra = make(map[uint64]writerEntry, 1)
		}

		inst.extra[iid] = writerEntry{guid: inst.WRGUID, strength: inst.Strength, autoDispose: inst.AutoDispose}

		return
	}

	for candidate, e := range inst.extra {
		if candidate == iid {
			continue
		}

		inst.WRIID = candidate
		inst.WRGUID = e.guid
		inst.Strength = e.strength
		inst.WRIIDIsLive = true

		break
	}
}
