// Package core defines the small set of types shared by every RHC
// subpackage (instance, sample, condition, deadline, lifespan) and by
// the public rhc package, so none of them need to import each other.
package core

import (
	"bytes"
	"time"
)

// GUID is a writer's global unique identifier, as delivered by
// discovery. It is opaque to the RHC beyond ordering comparisons used
// to break ownership-strength and timestamp ties.
type GUID [16]byte

// Less reports whether g sorts before o, the tiebreak order used by
// §4.3 (by-source-timestamp ordering and exclusive-ownership ties).
func (g GUID) Less(o GUID) bool {
	return bytes.Compare(g[:], o[:]) < 0
}

// SampleKind distinguishes a real data update from a key-only event
// (a pure dispose/unregister with no payload).
type SampleKind int

const (
	// SampleKindData carries application data.
	SampleKindData SampleKind = iota
	// SampleKindKey carries only the instance's key fields.
	SampleKindKey
)

// StatusInfo is the wire status-info bitset accompanying a sample.
type StatusInfo uint32

const (
	// StatusInfoDispose marks the instance as disposed.
	StatusInfoDispose StatusInfo = 1 << 0
	// StatusInfoUnregister marks the writer as unregistering the instance.
	StatusInfoUnregister StatusInfo = 1 << 1
)

// Has reports whether all bits in want are set.
func (s StatusInfo) Has(want StatusInfo) bool { return s&want == want }

// WriterInfo is the metadata discovery/QoS negotiation attaches to a
// store call: who wrote it, how strongly they own the instance, and
// whether they auto-dispose instances on unregister.
type WriterInfo struct {
	IID                           uint64
	GUID                          GUID
	OwnershipStrength             int32
	AutoDisposeUnregisteredInstances bool
	LifespanExpiry                time.Time // zero value = no expiry
}

// SerializedSample is the opaque, ref-counted handle the topic-type
// serialization layer hands the RHC. The RHC never looks inside it; it
// only reads the accessors below and forwards it to a [Predicate] for
// content-filter / query-condition evaluation.
type SerializedSample interface {
	// Timestamp returns the source timestamp and whether it is valid.
	// An invalid timestamp disables by-source-timestamp ordering and
	// time-based filtering for this sample (§4.3).
	Timestamp() (time.Time, bool)
	// Kind reports whether this is a data update or a key-only event.
	Kind() SampleKind
	// StatusInfoBits returns the DISPOSE/UNREGISTER bitset.
	StatusInfoBits() StatusInfo
	// Ref increments the handle's reference count. The RHC calls this
	// exactly once when it decides to retain the sample.
	Ref()
	// Unref decrements the handle's reference count, releasing the
	// underlying storage at zero.
	Unref()
}

// KeyedInstance is what the instance-key map hands back for a
// store/dispose event: the stable instance id and a key-only
// projection usable for condition predicate evaluation against the
// instance (as opposed to a full sample).
type KeyedInstance interface {
	IID() uint64
	KeySample() SerializedSample
}

// Predicate is a content-filter or query-condition test evaluated
// against a sample's (or an instance's key-only) deserialized form.
// A nil Predicate always matches (used by plain read conditions and by
// readers with no content filter).
type Predicate func(SerializedSample) bool
