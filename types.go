package rhc

import "github.com/ddsgo/rhc/internal/core"

// Re-exported so callers never need to import internal/core directly;
// the types below are this package's public vocabulary.

// GUID is a writer's global unique identifier, opaque beyond ordering
// comparisons used for ownership/timestamp tiebreaks.
type GUID = core.GUID

// SampleKind distinguishes a real data update from a key-only event.
type SampleKind = core.SampleKind

const (
	SampleKindData = core.SampleKindData
	SampleKindKey  = core.SampleKindKey
)

// StatusInfo is the wire status-info bitset accompanying a sample.
type StatusInfo = core.StatusInfo

const (
	StatusInfoDispose    = core.StatusInfoDispose
	StatusInfoUnregister = core.StatusInfoUnregister
)

// WriterInfo is the metadata discovery/QoS negotiation supplies with
// every store call (§3.1, §6.1).
type WriterInfo = core.WriterInfo

// SerializedSample is the opaque, ref-counted sample handle the
// topic-type serialization layer provides (§6.1).
type SerializedSample = core.SerializedSample

// KeyedInstance is what the instance-key map hands back for a
// store/dispose event (§6.1).
type KeyedInstance = core.KeyedInstance

// Predicate is a content-filter or query-condition test (§3.1).
type Predicate = core.Predicate

// StateMask is a bitwise-OR of desired sample/view/instance states
// (§6.3). The numeric values are part of the public contract.
type StateMask = core.StateMask

// Sample states.
const (
	SampleStateRead    = core.SampleStateRead
	SampleStateNotRead = core.SampleStateNotRead
	SampleStateAny     = core.SampleStateAny
)

// View states.
const (
	ViewStateNew    = core.ViewStateNew
	ViewStateNotNew = core.ViewStateNotNew
	ViewStateAny    = core.ViewStateAny
)

// Instance states.
const (
	InstanceStateAlive             = core.InstanceStateAlive
	InstanceStateNotAliveDisposed  = core.InstanceStateNotAliveDisposed
	InstanceStateNotAliveNoWriters = core.InstanceStateNotAliveNoWriters
	InstanceStateAny               = core.InstanceStateAny
)

// InstanceHandle identifies an instance for the lifetime of its key
// value within the reader.
type InstanceHandle = core.InstanceHandle

// SampleInfo is synthesized per returned sample by Read/Take (§4.4).
type SampleInfo = core.SampleInfo
