// Package rhc implements a DDS Reader History Cache: the per-reader
// structure that stores samples delivered from the wire, serves
// read/take to applications under DDS sample/view/instance state
// semantics, and drives condition-based waitset triggering.
//
// An RHC owns no network, transport, or type-system concerns — those
// are supplied by collaborators (see [WriterInfo], [SerializedSample],
// [KeyedInstance], [ReaderNotifier]) — it is purely local, in-process
// state management guarded by a single mutex (§5 of the design).
//
// The instance/sample bookkeeping lives in subpackages internal/instance and internal/sample; condition
// trigger maintenance lives in internal/condition; deadline/lifespan
// expiry scheduling share internal/schedule.
package rhc
