package core

import "time"

// InstanceHandle identifies an instance for the lifetime of its key
// value within the reader (the key map's iid).
type InstanceHandle uint64

// SampleInfo is synthesized per returned sample by read/take (§4.4). It
// accompanies every sample — real or invalid — returned to the
// application.
type SampleInfo struct {
	SampleState   StateMask
	ViewState     StateMask
	InstanceState StateMask

	InstanceHandle    InstanceHandle
	PublicationHandle uint64 // writer iid

	DisposedGenerationCount   uint32
	NoWritersGenerationCount  uint32
	AbsoluteGenerationRank    int64
	SampleRank                int64
	GenerationRank            int64

	ValidData       bool
	SourceTimestamp time.Time
}
