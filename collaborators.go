package rhc

// StatusID names a reader status an RHC operation may raise (§6.1
// "notify_status(status_id, extra_data)", §7).
type StatusID int

const (
	// StatusSampleLost fires when a sample is rejected by the
	// acceptance filter (§4.3 Step C).
	StatusSampleLost StatusID = iota
	// StatusSampleRejected fires when a sample is rejected by a
	// resource limit (§4.3 Step E).
	StatusSampleRejected
	// StatusRequestedDeadlineMissed fires when an alive instance's
	// deadline period elapses with no update (§4.6).
	StatusRequestedDeadlineMissed
)

// SampleRejectedReason explains a StatusSampleRejected notification.
type SampleRejectedReason int

const (
	RejectedByMaxSamples SampleRejectedReason = iota
	RejectedByMaxSamplesPerInstance
	RejectedByMaxInstances
)

// StatusEvent is the extra_data payload accompanying a notify_status
// call.
type StatusEvent struct {
	InstanceHandle InstanceHandle
	WriterIID      uint64

	// RejectedReason is set only for StatusSampleRejected.
	RejectedReason SampleRejectedReason

	// DeadlineMissedCount is set only for StatusRequestedDeadlineMissed
	// (§4.6: "the computed number of missed periods").
	DeadlineMissedCount int
}

// ReaderNotifier is the collaborator the RHC calls to surface
// DATA_AVAILABLE-equivalent wakeups and status events (§6.1). Every
// public RHC operation that would raise a status calls into this
// interface while still holding the RHC's mutex (§5), so
// implementations must not call back into the RHC.
type ReaderNotifier interface {
	// NotifyDataAvailable fires when a mutation of one instance (by
	// Store, Read/Take, UnregisterWriter or lifespan expiry) made at
	// least one condition's trigger transition from zero to positive
	// (§4.3 Step I); at most once per mutated instance.
	NotifyDataAvailable()

	// NotifyStatus fires for SAMPLE_LOST, SAMPLE_REJECTED, and
	// REQUESTED_DEADLINE_MISSED (§4.3 Step C/E, §4.6).
	NotifyStatus(id StatusID, event StatusEvent)
}

// NopNotifier discards every notification. Useful for tests that only
// assert on trigger counts or returned samples.
type NopNotifier struct{}

func (NopNotifier) NotifyDataAvailable()                  {}
func (NopNotifier) NotifyStatus(StatusID, StatusEvent) {}
