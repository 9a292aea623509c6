package rhc

// StatusCounters are cumulative counts alongside the per-event
// [ReaderNotifier] callbacks (SPEC_FULL §12.4, grounded on Cyclone
// DDS's total-count statistics alongside its per-event notification).
type StatusCounters struct {
	SampleLostTotal               uint64
	SampleRejectedTotal            uint64
	RequestedDeadlineMissedTotal uint64
}

// Status returns a snapshot of the cumulative status counters, read
// under the same mutex as every mutating operation.
func (r *RHC) Status() StatusCounters {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counters
}
