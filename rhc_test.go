package rhc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddsgo/rhc/internal/core"
	"github.com/ddsgo/rhc/internal/fixture"
)

// recordingNotifier counts NotifyDataAvailable calls and records every
// status event, for assertions that don't care about exact timing.
type recordingNotifier struct {
	dataAvailable int
	statuses      []StatusEvent
	statusIDs     []StatusID
}

func (n *recordingNotifier) NotifyDataAvailable() { n.dataAvailable++ }

func (n *recordingNotifier) NotifyStatus(id StatusID, event StatusEvent) {
	n.statusIDs = append(n.statusIDs, id)
	n.statuses = append(n.statuses, event)
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func writer(iid uint64) WriterInfo { return WriterInfo{IID: iid} }

func TestStore_Read_BasicRoundTrip(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	ts := baseTime
	stored, err := r.Store(writer(1), fixture.NewDataSample("k1", "hello", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)
	assert.True(t, stored)

	infos, datas, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Len(t, datas, 1)

	assert.Equal(t, SampleStateNotRead, infos[0].SampleState)
	assert.Equal(t, ViewStateNew, infos[0].ViewState)
	assert.Equal(t, InstanceStateAlive, infos[0].InstanceState)
	assert.True(t, infos[0].ValidData)
	assert.Equal(t, int64(0), infos[0].SampleRank)

	sample, ok := datas[0].(*fixture.Sample)
	require.True(t, ok)
	assert.Equal(t, "hello", sample.Payload)

	// A second Read must see the sample as already read and not new.
	infos, _, err = r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, SampleStateRead, infos[0].SampleState)
	assert.Equal(t, ViewStateNotNew, infos[0].ViewState)
}

func TestTake_RemovesSample(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	ts := baseTime
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "hello", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	infos, _, err := r.Take(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	infos, _, err = r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestStore_KeepLast_OverwritesOldest(t *testing.T) {
	t.Parallel()

	qos := DefaultQoS()
	qos.History = History{Kind: KeepLast, Depth: 2}

	r := New(qos, &recordingNotifier{})
	defer r.Free()

	for i, payload := range []string{"a", "b", "c"} {
		ts := baseTime.Add(time.Duration(i) * time.Second)
		_, err := r.Store(writer(1), fixture.NewDataSample("k1", payload, ts), fixture.NewKeyedInstance("k1", ts))
		require.NoError(t, err)
	}

	infos, datas, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	got := []string{datas[0].(*fixture.Sample).Payload, datas[1].(*fixture.Sample).Payload}
	assert.ElementsMatch(t, []string{"b", "c"}, got, "oldest sample 'a' must have been overwritten")
}

func TestStore_Dispose_SynthesizesInvalidSample(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	ts := baseTime
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	// Invalid-sample synthesis is skipped while an unread valid sample
	// remains (§4.3 Step F: "at most one unread signal of change"), so
	// consume it first.
	_, _, err = r.Take(0, SampleStateAny, nil)
	require.NoError(t, err)

	ts2 := baseTime.Add(time.Second)
	_, err = r.Store(writer(1), fixture.NewKeySample("k1", ts2, core.StatusInfoDispose), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)

	infos, _, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.False(t, infos[0].ValidData)
	assert.Equal(t, InstanceStateNotAliveDisposed, infos[0].InstanceState)
}

func TestStore_Dispose_SkipsInvalidSampleWhileUnreadValidDataRemains(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	ts := baseTime
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	ts2 := baseTime.Add(time.Second)
	_, err = r.Store(writer(1), fixture.NewKeySample("k1", ts2, core.StatusInfoDispose), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)

	infos, _, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1, "an unread valid sample already reports the instance's change; no invalid sample is added")
	assert.True(t, infos[0].ValidData)
	assert.Equal(t, InstanceStateNotAliveDisposed, infos[0].InstanceState)
}

func TestStore_UnregisterAllWriters_SynthesizesNoWritersInvalidSample(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	ts := baseTime
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	// Read (not Take): the sample stays in the cache, marked read, so
	// the instance is still non-empty when the last writer goes away
	// and the NOT_ALIVE_NO_WRITERS transition gets its own invalid
	// sample instead of being folded into an already-taken instance.
	_, _, err = r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)

	ts2 := baseTime.Add(time.Second)
	_, err = r.Store(writer(1), fixture.NewKeySample("k1", ts2, core.StatusInfoUnregister), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)

	infos, _, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 2, "the read-but-retained valid sample plus the new invalid sample")

	var sawInvalid bool

	for _, info := range infos {
		if !info.ValidData {
			sawInvalid = true

			assert.Equal(t, InstanceStateNotAliveNoWriters, info.InstanceState)
		}
	}

	assert.True(t, sawInvalid)
}

func TestStore_ResourceLimit_RejectsBeyondMaxSamplesPerInstance(t *testing.T) {
	t.Parallel()

	qos := DefaultQoS()
	qos.History = History{Kind: KeepAll}
	qos.ResourceLimits = ResourceLimits{MaxSamplesPerInstance: 1}

	notifier := &recordingNotifier{}
	r := New(qos, notifier)
	defer r.Free()

	ts := baseTime
	stored, err := r.Store(writer(1), fixture.NewDataSample("k1", "a", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)
	assert.True(t, stored)

	ts2 := baseTime.Add(time.Second)
	stored, err = r.Store(writer(1), fixture.NewDataSample("k1", "b", ts2), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)
	assert.False(t, stored, "second sample must be rejected by the per-instance resource limit")

	require.Len(t, notifier.statusIDs, 1)
	assert.Equal(t, StatusSampleRejected, notifier.statusIDs[0])
	assert.Equal(t, RejectedByMaxSamplesPerInstance, notifier.statuses[0].RejectedReason)

	status := r.Status()
	assert.Equal(t, uint64(1), status.SampleRejectedTotal)
}

func TestStore_Exclusive_LowerStrengthWriterRejected(t *testing.T) {
	t.Parallel()

	qos := DefaultQoS()
	qos.Ownership = Exclusive

	notifier := &recordingNotifier{}
	r := New(qos, notifier)
	defer r.Free()

	strong := WriterInfo{IID: 1, OwnershipStrength: 10, GUID: core.GUID{1}}
	weak := WriterInfo{IID: 2, OwnershipStrength: 5, GUID: core.GUID{2}}

	ts := baseTime
	stored, err := r.Store(strong, fixture.NewDataSample("k1", "from-strong", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)
	assert.True(t, stored)

	ts2 := baseTime.Add(time.Second)
	stored, err = r.Store(weak, fixture.NewDataSample("k1", "from-weak", ts2), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)
	assert.False(t, stored, "a weaker writer must be rejected while the stronger owner is live")

	require.Len(t, notifier.statusIDs, 1)
	assert.Equal(t, StatusSampleLost, notifier.statusIDs[0])

	infos, datas, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "from-strong", datas[0].(*fixture.Sample).Payload)
}

func TestStore_TimeBasedFilter_RejectsWithinMinimumSeparation(t *testing.T) {
	t.Parallel()

	qos := DefaultQoS()
	qos.TimeBasedFilter = TimeBasedFilter{MinimumSeparation: time.Second}

	r := New(qos, &recordingNotifier{})
	defer r.Free()

	ts := baseTime
	stored, err := r.Store(writer(1), fixture.NewDataSample("k1", "a", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)
	assert.True(t, stored)

	ts2 := baseTime.Add(500 * time.Millisecond)
	stored, err = r.Store(writer(1), fixture.NewDataSample("k1", "b", ts2), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)
	assert.False(t, stored, "sample arriving before the minimum separation must be rejected")

	ts3 := baseTime.Add(2 * time.Second)
	stored, err = r.Store(writer(1), fixture.NewDataSample("k1", "c", ts3), fixture.NewKeyedInstance("k1", ts3))
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestStore_OutOfOrderSourceTimestamp_Rejected(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	later := baseTime.Add(time.Second)
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "later", later), fixture.NewKeyedInstance("k1", later))
	require.NoError(t, err)

	earlier := baseTime
	stored, err := r.Store(writer(1), fixture.NewDataSample("k1", "earlier", earlier), fixture.NewKeyedInstance("k1", earlier))
	require.NoError(t, err)
	assert.False(t, stored)

	_, datas, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, datas, 1)
	assert.Equal(t, "later", datas[0].(*fixture.Sample).Payload)
}

func TestAddCondition_TriggersOnMatchingStore(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	r := New(DefaultQoS(), notifier)
	defer r.Free()

	cond, err := r.AddCondition(SampleStateNotRead, ViewStateAny, InstanceStateAny, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cond.Trigger())

	ts := baseTime
	_, err = r.Store(writer(1), fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	assert.Equal(t, int64(1), cond.Trigger())
	assert.Equal(t, 1, notifier.dataAvailable)

	infos, _, err := r.Take(0, SampleStateAny, cond)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(0), cond.Trigger())
}

func TestAddCondition_NotReadConditionStopsCountingAfterRead(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	cond, err := r.AddCondition(SampleStateNotRead, ViewStateAny, InstanceStateAny, nil)
	require.NoError(t, err)

	ts := baseTime
	_, err = r.Store(writer(1), fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cond.Trigger())

	// A plain Read marks the sample READ but leaves the instance
	// non-empty: a condition scoped to NOT_READ must stop counting it
	// even though the instance itself still holds the sample.
	_, _, err = r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cond.Trigger())

	infos, _, err := r.Read(0, SampleStateAny, cond)
	require.NoError(t, err)
	assert.Empty(t, infos, "a NOT_READ condition must not match an instance whose only sample was already read")
}

func TestAddCondition_QueryPredicateFiltersSamples(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	qos := DefaultQoS()
	qos.History = History{Kind: KeepAll}
	r.SetQoS(qos)

	cond, err := r.AddCondition(SampleStateAny, ViewStateAny, InstanceStateAny, fixture.PrefixPredicate("match-"))
	require.NoError(t, err)

	ts1 := baseTime
	_, err = r.Store(writer(1), fixture.NewDataSample("k1", "match-1", ts1), fixture.NewKeyedInstance("k1", ts1))
	require.NoError(t, err)

	ts2 := baseTime.Add(time.Second)
	_, err = r.Store(writer(1), fixture.NewDataSample("k1", "other", ts2), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)

	assert.Equal(t, int64(1), cond.Trigger())

	infos, datas, err := r.Read(0, SampleStateAny, cond)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "match-1", datas[0].(*fixture.Sample).Payload)
}

func TestRemoveCondition_FreesBitAndStopsTracking(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	cond, err := r.AddCondition(SampleStateAny, ViewStateAny, InstanceStateAny, fixture.PrefixPredicate("x"))
	require.NoError(t, err)

	require.NoError(t, r.RemoveCondition(cond))

	ts := baseTime
	_, err = r.Store(writer(1), fixture.NewDataSample("k1", "x1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	assert.Equal(t, int64(0), cond.Trigger(), "a detached condition must no longer accumulate trigger counts")
}

func TestFree_RejectsFurtherOperations(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	r.Free()

	ts := baseTime
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "v", ts), fixture.NewKeyedInstance("k1", ts))
	assert.ErrorIs(t, err, ErrClosed)

	_, _, err = r.Read(0, SampleStateAny, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReadInstance_UnknownHandleReturnsPreconditionError(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	_, _, err := r.ReadInstance(InstanceHandle(999), 0, SampleStateAny, nil)
	assert.ErrorIs(t, err, ErrPreconditionNotMet)
}
