package rhc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddsgo/rhc/internal/fixture"
)

func TestUnregisterWriter_RemovesRegistrationEverywhere(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	ts := baseTime
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	_, _, err = r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)

	require.NoError(t, r.UnregisterWriter(1))

	infos, _, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var sawInvalid bool

	for _, info := range infos {
		if !info.ValidData {
			sawInvalid = true

			assert.Equal(t, InstanceStateNotAliveNoWriters, info.InstanceState)
		}
	}

	assert.True(t, sawInvalid)
}

func TestRelinquishOwnership_AllowsAnotherWriterToTakeOver(t *testing.T) {
	t.Parallel()

	qos := DefaultQoS()
	qos.Ownership = Exclusive

	r := New(qos, &recordingNotifier{})
	defer r.Free()

	strong := WriterInfo{IID: 1, OwnershipStrength: 10}
	weak := WriterInfo{IID: 2, OwnershipStrength: 5}

	ts := baseTime
	_, err := r.Store(strong, fixture.NewDataSample("k1", "from-strong", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	require.NoError(t, r.RelinquishOwnership(1))

	ts2 := baseTime.Add(time.Second)
	stored, err := r.Store(weak, fixture.NewDataSample("k1", "from-weak", ts2), fixture.NewKeyedInstance("k1", ts2))
	require.NoError(t, err)
	assert.True(t, stored, "after relinquish, a weaker but now-uncontested writer must be accepted")
}

func TestPollDeadlineMissed_FiresAfterPeriodWithNoUpdate(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: baseTime}

	qos := DefaultQoS()
	qos.Deadline = Deadline{Period: time.Second}

	notifier := &recordingNotifier{}
	r := New(qos, notifier, WithClock(clock.Now))
	defer r.Free()

	ts := baseTime
	_, err := r.Store(writer(1), fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	r.PollDeadlineMissed(baseTime.Add(500 * time.Millisecond))
	assert.Empty(t, notifier.statusIDs, "deadline has not elapsed yet")

	r.PollDeadlineMissed(baseTime.Add(time.Second))
	require.Len(t, notifier.statusIDs, 1)
	assert.Equal(t, StatusRequestedDeadlineMissed, notifier.statusIDs[0])

	status := r.Status()
	assert.Equal(t, uint64(1), status.RequestedDeadlineMissedTotal)

	next, ok := r.NextDeadline()
	require.True(t, ok)
	assert.True(t, next.Equal(baseTime.Add(2 * time.Second)))
}

func TestPollLifespanExpired_RemovesExpiredSample(t *testing.T) {
	t.Parallel()

	r := New(DefaultQoS(), &recordingNotifier{})
	defer r.Free()

	w := WriterInfo{IID: 1, LifespanExpiry: baseTime.Add(time.Second)}

	ts := baseTime
	_, err := r.Store(w, fixture.NewDataSample("k1", "v1", ts), fixture.NewKeyedInstance("k1", ts))
	require.NoError(t, err)

	r.PollLifespanExpired(baseTime.Add(500 * time.Millisecond))

	infos, _, err := r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1, "lifespan hasn't elapsed yet")

	r.PollLifespanExpired(baseTime.Add(time.Second))

	infos, _, err = r.Read(0, SampleStateAny, nil)
	require.NoError(t, err)
	assert.Empty(t, infos, "the sample must be gone once its lifespan elapses")
}

// manualClock is a minimal deterministic clock for WithClock in tests
// that don't need the full internal/testutil.Clock advance helpers.
type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }
