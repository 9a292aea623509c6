package rhc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitset_NotifyDataAvailable_WakesWaiter(t *testing.T) {
	t.Parallel()

	w := NewWaitset()

	done := make(chan uint64, 1)
	go func() {
		done <- w.Wait(0)
	}()

	// Give the waiter a chance to block before notifying.
	time.Sleep(10 * time.Millisecond)
	w.NotifyDataAvailable()

	select {
	case gen := <-done:
		assert.Equal(t, uint64(1), gen)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after NotifyDataAvailable")
	}
}

func TestWaitset_NotifyStatus_RecordsEventForDrain(t *testing.T) {
	t.Parallel()

	w := NewWaitset()

	w.NotifyStatus(StatusSampleLost, StatusEvent{InstanceHandle: 7})
	w.NotifyStatus(StatusSampleRejected, StatusEvent{InstanceHandle: 9})

	events := w.DrainStatus()
	require.Len(t, events, 2)
	assert.Equal(t, InstanceHandle(7), events[0].InstanceHandle)
	assert.Equal(t, InstanceHandle(9), events[1].InstanceHandle)

	assert.Empty(t, w.DrainStatus(), "drain must clear the recorded events")
}

func TestWaitset_Wait_ReturnsImmediatelyIfGenerationAlreadyAdvanced(t *testing.T) {
	t.Parallel()

	w := NewWaitset()
	w.NotifyDataAvailable()

	gen := w.Wait(0)
	assert.Equal(t, uint64(1), gen)
}
