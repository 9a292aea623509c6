package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddsgo/rhc/internal/schedule"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestQueue_PopExpired_ReturnsEarliestFirst(t *testing.T) {
	t.Parallel()

	q := schedule.New[string]()
	q.Register("c", base.Add(3*time.Second))
	q.Register("a", base.Add(1*time.Second))
	q.Register("b", base.Add(2*time.Second))

	require.Equal(t, 3, q.Len())

	due := q.PopExpired(base.Add(2 * time.Second))
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].Key)
	assert.Equal(t, "b", due[1].Key)
	assert.Equal(t, 1, q.Len())

	next, ok := q.NextExpiry()
	require.True(t, ok)
	assert.True(t, next.Equal(base.Add(3*time.Second)))
}

func TestQueue_Register_ReplacesExistingEntry(t *testing.T) {
	t.Parallel()

	q := schedule.New[string]()
	q.Register("a", base.Add(5*time.Second))
	q.Register("a", base.Add(1*time.Second))

	require.Equal(t, 1, q.Len())

	next, ok := q.NextExpiry()
	require.True(t, ok)
	assert.True(t, next.Equal(base.Add(1*time.Second)))
}

func TestQueue_Unregister_RemovesEntry(t *testing.T) {
	t.Parallel()

	q := schedule.New[string]()
	q.Register("a", base.Add(time.Second))
	assert.True(t, q.Registered("a"))

	q.Unregister("a")
	assert.False(t, q.Registered("a"))
	assert.Equal(t, 0, q.Len())

	// Redundant unregister must not panic.
	q.Unregister("a")
}

func TestQueue_NextExpiry_EmptyQueue(t *testing.T) {
	t.Parallel()

	q := schedule.New[string]()
	_, ok := q.NextExpiry()
	assert.False(t, ok)
}

func TestQueue_PopExpired_NothingDue(t *testing.T) {
	t.Parallel()

	q := schedule.New[string]()
	q.Register("a", base.Add(time.Hour))

	due := q.PopExpired(base)
	assert.Empty(t, due)
	assert.Equal(t, 1, q.Len())
}
