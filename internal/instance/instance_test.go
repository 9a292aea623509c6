package instance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddsgo/rhc/internal/core"
	"github.com/ddsgo/rhc/internal/instance"
)

func TestInstance_StateMask_TracksWritersAndDisposal(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{IsNew: true}
	assert.Equal(t, core.ViewStateNew|core.InstanceStateNotAliveNoWriters, inst.StateMask())

	inst.RegisterWriter(1, core.GUID{1}, 0, false)
	inst.RefreshOwnerCache(1, core.GUID{1}, 0)
	assert.Equal(t, core.ViewStateNew|core.InstanceStateAlive, inst.StateMask())

	inst.IsDisposed = true
	assert.Equal(t, core.ViewStateNew|core.InstanceStateNotAliveDisposed, inst.StateMask())
}

func TestInstance_RegisterWriter_FirstRegistrationUsesFastPath(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{}

	first := inst.RegisterWriter(1, core.GUID{1}, 5, false)
	assert.True(t, first)
	assert.Equal(t, 1, inst.WRCount)
	assert.True(t, inst.HasWriter(1))
	assert.False(t, inst.HasWriter(2))
}

func TestInstance_RegisterWriter_SecondWriterMovesBothIntoTable(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{}
	inst.RegisterWriter(1, core.GUID{1}, 5, false)
	inst.RefreshOwnerCache(1, core.GUID{1}, 5)

	second := inst.RegisterWriter(2, core.GUID{2}, 3, false)
	assert.False(t, second, "only a registration that takes wrcount from 0 to 1 reports true")
	assert.Equal(t, 2, inst.WRCount)
	assert.True(t, inst.HasWriter(1))
	assert.True(t, inst.HasWriter(2))
}

func TestInstance_UnregisterWriter_SingleWriterDropsToZero(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{}
	inst.RegisterWriter(1, core.GUID{1}, 0, false)
	inst.RefreshOwnerCache(1, core.GUID{1}, 0)

	droppedToZero := inst.UnregisterWriter(1)
	assert.True(t, droppedToZero)
	assert.Equal(t, 0, inst.WRCount)
	assert.False(t, inst.HasWriter(1))
}

func TestInstance_UnregisterWriter_PromotesSurvivingWriterToFastPath(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{}
	inst.RegisterWriter(1, core.GUID{1}, 5, false)
	inst.RefreshOwnerCache(1, core.GUID{1}, 5)
	inst.RegisterWriter(2, core.GUID{2}, 3, false)

	droppedToZero := inst.UnregisterWriter(1)
	require.False(t, droppedToZero)
	assert.Equal(t, 1, inst.WRCount)

	// Invariant 6: with wrcount==1 and the survivor promoted, the table
	// must be empty and the survivor must be the live fast-path owner.
	assert.True(t, inst.HasWriter(2))
	assert.Equal(t, uint64(2), inst.WRIID)
	assert.True(t, inst.WRIIDIsLive)
}

func TestInstance_RelinquishOwnership_PromotesAnotherRegisteredWriter(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{}
	inst.RegisterWriter(1, core.GUID{1}, 5, false)
	inst.RefreshOwnerCache(1, core.GUID{1}, 5)
	inst.RegisterWriter(2, core.GUID{2}, 3, false)
	inst.RefreshOwnerCache(2, core.GUID{2}, 3)

	inst.RelinquishOwnership(2)

	assert.True(t, inst.HasWriter(1))
	assert.True(t, inst.HasWriter(2), "relinquish must not unregister the writer")
	assert.NotEqual(t, uint64(2), inst.WRIID, "a relinquished owner must not remain the cached owner")
}

func TestInstance_RelinquishOwnership_SoleWriterMovesIntoTable(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{}
	inst.RegisterWriter(1, core.GUID{1}, 5, false)
	inst.RefreshOwnerCache(1, core.GUID{1}, 5)

	inst.RelinquishOwnership(1)

	assert.True(t, inst.HasWriter(1))
	assert.False(t, inst.WRIIDIsLive)
}

func TestInstance_EmptyAndDestroyable(t *testing.T) {
	t.Parallel()

	inst := &instance.Instance{}
	assert.True(t, inst.Empty())
	assert.True(t, inst.Destroyable())

	inst.RegisterWriter(1, core.GUID{1}, 0, false)
	assert.True(t, inst.Empty(), "a writer registration alone does not hold any sample")
	assert.False(t, inst.Destroyable(), "a live writer registration blocks destruction")

	inst.UnregisterWriter(1)
	assert.True(t, inst.Destroyable())
}

func TestStore_CreateLookupRemove(t *testing.T) {
	t.Parallel()

	s := instance.New()
	assert.Equal(t, 0, s.Len())

	inst := s.Create(42)
	assert.Equal(t, 1, s.Len())

	found, ok := s.Lookup(42)
	require.True(t, ok)
	assert.Same(t, inst, found)

	s.Remove(inst)
	assert.Equal(t, 0, s.Len())

	_, ok = s.Lookup(42)
	assert.False(t, ok)
}

func TestStore_MarkNonEmpty_LinksIntoEachWalk(t *testing.T) {
	t.Parallel()

	s := instance.New()
	a := s.Create(1)
	b := s.Create(2)

	// Neither is linked yet: a freshly-created instance starts empty.
	var seen []uint64

	s.Each(func(inst *instance.Instance) bool {
		seen = append(seen, inst.IID)
		return true
	})
	assert.Empty(t, seen)

	s.MarkNonEmpty(a)
	s.MarkNonEmpty(b)

	seen = nil
	s.Each(func(inst *instance.Instance) bool {
		seen = append(seen, inst.IID)
		return true
	})
	assert.ElementsMatch(t, []uint64{1, 2}, seen)
}

func TestStore_MarkNonEmpty_IsIdempotent(t *testing.T) {
	t.Parallel()

	s := instance.New()
	a := s.Create(1)

	s.MarkNonEmpty(a)
	s.MarkNonEmpty(a) // must not corrupt the ring by double-linking

	count := 0
	s.Each(func(*instance.Instance) bool {
		count++
		return true
	})
	assert.Equal(t, 1, count)
}

func TestStore_MarkEmpty_UnlinksFromEachWalk(t *testing.T) {
	t.Parallel()

	s := instance.New()
	a := s.Create(1)
	b := s.Create(2)
	s.MarkNonEmpty(a)
	s.MarkNonEmpty(b)

	s.MarkEmpty(a)

	var seen []uint64

	s.Each(func(inst *instance.Instance) bool {
		seen = append(seen, inst.IID)
		return true
	})
	assert.Equal(t, []uint64{2}, seen)
}

func TestStore_Each_StopsEarlyAndToleratesSelfRemoval(t *testing.T) {
	t.Parallel()

	s := instance.New()
	a := s.Create(1)
	b := s.Create(2)
	c := s.Create(3)
	s.MarkNonEmpty(a)
	s.MarkNonEmpty(b)
	s.MarkNonEmpty(c)

	var seen []uint64

	s.Each(func(inst *instance.Instance) bool {
		seen = append(seen, inst.IID)
		if inst.IID == 1 {
			s.MarkEmpty(inst) // simulate a take() emptying the instance mid-walk
		}

		return inst.IID != 2
	})

	assert.Equal(t, []uint64{1, 2}, seen, "the walk must stop right after the instance that returned false")
}

func TestStore_EachAll_ReachesEmptyInstancesToo(t *testing.T) {
	t.Parallel()

	s := instance.New()
	s.Create(1) // never marked non-empty

	var seen []uint64

	s.EachAll(func(inst *instance.Instance) bool {
		seen = append(seen, inst.IID)
		return true
	})
	assert.Equal(t, []uint64{1}, seen)
}
