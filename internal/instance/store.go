package instance

// Store is the hash-keyed instance table plus the circular
// doubly-linked list threading only the non-empty instances (§4.1), so
// a filterless read/take walks O(non-empty count) instead of O(all
// instances ever seen).
//
// A Store is not safe for concurrent use; the owning RHC serializes
// access under its single mutex (§5).
type Store struct {
	byIID map[uint64]*Instance

	// sentinel is a dummy node anchoring the circular non-empty list;
	// it is never returned to callers and never appears in byIID. This
	// mirrors the classic sentinel-node trick (as used by
	// container/list) to make insert/remove branch-free.
	sentinel Instance
}

// New returns an empty instance store.
func New() *Store {
	s := &Store{byIID: make(map[uint64]*Instance)}
	s.sentinel.prev = &s.sentinel
	s.sentinel.next = &s.sentinel

	return s
}

// Lookup finds an instance by iid.
func (s *Store) Lookup(iid uint64) (*Instance, bool) {
	inst, ok := s.byIID[iid]

	return inst, ok
}

// Create inserts a brand-new, empty instance. The caller is
// responsible for linking it into the non-empty list once it holds a
// sample (via MarkNonEmpty) — a freshly created instance starts empty
// whenever it's created purely from a DISPOSE with no data.
func (s *Store) Create(iid uint64) *Instance {
	inst := &Instance{IID: iid}
	s.byIID[iid] = inst

	return inst
}

// Remove deletes inst from the store, unlinking it from the non-empty
// list first if necessary. Callers must have already verified
// inst.Destroyable().
func (s *Store) Remove(inst *Instance) {
	s.unlink(inst)
	delete(s.byIID, inst.IID)
}

// Len returns the total number of tracked instances (empty or not).
func (s *Store) Len() int { return len(s.byIID) }

// MarkNonEmpty links inst into the non-empty list if it isn't already
// linked. Safe to call redundantly.
func (s *Store) MarkNonEmpty(inst *Instance) {
	if inst.next != nil || inst.prev != nil {
		return
	}

	tail := s.sentinel.prev
	tail.next = inst
	inst.prev = tail
	inst.next = &s.sentinel
	s.sentinel.prev = inst
}

// MarkEmpty unlinks inst from the non-empty list if it is linked. Safe
// to call redundantly. It does not remove inst from the store — an
// empty instance with live writer registrations stays in byIID.
func (s *Store) MarkEmpty(inst *Instance) {
	s.unlink(inst)
}

func (s *Store) unlink(inst *Instance) {
	if inst.next == nil && inst.prev == nil {
		return
	}

	inst.prev.next = inst.next
	inst.next.prev = inst.prev
	inst.prev = nil
	inst.next = nil
}

// Each calls fn for every non-empty instance in arbitrary but stable
// (insertion) order, stopping early if fn returns false. It is safe
// for fn to remove the current instance from the store (e.g. after a
// take empties it) but not to remove other instances.
func (s *Store) Each(fn func(*Instance) bool) {
	for n := s.sentinel.next; n != &s.sentinel; {
		next := n.next // capture before fn possibly unlinks n

		if !fn(n) {
			return
		}

		n = next
	}
}

// EachAll calls fn for every tracked instance, empty or not, in
// arbitrary order. Used by condition attach (§4.5 "evaluate predicate
// against every instance's key projection"), which must also reach
// instances that currently hold no samples.
func (s *Store) EachAll(fn func(*Instance) bool) {
	for _, inst := range s.byIID {
		if !fn(inst) {
			return
		}
	}
}
