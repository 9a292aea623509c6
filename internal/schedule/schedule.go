// Package schedule implements the generic keyed expiry priority queue
// shared by internal/deadline and internal/lifespan (§4.6, §6.1
// "Scheduler: register(instance, expiry), unregister, renew,
// next_missed(now)"). No priority-queue library appears anywhere in
// the retrieval pack, so this is built on the standard library's
// container/heap — see DESIGN.md for that justification.
package schedule

import (
	"container/heap"
	"time"
)

// Entry is one scheduled expiry, keyed by K (an instance id or a
// sample identity, depending on the caller).
type Entry[K comparable] struct {
	Key    K
	Expiry time.Time

	index int // heap.Interface bookkeeping
}

// Queue is a min-heap of Entry ordered by Expiry, with O(log n)
// register/renew/unregister and O(1) peek of the next expiry. A Queue
// is not safe for concurrent use; callers serialize access under their
// own mutex (the RHC's, in production use).
type Queue[K comparable] struct {
	items  []*Entry[K]
	byKey  map[K]*Entry[K]
}

// New returns an empty scheduling queue.
func New[K comparable]() *Queue[K] {
	return &Queue[K]{byKey: make(map[K]*Entry[K])}
}

// Register schedules key to expire at expiry, replacing any existing
// registration for key (equivalent to Renew).
func (q *Queue[K]) Register(key K, expiry time.Time) {
	if e, ok := q.byKey[key]; ok {
		e.Expiry = expiry
		heap.Fix((*innerHeap[K])(q), e.index)

		return
	}

	e := &Entry[K]{Key: key, Expiry: expiry}
	q.byKey[key] = e
	heap.Push((*innerHeap[K])(q), e)
}

// Renew is an alias for Register, matching the collaborator interface
// named in §6.1.
func (q *Queue[K]) Renew(key K, expiry time.Time) { q.Register(key, expiry) }

// Unregister removes key's scheduled expiry, if any. Safe to call
// redundantly.
func (q *Queue[K]) Unregister(key K) {
	e, ok := q.byKey[key]
	if !ok {
		return
	}

	heap.Remove((*innerHeap[K])(q), e.index)
	delete(q.byKey, key)
}

// Registered reports whether key currently has a scheduled expiry.
func (q *Queue[K]) Registered(key K) bool {
	_, ok := q.byKey[key]

	return ok
}

// Len returns the number of scheduled entries.
func (q *Queue[K]) Len() int { return len(q.items) }

// NextExpiry returns the earliest scheduled expiry and true, or the
// zero time and false if the queue is empty.
func (q *Queue[K]) NextExpiry() (time.Time, bool) {
	if len(q.items) == 0 {
		return time.Time{}, false
	}

	return q.items[0].Expiry, true
}

// PopExpired removes and returns every entry whose Expiry is at or
// before now, earliest first. Callers drive this from their own clock
// source (wall-clock or, in tests, fixed instants).
func (q *Queue[K]) PopExpired(now time.Time) []Entry[K] {
	var due []Entry[K]

	for len(q.items) > 0 && !q.items[0].Expiry.After(now) {
		e := heap.Pop((*innerHeap[K])(q)).(*Entry[K])
		delete(q.byKey, e.Key)
		due = append(due, *e)
	}

	return due
}

// innerHeap adapts Queue to container/heap.Interface without exposing
// heap internals on the public type.
type innerHeap[K comparable] Queue[K]

func (h *innerHeap[K]) Len() int { return len(h.items) }

func (h *innerHeap[K]) Less(i, j int) bool { return h.items[i].Expiry.Before(h.items[j].Expiry) }

func (h *innerHeap[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *innerHeap[K]) Push(x any) {
	e := x.(*Entry[K])
	e.index = len(h.items)
	h.items = append(h.items, e)
}

func (h *innerHeap[K]) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]

	return e
}
