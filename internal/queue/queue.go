// Package queue implements the tag-ordered event queue: a min-priority
// queue keyed by (tag, insertion-seq), stable under ties (spec.md §3).
//
// Grounded on Mindburn-Labs-helm's internal/pkg/kernel.DeterministicScheduler,
// which wraps container/heap with an explicit tertiary sort key and a
// monotonic sequence-number tiebreaker for stability — the same shape
// spec.md §3 asks for ("min-heap keyed by (tag, insertion-seq). Stable
// under ties"). container/heap is the idiomatic stdlib choice the pack
// itself reaches for; no third-party priority-queue library appears
// anywhere in the corpus.
package queue

import (
	"container/heap"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/tag"
)

// Entry is one pending event: an action to deliver a payload to, at a
// specific tag. Payload is the scheduled value, carried opaquely
// (the queue itself never inspects it) so the queue stays untyped over
// the many payload types actions carry.
type Entry struct {
	Tag      tag.Tag
	Action   ids.ActionID
	Payload  any
	insSeq   uint64
}

type heapSlice []Entry

func (h heapSlice) Len() int { return len(h) }

func (h heapSlice) Less(i, j int) bool {
	if c := h[i].Tag.Compare(h[j].Tag); c != 0 {
		return c < 0
	}
	return h[i].insSeq < h[j].insSeq
}

func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapSlice) Push(x any) { *h = append(*h, x.(Entry)) }

func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Queue is the scheduler's tag-ordered min-heap of pending events.
type Queue struct {
	heap   heapSlice
	nextID uint64
}

// New returns an empty Queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.heap)
	return q
}

// Push inserts an event. Ties on Tag are broken by insertion order,
// giving the queue FIFO stability (spec.md §3).
func (q *Queue) Push(t tag.Tag, action ids.ActionID, payload any) {
	e := Entry{Tag: t, Action: action, Payload: payload, insSeq: q.nextID}
	q.nextID++
	heap.Push(&q.heap, e)
}

// Peek returns the earliest pending tag without removing anything.
func (q *Queue) Peek() (tag.Tag, bool) {
	if len(q.heap) == 0 {
		return tag.Tag{}, false
	}
	return q.heap[0].Tag, true
}

// Empty reports whether the queue has no pending events.
func (q *Queue) Empty() bool { return len(q.heap) == 0 }

// Len returns the number of pending events.
func (q *Queue) Len() int { return len(q.heap) }

// DrainTag pops and returns every entry whose Tag equals the queue's
// earliest tag, per spec.md §4.1 step 3: "Drain all events with exactly
// that tag from the queue." Returns (nil, false) if the queue is empty.
func (q *Queue) DrainTag() ([]Entry, bool) {
	if q.Empty() {
		return nil, false
	}
	target := q.heap[0].Tag
	var drained []Entry
	for len(q.heap) > 0 && q.heap[0].Tag.Equal(target) {
		e := heap.Pop(&q.heap).(Entry)
		drained = append(drained, e)
	}
	return drained, true
}
