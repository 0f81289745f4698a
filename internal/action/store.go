// Package action implements the per-action ActionStore: an
// offset-bucketed, microstep-indexed, prunable value store (spec.md §3,
// §4.3).
//
// Grounded on the teacher's internal/engine eventQueue (engine/queue.go),
// which keeps a compact, mutation-friendly slice rather than reaching
// for a tree, and nils out consumed slots so the backing array doesn't
// retain stale pointers. The same discipline — dense slice indexed by a
// small counter, explicit zeroing on removal — is applied here to the
// per-offset microstep sequence. No ordered-map/btree library appears
// anywhere in the example corpus, so offsets are kept in a sorted slice
// searched with the standard library's sort.Search, per spec.md §4.3's
// note that "a dense sequence beats a tree inside the bucket."
package action

import "sort"

// OffsetBucket holds every payload scheduled at one offset, indexed by
// microstep. Entries is gap-free from index 0 up to len-1; a nil entry
// at index i means "microstep i was never pushed, or has been pruned."
type OffsetBucket[T any] struct {
	Offset       int64
	NextMicrostep uint32
	Entries      []*T
}

func (b *OffsetBucket[T]) ensureLen(n int) {
	if len(b.Entries) >= n {
		return
	}
	grown := make([]*T, n)
	copy(grown, b.Entries)
	b.Entries = grown
}

func (b *OffsetBucket[T]) set(microstep uint32, v T) {
	b.ensureLen(int(microstep) + 1)
	val := v
	b.Entries[microstep] = &val
	if microstep+1 > b.NextMicrostep {
		b.NextMicrostep = microstep + 1
	}
}

func (b *OffsetBucket[T]) get(microstep uint32) (T, bool) {
	if int(microstep) >= len(b.Entries) {
		var zero T
		return zero, false
	}
	p := b.Entries[microstep]
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// empty reports whether every entry in the bucket has been dropped.
func (b *OffsetBucket[T]) empty() bool {
	for _, e := range b.Entries {
		if e != nil {
			return false
		}
	}
	return true
}

// Store is the offset-bucket map for a single action, generic over its
// payload type T. It is single-owner (the scheduler thread) per spec.md
// §4.3's thread-safety contract; physical ingress never writes to it
// directly.
type Store[T any] struct {
	// buckets is kept sorted ascending by Offset for clear_older_than and
	// get_current to binary-search.
	buckets []*OffsetBucket[T]
}

// New creates an empty ActionStore.
func New[T any]() *Store[T] {
	return &Store[T]{}
}

func (s *Store[T]) find(offset int64) (int, *OffsetBucket[T]) {
	i := sort.Search(len(s.buckets), func(i int) bool {
		return s.buckets[i].Offset >= offset
	})
	if i < len(s.buckets) && s.buckets[i].Offset == offset {
		return i, s.buckets[i]
	}
	return i, nil
}

func (s *Store[T]) bucketAt(offset int64) *OffsetBucket[T] {
	i, b := s.find(offset)
	if b != nil {
		return b
	}
	b = &OffsetBucket[T]{Offset: offset}
	s.buckets = append(s.buckets, nil)
	copy(s.buckets[i+1:], s.buckets[i:])
	s.buckets[i] = b
	return b
}

// Push places v at (offset, microstep), overwriting any prior value at
// the exact same tag, and advances the bucket's next-microstep counter
// past microstep (spec.md §3).
func (s *Store[T]) Push(offset int64, microstep uint32, v T) {
	s.bucketAt(offset).set(microstep, v)
}

// GetCurrent prunes everything strictly older than (offset, microstep)
// and then returns the payload at exactly that tag, if any (spec.md §3:
// "calls clear_older_than(t) first").
func (s *Store[T]) GetCurrent(offset int64, microstep uint32) (T, bool) {
	s.ClearOlderThan(offset, microstep)
	i, b := s.find(offset)
	_ = i
	if b == nil {
		var zero T
		return zero, false
	}
	return b.get(microstep)
}

// NextMicrostepForOffset returns max(bucket.NextMicrostep, min) for the
// bucket at offset, or min if no bucket exists at that offset (spec.md
// §3).
func (s *Store[T]) NextMicrostepForOffset(offset int64, min uint32) uint32 {
	_, b := s.find(offset)
	if b == nil {
		return min
	}
	if b.NextMicrostep > min {
		return b.NextMicrostep
	}
	return min
}

// ClearOlderThan drops every bucket with Offset < offset, and within the
// bucket at exactly offset, drops microsteps < microstep. An emptied
// bucket is removed entirely, erasing its NextMicrostep counter (spec.md
// §3) — this is the invariant that bounds memory in long runs.
func (s *Store[T]) ClearOlderThan(offset int64, microstep uint32) {
	cut := sort.Search(len(s.buckets), func(i int) bool {
		return s.buckets[i].Offset >= offset
	})
	if cut > 0 {
		s.buckets = s.buckets[cut:]
	}
	if len(s.buckets) == 0 {
		return
	}
	first := s.buckets[0]
	if first.Offset != offset {
		return
	}
	for i := 0; i < int(microstep) && i < len(first.Entries); i++ {
		first.Entries[i] = nil
	}
	if first.empty() {
		s.buckets = s.buckets[1:]
	}
}

// Len reports the number of live offset buckets. Used by tests and
// telemetry to observe pruning behavior.
func (s *Store[T]) Len() int { return len(s.buckets) }
