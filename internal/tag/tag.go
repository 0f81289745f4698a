// Package tag implements arithmetic on logical time: Duration, Instant,
// and the (offset, microstep) Tag that totally orders every event the
// scheduler processes.
//
// Grounded on the teacher's internal/engine.Clock, which hands out a
// strictly increasing int64 sequence number to stamp events for
// deterministic ordering and replay (engine/clock.go). A single scalar
// sequence is not expressive enough for a reactor scheduler — two events
// can share a wall/logical offset and only differ by microstep — so this
// package generalizes that idea to a lexicographically ordered pair
// while keeping the same "atomic, replay-stable, single authority"
// character as Clock.
package tag

import "fmt"

// Duration is a signed count of nanoseconds.
type Duration int64

// Instant is a Duration interpreted as an offset from program start.
type Instant = Duration

// Zero is the zero duration / instant.
const Zero Duration = 0

// Tag totally orders events in logical time via (offset, microstep).
type Tag struct {
	Offset    Duration
	Microstep uint32
}

// Origin is the first tag any run begins at.
var Origin = Tag{Offset: 0, Microstep: 0}

// New constructs a Tag.
func New(offset Duration, microstep uint32) Tag {
	return Tag{Offset: offset, Microstep: microstep}
}

// Plus returns the tag reached by scheduling with delay d from t: the
// microstep resets to zero because a positive delay moves to a new
// offset entirely (spec.md §3: "tag + d = (offset + d, 0)").
func (t Tag) Plus(d Duration) Tag {
	return Tag{Offset: t.Offset + d, Microstep: 0}
}

// NextMicrostep returns the same-instant next microstep of t, i.e. the
// tag reached by a zero-delay logical schedule at t (spec.md §3).
func (t Tag) NextMicrostep() Tag {
	return Tag{Offset: t.Offset, Microstep: t.Microstep + 1}
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater
// than other, using lexicographic order on (offset, microstep) — the
// total order spec.md §3 requires.
func (t Tag) Compare(other Tag) int {
	switch {
	case t.Offset < other.Offset:
		return -1
	case t.Offset > other.Offset:
		return 1
	case t.Microstep < other.Microstep:
		return -1
	case t.Microstep > other.Microstep:
		return 1
	default:
		return 0
	}
}

// Less reports whether t sorts strictly before other.
func (t Tag) Less(other Tag) bool { return t.Compare(other) < 0 }

// Equal reports whether t and other are the same tag.
func (t Tag) Equal(other Tag) bool { return t.Compare(other) == 0 }

// String renders a tag as "(offsetns,microstep)" for logs and traces.
func (t Tag) String() string {
	return fmt.Sprintf("(%d,%d)", t.Offset, t.Microstep)
}
