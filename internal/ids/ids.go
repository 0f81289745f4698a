// Package ids defines the dense integer handles used to reference
// reactors, reactions, ports, and actions without owning pointers.
//
// Grounded on the teacher's internal/engine cycle/quota maps, which key
// per-flow state by opaque string tokens; here the tokens are dense
// uint32s assigned once by the builder, per spec.md's "single
// authoritative arena per table" design note (spec.md §9).
package ids

import "fmt"

// ReactorID identifies a reactor instance.
type ReactorID uint32

// ReactionID identifies a reaction within the static dependency graph.
type ReactionID uint32

// PortID identifies a single typed value cell.
type PortID uint32

// ActionID identifies a named event source (logical or physical).
type ActionID uint32

// TriggerID is the union type over the handles that can trigger a
// reaction: an ActionID, a PortID, or a timer (represented as an
// ActionID by the builder — timers are lowered to logical actions with a
// period, per the builder contract in spec.md §6).
type TriggerID uint32

func (r ReactorID) String() string  { return fmt.Sprintf("reactor#%d", uint32(r)) }
func (r ReactionID) String() string { return fmt.Sprintf("reaction#%d", uint32(r)) }
func (p PortID) String() string     { return fmt.Sprintf("port#%d", uint32(p)) }
func (a ActionID) String() string   { return fmt.Sprintf("action#%d", uint32(a)) }

// portTriggerFlag disambiguates a PortID from an ActionID inside the
// shared TriggerID space (spec.md §3 defines TriggerID as its own id
// space over "actions/ports/timers"). Timers are lowered to ordinary
// logical actions by the builder, so only two kinds need disambiguating.
const portTriggerFlag uint32 = 1 << 31

// ActionTrigger returns the TriggerID an action fires when it is
// present at a tag.
func ActionTrigger(a ActionID) TriggerID { return TriggerID(uint32(a)) }

// PortTrigger returns the TriggerID a port fires when it is written at a
// tag.
func PortTrigger(p PortID) TriggerID { return TriggerID(uint32(p) | portTriggerFlag) }

// IsPortTrigger reports whether t names a port rather than an action.
func (t TriggerID) IsPortTrigger() bool { return uint32(t)&portTriggerFlag != 0 }

// AsPort decodes a port TriggerID back to its PortID. Only valid when
// IsPortTrigger is true.
func (t TriggerID) AsPort() PortID { return PortID(uint32(t) &^ portTriggerFlag) }

// AsAction decodes an action TriggerID back to its ActionID. Only valid
// when IsPortTrigger is false.
func (t TriggerID) AsAction() ActionID { return ActionID(uint32(t)) }

// Set is a small dense-friendly set over uint32-backed TriggerID handles.
// Action and port triggers are kept in two separate bitsets, each
// indexed by the handle's dense id with portTriggerFlag masked off,
// rather than by the raw TriggerID: the flag bit alone spans a
// 31-bit-wide gap between the two kinds, and indexing a single bitset by
// the raw value would size that bitset to the flag's bit position
// instead of to the builder's actual (small, dense) id count. In steady
// state neither backing array grows again once each has seen its
// largest member, matching the "no allocation on the hot path"
// invariant (spec.md §4.5).
type Set struct {
	actionBits []uint64
	portBits   []uint64
}

// NewSet returns a Set sized to hold handles in [0, capacity) for each
// kind (action and port triggers grow independently from there).
func NewSet(capacity int) Set {
	words := (capacity + 63) / 64
	return Set{actionBits: make([]uint64, words), portBits: make([]uint64, words)}
}

func growTo(bits []uint64, word int) []uint64 {
	if word < len(bits) {
		return bits
	}
	grown := make([]uint64, word+1)
	copy(grown, bits)
	return grown
}

// Add inserts h into the set.
func (s *Set) Add(h uint32) {
	idx := h &^ portTriggerFlag
	word := int(idx / 64)
	if h&portTriggerFlag != 0 {
		s.portBits = growTo(s.portBits, word)
		s.portBits[word] |= 1 << (idx % 64)
	} else {
		s.actionBits = growTo(s.actionBits, word)
		s.actionBits[word] |= 1 << (idx % 64)
	}
}

// Has reports whether h is a member of the set.
func (s Set) Has(h uint32) bool {
	idx := h &^ portTriggerFlag
	word := int(idx / 64)
	if h&portTriggerFlag != 0 {
		if word >= len(s.portBits) {
			return false
		}
		return s.portBits[word]&(1<<(idx%64)) != 0
	}
	if word >= len(s.actionBits) {
		return false
	}
	return s.actionBits[word]&(1<<(idx%64)) != 0
}

// Clear resets every bit without releasing the backing arrays, so a Set
// reused across tags does not reallocate.
func (s *Set) Clear() {
	for i := range s.actionBits {
		s.actionBits[i] = 0
	}
	for i := range s.portBits {
		s.portBits[i] = 0
	}
}

// Intersects reports whether s and other share any member. Used by the
// scheduler to test a reaction's precomputed trigger set against the
// per-tag union of present triggers (spec.md §4.4).
func (s Set) Intersects(other Set) bool {
	return bitsIntersect(s.actionBits, other.actionBits) || bitsIntersect(s.portBits, other.portBits)
}

func bitsIntersect(a, b []uint64) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i]&b[i] != 0 {
			return true
		}
	}
	return false
}

// Each calls fn for every member of the set: every action trigger in
// ascending id order, then every port trigger in ascending id order.
func (s Set) Each(fn func(h uint32)) {
	eachBit(s.actionBits, func(idx uint32) { fn(idx) })
	eachBit(s.portBits, func(idx uint32) { fn(idx | portTriggerFlag) })
}

func eachBit(bits []uint64, fn func(idx uint32)) {
	for word, w := range bits {
		for w != 0 {
			bit := w & (-w)
			idx := trailingZeros64(bit)
			fn(uint32(word*64 + idx))
			w ^= bit
		}
	}
}

func trailingZeros64(v uint64) int {
	if v == 0 {
		return 64
	}
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}
