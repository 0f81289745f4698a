// Package port implements the PortStore: one typed value cell per port,
// plus contiguous pointer-array views into those cells that reactions
// read and write without any per-triggering allocation (spec.md §3,
// §4.6).
//
// Grounded on the teacher's internal/ir sealed-value pattern (ir/value.go:
// IRValue/IRString/IRInt/...), which type-erases behind a small closed
// set of concrete types. A reactor port can carry any Go type the
// builder declares, so the erasure here is done with `any` plus a
// recorded reflect.Type per cell, checked once at view-construction time
// — "one type check per reaction-trigger, not per field access" (spec.md
// §9) — rather than the teacher's closed sum type.
package port

import (
	"fmt"
	"reflect"

	"github.com/latticeflow/reactor/internal/ids"
)

// cell is one port's value slot. Present is true only while a writer has
// produced a value for the current tag (spec.md §3: "Some iff a writer
// produced a value at this tag").
type cell struct {
	typ     reflect.Type
	value   any
	present bool
	written bool // set once per tag on first write; a second write is fatal
}

// Store owns every port's value cell for one runtime instance. Cells and
// the pointer table built over them are frozen after NewStore (spec.md §3:
// "PortStore pointer arrays are built at startup and frozen").
type Store struct {
	cells []cell
}

// NewStore allocates a Store for len(types) ports. Each port's Go type is
// registered so later Set calls can be type-checked once.
func NewStore(types []reflect.Type) *Store {
	cells := make([]cell, len(types))
	for i, t := range types {
		cells[i].typ = t
	}
	return &Store{cells: cells}
}

// ErrDoubleWrite is the sentinel underlying a fatal double-write error;
// scheduler.FatalError wraps it with tag/reaction context.
type ErrDoubleWrite struct {
	Port ids.PortID
}

func (e *ErrDoubleWrite) Error() string {
	return fmt.Sprintf("port %s written twice in the same tag", e.Port)
}

// Set writes v to the cell for port p. Returns *ErrDoubleWrite if the
// cell already has a value this tag (spec.md §3: "validated-away build
// error" for multiple *static* writers; a runtime double write from the
// same reaction body or a builder miss is the fatal condition spec.md
// §4.1 and §7 both call out).
func (s *Store) Set(p ids.PortID, v any) error {
	c := &s.cells[p]
	if c.written {
		return &ErrDoubleWrite{Port: p}
	}
	if c.typ != nil && reflect.TypeOf(v) != c.typ {
		return fmt.Errorf("port %s: value type %T does not match declared type %s", p, v, c.typ)
	}
	c.value = v
	c.present = true
	c.written = true
	return nil
}

// Get returns the current value of port p and whether it is present
// this tag.
func (s *Store) Get(p ids.PortID) (any, bool) {
	c := &s.cells[p]
	return c.value, c.present
}

// ClearTag empties every cell's value and resets the written flag,
// called once per tag at cleanup (spec.md §4.1 step 6: "Clear port
// value cells").
func (s *Store) ClearTag() {
	for i := range s.cells {
		s.cells[i].value = nil
		s.cells[i].present = false
		s.cells[i].written = false
	}
}

// View is a contiguous slice of PortIDs a single reaction reads or
// writes, built once at startup over a static sub-range and reused on
// every triggering — no reallocation on the hot path (spec.md §4.6).
type View struct {
	store *Store
	ports []ids.PortID
}

// NewView constructs a view over the given ports, type-checking every
// port's declared type against expected exactly once (spec.md §4.6:
// "validation of per-port type is performed once during view
// construction by iterating the slice").
func NewView(s *Store, ports []ids.PortID, expected reflect.Type) (View, error) {
	for _, p := range ports {
		c := &s.cells[p]
		if expected != nil && c.typ != nil && c.typ != expected {
			return View{}, fmt.Errorf("port %s: declared type %s does not match view type %s", p, c.typ, expected)
		}
	}
	return View{store: s, ports: ports}, nil
}

// Len returns the number of ports in the view.
func (v View) Len() int { return len(v.ports) }

// Get returns the current value of the i'th port in the view.
func (v View) Get(i int) (any, bool) {
	return v.store.Get(v.ports[i])
}

// Set writes the i'th port in the view. Returns *ErrDoubleWrite on a
// same-tag double write.
func (v View) Set(i int, val any) error {
	return v.store.Set(v.ports[i], val)
}

// IDs exposes the underlying port handles, e.g. for trigger-set
// construction by the graph package.
func (v View) IDs() []ids.PortID { return v.ports }
