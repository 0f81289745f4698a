// Package reactorctx implements Context, the per-reaction API surface
// spec.md §4.5 describes: reading triggers and ports, writing effects,
// scheduling actions, and requesting shutdown. Every handle a Context
// method touches was resolved once at graph-build time; nothing here
// allocates on the hot path (spec.md §4.5's "no heap allocation occurs
// on the hot path").
//
// Grounded on the teacher's engine.Engine, whose Enqueue/NewFlow/Clock
// methods are the same kind of narrow, closure-backed API surface handed
// to code that must not reach into engine internals directly.
package reactorctx

import (
	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/port"
	"github.com/latticeflow/reactor/internal/tag"
)

// Services bundles the scheduler-owned callbacks a Context delegates to.
// The scheduler constructs one Services value per run and reuses it
// across every reaction triggering; only the per-triggering fields of
// Context itself (Tag, ReactionID, Present) change between calls.
type Services struct {
	Ports           *port.Store
	PhysicalNow     func() tag.Instant
	ScheduleAction  func(action ids.ActionID, delay tag.Duration, value any) error
	RequestShutdown func(after *tag.Duration)
	GetActionValue  func(action ids.ActionID) (any, bool)
}

// Context is the scoped, per-triggering handle passed to a reaction
// body. It is a plain value struct — reused, not reallocated, across
// triggerings (spec.md §4.5).
type Context struct {
	svc        *Services
	tag        tag.Tag
	reactionID ids.ReactionID
	present    ids.Set
}

// New constructs a Context bound to a fixed Services instance. The
// scheduler calls Retarget before every triggering to update the
// mutable fields in place.
func New(svc *Services) *Context {
	return &Context{svc: svc}
}

// Retarget rebinds a Context to a new triggering without allocating.
func (c *Context) Retarget(t tag.Tag, reaction ids.ReactionID, present ids.Set) {
	c.tag = t
	c.reactionID = reaction
	c.present = present
}

// GetTag returns the tag this triggering is running at.
func (c *Context) GetTag() tag.Tag { return c.tag }

// GetElapsedLogicalTime returns the logical duration since program
// start, i.e. the current tag's offset.
func (c *Context) GetElapsedLogicalTime() tag.Duration { return c.tag.Offset }

// GetPhysicalTime returns the current wall-clock instant, as reported by
// the scheduler's physical clock source.
func (c *Context) GetPhysicalTime() tag.Instant { return c.svc.PhysicalNow() }

// IsPresent reports whether trigger fired this tag.
func (c *Context) IsPresent(trigger ids.TriggerID) bool {
	return c.present.Has(uint32(trigger))
}

// GetPortValueAny returns the raw value at port p and whether it is
// present. Prefer the generic GetPortValue for typed access.
func (c *Context) GetPortValueAny(p ids.PortID) (any, bool) {
	return c.svc.Ports.Get(p)
}

// SetPortValueAny writes v to port p. Fatal (returns *port.ErrDoubleWrite)
// if p was already written this tag. Prefer the generic SetPortValue.
func (c *Context) SetPortValueAny(p ids.PortID, v any) error {
	return c.svc.Ports.Set(p, v)
}

// ScheduleActionAny schedules action for delivery per spec.md §4.2's
// logical/physical tag-assignment rules, which the scheduler's closure
// applies based on the action's declared kind. Prefer the generic
// ScheduleAction for typed access.
func (c *Context) ScheduleActionAny(action ids.ActionID, delay tag.Duration, value any) error {
	return c.svc.ScheduleAction(action, delay, value)
}

// ScheduleShutdown requests an orderly stop at current-tag + d (or
// immediately, if d is nil), per spec.md §4.5 and §5.
func (c *Context) ScheduleShutdown(d *tag.Duration) {
	c.svc.RequestShutdown(d)
}

// GetActionValueAny reads action's ActionStore at the current tag.
// Prefer the generic GetActionValue for typed access.
func (c *Context) GetActionValueAny(action ids.ActionID) (any, bool) {
	return c.svc.GetActionValue(action)
}

// GetPortValue is the typed form of GetPortValueAny.
func GetPortValue[T any](c *Context, p ids.PortID) (T, bool) {
	v, ok := c.GetPortValueAny(p)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, true
}

// SetPortValue is the typed form of SetPortValueAny.
func SetPortValue[T any](c *Context, p ids.PortID, v T) error {
	return c.SetPortValueAny(p, v)
}

// ScheduleAction is the typed form of ScheduleActionAny. A nil value
// schedules a pure trigger with no payload.
func ScheduleAction[T any](c *Context, action ids.ActionID, delay tag.Duration, value *T) error {
	if value == nil {
		return c.ScheduleActionAny(action, delay, nil)
	}
	return c.ScheduleActionAny(action, delay, *value)
}

// GetActionValue is the typed form of GetActionValueAny.
func GetActionValue[T any](c *Context, action ids.ActionID) (T, bool) {
	v, ok := c.GetActionValueAny(action)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, true
}
