// Package ingress implements PhysicalIngress: the single external,
// non-deterministic entry point through which the outside world delivers
// events into the scheduler (spec.md §1, §4.2, §4.3).
//
// Grounded on the teacher's engine.eventQueue (engine/queue.go), which is
// itself an MPSC channel wrapper guarding a single-writer consumer loop.
// Here the roles are reversed relative to that file: many producers,
// exactly one consumer (the scheduler's own goroutine), which is what
// spec.md §4.2 relies on to make next_microstep_for_offset consultation
// atomic without an explicit lock.
package ingress

import (
	"context"
	"errors"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/tag"
)

// ErrClosed is returned by Send once the ingress has been closed.
var ErrClosed = errors.New("ingress: closed")

// Message is one externally-delivered event, not yet assigned a tag. The
// scheduler assigns Tag on receipt, per spec.md §4.2's physical-action
// rule.
type Message struct {
	Action ids.ActionID
	Delay  tag.Duration
	Value  any
}

// Ingress is a bounded multi-producer, single-consumer channel. Send
// blocks when the channel is full, giving external producers backpressure
// instead of an unbounded queue (spec.md §4.3's "bounded ingress" note).
type Ingress struct {
	ch     chan Message
	closed chan struct{}
}

// New returns an Ingress with the given channel capacity. A capacity of
// zero makes every Send rendezvous directly with the scheduler's drain
// loop.
func New(capacity int) *Ingress {
	return &Ingress{
		ch:     make(chan Message, capacity),
		closed: make(chan struct{}),
	}
}

// Send delivers msg, blocking until the scheduler drains a slot, ctx is
// canceled, or the ingress is closed.
func (g *Ingress) Send(ctx context.Context, msg Message) error {
	select {
	case <-g.closed:
		return ErrClosed
	default:
	}
	select {
	case g.ch <- msg:
		return nil
	case <-g.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Channel exposes the receive side for the scheduler's select loop. Only
// the scheduler goroutine may receive from it.
func (g *Ingress) Channel() <-chan Message {
	return g.ch
}

// Close stops accepting new messages. Safe to call more than once.
func (g *Ingress) Close() {
	select {
	case <-g.closed:
	default:
		close(g.closed)
	}
}
