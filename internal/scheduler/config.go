package scheduler

import (
	"github.com/latticeflow/reactor/internal/tag"
)

// Config holds the tunables spec.md §6 leaves to the embedder, plus the
// ambient-stack additions SPEC_FULL.md §6 adds on top (recording,
// replay, and the debug-only disjointness check).
type Config struct {
	// FastForward runs the clock as fast as the event queue allows,
	// skipping the wall-time synchronization step of spec.md §4.1.
	FastForward bool

	// Timeout, if non-nil, stops the run once the current tag's offset
	// would exceed it. Nil means run until the queue empties or shutdown
	// is requested.
	Timeout *tag.Duration

	// Keepalive keeps the scheduler alive on an empty queue instead of
	// stopping, waiting for a physical-ingress delivery (spec.md §4.6's
	// "keep the scheduler thread parked" note). With Keepalive off, an
	// attached physical ingress (IngressBuffer >= 0) still keeps Run
	// waiting on an empty queue; a negative IngressBuffer attaches none.
	Keepalive bool

	// Workers bounds level-parallel reaction dispatch. Zero or one runs
	// reactions serially within a level, in ascending id order.
	Workers int

	// IngressBuffer sizes the bounded PhysicalIngress channel.
	IngressBuffer int

	// StrictLevelCheck gates the per-tag graph.AssertLevelDisjoint debug
	// check (SPEC_FULL.md's supplemented feature, off by default because
	// it is O(level size) extra work per tag).
	StrictLevelCheck bool
}

// Option mutates a Config during construction, grounded on the teacher's
// EngineOption functional-options pattern (engine/engine.go).
type Option func(*Config)

// WithFastForward enables or disables fast-forward mode.
func WithFastForward(v bool) Option { return func(c *Config) { c.FastForward = v } }

// WithTimeout stops the run once offset d is reached.
func WithTimeout(d tag.Duration) Option { return func(c *Config) { c.Timeout = &d } }

// WithKeepalive keeps the scheduler parked on an empty queue awaiting
// physical ingress instead of stopping.
func WithKeepalive(v bool) Option { return func(c *Config) { c.Keepalive = v } }

// WithWorkers bounds level-parallel reaction dispatch.
func WithWorkers(n int) Option { return func(c *Config) { c.Workers = n } }

// WithIngressBuffer sizes the bounded physical ingress channel.
func WithIngressBuffer(n int) Option { return func(c *Config) { c.IngressBuffer = n } }

// WithStrictLevelCheck enables the per-tag AssertLevelDisjoint debug
// check.
func WithStrictLevelCheck(v bool) Option { return func(c *Config) { c.StrictLevelCheck = v } }

func defaultConfig() Config {
	return Config{Workers: 1, IngressBuffer: 64}
}
