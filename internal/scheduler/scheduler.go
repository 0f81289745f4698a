// Package scheduler implements the single-writer discrete-event main
// loop described by spec.md §4: tag selection, wall-clock
// synchronization, level-by-level reaction release, and per-tag
// cleanup.
//
// Grounded on the teacher's engine.Engine (engine/engine.go), whose
// Run loop is likewise a single goroutine draining one event source,
// dispatching to registered handlers, and using functional options for
// construction. Level-parallel dispatch and panic recovery are new here
// (the teacher runs sync rules serially) and are grounded on
// golang.org/x/sync/errgroup, used the same way daviddao-clockmail uses
// it to fan out and rejoin a bounded worker pool.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latticeflow/reactor/internal/action"
	"github.com/latticeflow/reactor/internal/graph"
	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/ingress"
	"github.com/latticeflow/reactor/internal/port"
	"github.com/latticeflow/reactor/internal/queue"
	"github.com/latticeflow/reactor/internal/reactorctx"
	"github.com/latticeflow/reactor/internal/recorder"
	"github.com/latticeflow/reactor/internal/tag"
)

// ActionKind distinguishes logical actions, which are scheduled purely
// in logical time, from physical actions, which additionally consult
// wall-clock time when scheduled from outside a reaction (spec.md §4.2).
type ActionKind uint8

const (
	KindLogical ActionKind = iota
	KindPhysical
)

// ActionMeta is the builder-declared configuration for one action.
type ActionMeta struct {
	ID ids.ActionID

	// Name is a human-readable label recorded in a replay log's action
	// table (spec.md §6). Optional; defaults to the id's String form
	// (e.g. "action#3") when empty.
	Name string

	// TypeName identifies the Go type this action's decoder produces
	// (e.g. "int", "gainpipeline.BoostEvent"). Recorded as a hash in the
	// action table and checked on PreloadReplay so a recording made
	// against a build with different action wiring is rejected instead
	// of silently decoding garbage (spec.md §6, §7).
	TypeName string

	Kind ActionKind

	// MinDelay is the minimum additional delay enforced for physical
	// actions (spec.md §4.2). Ignored for logical actions.
	MinDelay tag.Duration

	// Timer marks this action as a periodic source: the scheduler
	// reschedules it automatically every Period after it fires, without
	// requiring a reaction to do so (spec.md §6's "timers are lowered to
	// logical actions with a period").
	Timer  bool
	Period tag.Duration

	// InitialOffset is the tag at which a Timer first fires. Ignored for
	// non-timer actions.
	InitialOffset tag.Duration
}

// Recorder receives every successful physical-ingress delivery. Only
// external deliveries are recorded — spec.md §1 names the physical
// ingress path as "the only non-deterministic boundary"; physical
// actions scheduled from within a reaction reuse the current tag's
// offset and carry no fresh entropy.
type Recorder interface {
	RecordPhysicalDelivery(action ids.ActionID, t tag.Tag, value any) error
	Flush() error
}

// Decoder reconstructs a typed action value from a recorded JSON
// payload. The builder supplies one per action that appears in a replay
// log, mirroring how port view types are declared once at graph-build
// time (spec.md §4.6).
type Decoder func(json.RawMessage) (any, error)

// Scheduler is the runtime core: the frozen graph, the port and action
// stores, the event queue, and the mutable per-tag state that ties them
// together.
type Scheduler struct {
	g     *graph.Graph
	ports *port.Store
	meta  map[ids.ActionID]ActionMeta

	stores map[ids.ActionID]*action.Store[any]
	q      *queue.Queue

	cfg     Config
	ingress *ingress.Ingress

	telemetry Telemetry
	rec       Recorder

	svc       *reactorctx.Services
	sharedCtx *reactorctx.Context

	// mu guards scheduling calls (ScheduleAction / RequestShutdown) so
	// they are safe to invoke from parallel reaction dispatch as well as
	// from the scheduler's own goroutine while handling ingress.
	mu sync.Mutex

	startedAt        time.Time
	physicalNow      func() tag.Instant
	currentTag       tag.Tag
	shutdownDeadline *tag.Tag
}

// New constructs a Scheduler over a frozen graph, port store, and action
// table. The graph and port store must already reflect every reactor and
// reaction the run will use — spec.md §1 treats graph construction as
// out of scope for the scheduler itself.
func New(g *graph.Graph, ports *port.Store, actions []ActionMeta, opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	meta := make(map[ids.ActionID]ActionMeta, len(actions))
	stores := make(map[ids.ActionID]*action.Store[any], len(actions))
	for _, m := range actions {
		meta[m.ID] = m
		stores[m.ID] = action.New[any]()
	}

	s := &Scheduler{
		g:         g,
		ports:     ports,
		meta:      meta,
		stores:    stores,
		q:         queue.New(),
		cfg:       cfg,
		telemetry: noopTelemetry{},
	}
	if cfg.IngressBuffer >= 0 {
		s.ingress = ingress.New(cfg.IngressBuffer)
	}
	s.physicalNow = func() tag.Instant { return tag.Instant(time.Since(s.startedAt)) }

	s.svc = &reactorctx.Services{
		Ports:           ports,
		PhysicalNow:     func() tag.Instant { return s.physicalNow() },
		ScheduleAction:  s.scheduleFromReaction,
		RequestShutdown: s.requestShutdown,
		GetActionValue:  s.getActionValue,
	}
	s.sharedCtx = reactorctx.New(s.svc)
	return s
}

// SetTelemetry installs a non-default Telemetry sink. Must be called
// before Run.
func (s *Scheduler) SetTelemetry(t Telemetry) { s.telemetry = t }

// SetRecorder installs the physical-ingress recorder. Must be called
// before Run.
func (s *Scheduler) SetRecorder(r Recorder) { s.rec = r }

// ActionTable returns the action table a recorder.Writer for this
// scheduler's build should be constructed with (spec.md §6). Order is
// unspecified.
func (s *Scheduler) ActionTable() []recorder.ActionTableEntry {
	table := make([]recorder.ActionTableEntry, 0, len(s.meta))
	for id, m := range s.meta {
		name := m.Name
		if name == "" {
			name = id.String()
		}
		table = append(table, recorder.ActionTableEntry{ID: id, Name: name, TypeHash: recorder.TypeHash(m.TypeName)})
	}
	return table
}

// Ingress exposes the physical-ingress handle external producers send
// on. Nil once a replay has been preloaded via PreloadReplay, since
// spec.md §4.8 forbids mixing live ingress with replay.
func (s *Scheduler) Ingress() *ingress.Ingress { return s.ingress }

// PreloadReplay injects every frame from a prior recording directly into
// the event queue and its action stores, with the exact tags the
// original run assigned — bypassing the tag-synthesis rules of §4.2
// entirely, per spec.md §4.8. It disables live ingress: replay stands in
// for the non-deterministic boundary the recording already resolved.
func (s *Scheduler) PreloadReplay(r *recorder.Reader, decoders map[ids.ActionID]Decoder) error {
	s.ingress = nil

	fileTable := make(map[ids.ActionID]recorder.ActionTableEntry, len(r.ActionTable()))
	for _, e := range r.ActionTable() {
		fileTable[e.ID] = e
	}

	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &FatalError{Code: ErrCodeReplayCorrupt, Message: err.Error(), Tag: s.currentTag}
		}
		entry, ok := fileTable[f.Action]
		if !ok {
			return &FatalError{Code: ErrCodeReplayTypeMismatch, Message: fmt.Sprintf("action %s not declared in recording's action table", f.Action), Tag: f.Tag}
		}
		if m, ok := s.meta[f.Action]; ok {
			if want := recorder.TypeHash(m.TypeName); want != entry.TypeHash {
				return &FatalError{Code: ErrCodeReplayTypeMismatch, Message: fmt.Sprintf("action %s: recording type hash %x does not match this build's %x", f.Action, entry.TypeHash, want), Tag: f.Tag}
			}
		}
		dec, ok := decoders[f.Action]
		if !ok {
			return &FatalError{Code: ErrCodeReplayCorrupt, Message: fmt.Sprintf("no decoder registered for action %s", f.Action), Tag: f.Tag}
		}
		value, err := dec(f.Value)
		if err != nil {
			return &FatalError{Code: ErrCodeReplayCorrupt, Message: err.Error(), Tag: f.Tag}
		}
		st, ok := s.stores[f.Action]
		if !ok {
			return &FatalError{Code: ErrCodeReplayCorrupt, Message: fmt.Sprintf("unknown action %s in replay log", f.Action), Tag: f.Tag}
		}
		st.Push(int64(f.Tag.Offset), f.Tag.Microstep, value)
		s.q.Push(f.Tag, f.Action, value)
	}
}

func (s *Scheduler) getActionValue(a ids.ActionID) (any, bool) {
	st, ok := s.stores[a]
	if !ok {
		return nil, false
	}
	return st.GetCurrent(int64(s.currentTag.Offset), s.currentTag.Microstep)
}

func (s *Scheduler) requestShutdown(after *tag.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var target tag.Tag
	if after == nil {
		target = s.currentTag
	} else {
		target = tag.New(s.currentTag.Offset+*after, 0)
	}
	if s.shutdownDeadline == nil || target.Less(*s.shutdownDeadline) {
		s.shutdownDeadline = &target
	}
}

// scheduleFromReaction implements spec.md §4.2's two in-reaction cases:
// logical scheduling and physical scheduling with min-delay enforcement.
// Both stay purely in logical time — only external ingress reads the
// physical clock.
func (s *Scheduler) scheduleFromReaction(a ids.ActionID, delay tag.Duration, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meta[a]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %s", a)
	}
	effectiveDelay := delay
	if m.Kind == KindPhysical && m.MinDelay > effectiveDelay {
		effectiveDelay = m.MinDelay
	}
	return s.pushLogical(a, effectiveDelay, value)
}

// pushLogical applies spec.md §4.2's zero-delay microstep-escalation
// rule and non-zero-delay reset-to-microstep-zero rule, then writes to
// both the action's store and the event queue. Caller must hold s.mu.
func (s *Scheduler) pushLogical(a ids.ActionID, delay tag.Duration, value any) error {
	st := s.stores[a]
	var target tag.Tag
	if delay > 0 {
		target = tag.New(s.currentTag.Offset+delay, 0)
	} else {
		microstep := st.NextMicrostepForOffset(int64(s.currentTag.Offset), s.currentTag.Microstep+1)
		target = tag.New(s.currentTag.Offset, microstep)
	}
	st.Push(int64(target.Offset), target.Microstep, value)
	s.q.Push(target, a, value)
	return nil
}

// handleIngress implements spec.md §4.2's external-delivery rule: the
// assigned tag is max(physical_now, current.offset) advanced by at least
// the action's min-delay, with the same-offset microstep-escalation rule
// as the in-reaction path when that computed offset does not advance
// past the tag currently being processed.
func (s *Scheduler) handleIngress(msg ingress.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meta[msg.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %s", msg.Action)
	}
	minDelay := m.MinDelay
	if msg.Delay > minDelay {
		minDelay = msg.Delay
	}
	physNow := s.physicalNow()
	baseOffset := s.currentTag.Offset
	if tag.Duration(physNow) > baseOffset {
		baseOffset = tag.Duration(physNow)
	}
	targetOffset := baseOffset + minDelay

	st := s.stores[msg.Action]
	var target tag.Tag
	if targetOffset > s.currentTag.Offset {
		target = tag.New(targetOffset, st.NextMicrostepForOffset(int64(targetOffset), 0))
	} else {
		target = tag.New(targetOffset, st.NextMicrostepForOffset(int64(targetOffset), s.currentTag.Microstep+1))
	}

	st.Push(int64(target.Offset), target.Microstep, msg.Value)
	s.q.Push(target, msg.Action, msg.Value)

	s.telemetry.PhysicalDelivery(msg.Action, target)
	if s.rec != nil {
		if err := s.rec.RecordPhysicalDelivery(msg.Action, target, msg.Value); err != nil {
			return &FatalError{Code: ErrCodeRecorderIO, Message: err.Error(), Tag: target}
		}
	}
	return nil
}

// scheduleInitialTimers seeds the queue with each timer action's first
// firing. Called once from Run before entering the main loop.
func (s *Scheduler) scheduleInitialTimers() {
	for _, m := range s.meta {
		if !m.Timer {
			continue
		}
		t := tag.New(m.InitialOffset, 0)
		st := s.stores[m.ID]
		st.Push(int64(t.Offset), t.Microstep, nil)
		s.q.Push(t, m.ID, nil)
	}
}

// Run drives the scheduler until it stops, per spec.md §4.1's tag
// selection / wall-clock synchronization / release / cleanup loop.
func (s *Scheduler) Run(ctx context.Context) (StopReason, error) {
	if err := s.g.ValidateLevels(); err != nil {
		return "", &FatalError{Code: ErrCodeLevelViolation, Message: err.Error(), Tag: tag.Origin}
	}
	slog.Info("scheduler starting", "levels", s.g.LevelCount(), "actions", len(s.meta))
	s.startedAt = time.Now()
	s.scheduleInitialTimers()
	if s.rec != nil {
		defer s.rec.Flush()
	}

	var ingressChan <-chan ingress.Message
	if s.ingress != nil {
		ingressChan = s.ingress.Channel()
	}

	for {
		if s.q.Empty() {
			if s.shutdownDeadline != nil {
				slog.Info("scheduler stopping", "reason", StopShutdownRequested)
				return StopShutdownRequested, nil
			}
			if !s.cfg.Keepalive && ingressChan == nil {
				slog.Info("scheduler stopping", "reason", StopQueueEmpty)
				return StopQueueEmpty, nil
			}
			select {
			case <-ctx.Done():
				return StopExternal, ctx.Err()
			case msg, ok := <-ingressChan:
				if !ok {
					ingressChan = nil
					continue
				}
				if err := s.handleIngress(msg); err != nil {
					return "", err
				}
				continue
			}
		}

		next, _ := s.q.Peek()

		if reason, hit := s.stopBefore(next); hit {
			slog.Info("scheduler stopping", "reason", reason, "tag_offset", int64(next.Offset), "tag_microstep", next.Microstep)
			return reason, nil
		}

		if !s.cfg.FastForward {
			wait := time.Duration(next.Offset - s.physicalNow())
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return StopExternal, ctx.Err()
				case msg, ok := <-ingressChan:
					timer.Stop()
					if !ok {
						ingressChan = nil
						continue
					}
					if err := s.handleIngress(msg); err != nil {
						return "", err
					}
					continue
				}
			}
		}

		entries, _ := s.q.DrainTag()
		s.currentTag = next
		s.telemetry.TagStart(next)
		reason, err := s.processTag(next, entries)
		s.telemetry.TagEnd(next)
		if err != nil {
			return "", err
		}
		if s.rec != nil {
			if err := s.rec.Flush(); err != nil {
				return "", &FatalError{Code: ErrCodeRecorderIO, Message: err.Error(), Tag: next}
			}
		}
		if reason != "" {
			return reason, nil
		}
	}
}

// stopBefore reports whether next lies strictly past a configured stop
// point, so the tag currently at the head of the queue is discarded
// rather than processed (spec.md §5's "events strictly after that tag
// are discarded").
func (s *Scheduler) stopBefore(next tag.Tag) (StopReason, bool) {
	if s.shutdownDeadline != nil && next.Compare(*s.shutdownDeadline) > 0 {
		return StopShutdownRequested, true
	}
	if s.cfg.Timeout != nil && next.Offset > *s.cfg.Timeout {
		return StopTimeout, true
	}
	return "", false
}

func (s *Scheduler) processTag(t tag.Tag, entries []queue.Entry) (StopReason, error) {
	slog.Debug("processing tag", "tag_offset", int64(t.Offset), "tag_microstep", t.Microstep, "entries", len(entries))
	present := ids.NewSet(0)
	for _, e := range entries {
		present.Add(uint32(ids.ActionTrigger(e.Action)))
		if m, ok := s.meta[e.Action]; ok && m.Timer && m.Period > 0 {
			s.mu.Lock()
			_ = s.pushLogical(e.Action, m.Period, nil)
			s.mu.Unlock()
		}
	}

	// Recompute the triggered batch fresh before each level rather than
	// once up front: a port a level-0 reaction writes only lands in
	// present after that level's runLevel call returns, so a level-1
	// reaction triggered purely by that port would never appear in a
	// batch computed before level 0 ran (spec.md §4.1 steps 4-5 release
	// levels in order, each seeing every earlier level's writes).
	for level := uint32(0); level < s.g.LevelCount(); level++ {
		rids := s.g.TriggeredBatch(present)[level]
		if len(rids) == 0 {
			continue
		}
		if s.cfg.StrictLevelCheck {
			if err := graph.AssertLevelDisjoint(s.g, rids); err != nil {
				return "", &FatalError{Code: ErrCodeDisjointViolation, Message: err.Error(), Tag: t}
			}
		}
		slog.Debug("dispatching level", "tag_offset", int64(t.Offset), "tag_microstep", t.Microstep, "level", level, "reactions", len(rids))
		if err := s.runLevel(t, rids, &present); err != nil {
			return "", err
		}
	}

	s.ports.ClearTag()
	pruneAt := t.NextMicrostep()
	for _, st := range s.stores {
		st.ClearOlderThan(int64(pruneAt.Offset), pruneAt.Microstep)
	}

	if s.shutdownDeadline != nil && !t.Less(*s.shutdownDeadline) {
		return StopShutdownRequested, nil
	}
	if s.cfg.Timeout != nil && t.Offset >= *s.cfg.Timeout {
		return StopTimeout, nil
	}
	return "", nil
}

// runLevel dispatches one level's reactions and folds the ports they
// wrote back into present. present is a pointer because a level's port
// effects must be visible to the caller's subsequent TriggeredBatch
// calls for later levels (processTag) — a value receiver would only
// ever mutate a local copy, silently discarding any growth-triggered
// bitset reallocation ids.Set.Add performs.
//
// Within the level itself, every reaction (serial or parallel) sees the
// same present snapshot taken before the level starts: same-level
// effects must not be visible to same-level triggers, only to later
// levels, per spec.md §4.1's level-ordering guarantee.
func (s *Scheduler) runLevel(t tag.Tag, rids []ids.ReactionID, present *ids.Set) error {
	snapshot := *present
	if s.cfg.Workers <= 1 {
		for _, rid := range rids {
			if err := s.runReaction(t, rid, snapshot, s.sharedCtx); err != nil {
				return err
			}
		}
	} else {
		g, _ := errgroup.WithContext(context.Background())
		g.SetLimit(s.cfg.Workers)
		for _, rid := range rids {
			rid := rid
			g.Go(func() error {
				return s.runReaction(t, rid, snapshot, reactorctx.New(s.svc))
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, rid := range rids {
		r := s.g.Reaction(rid)
		for _, p := range r.Effects.Ports {
			if _, ok := s.ports.Get(p); ok {
				present.Add(uint32(ids.PortTrigger(p)))
			}
		}
	}
	return nil
}

func (s *Scheduler) runReaction(t tag.Tag, rid ids.ReactionID, present ids.Set, c *reactorctx.Context) (err error) {
	r := s.g.Reaction(rid)
	c.Retarget(t, rid, present)

	s.telemetry.ReactionStart(t, rid)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("reaction panicked", "tag_offset", int64(t.Offset), "tag_microstep", t.Microstep, "level", r.Level, "reaction_id", rid, "panic", p)
			err = &FatalError{
				Code: ErrCodeReactionPanic, Tag: t, ReactionID: rid, HasReactionID: true,
				Message: fmt.Sprintf("reaction panicked: %v", p),
			}
		}
		s.telemetry.ReactionEnd(t, rid, err)
	}()

	if fnErr := r.Fn(c); fnErr != nil {
		var dw *port.ErrDoubleWrite
		if errors.As(fnErr, &dw) {
			slog.Error("reaction failed: double write", "tag_offset", int64(t.Offset), "tag_microstep", t.Microstep, "level", r.Level, "reaction_id", rid, "error", fnErr)
			return &FatalError{Code: ErrCodeDoubleWrite, Tag: t, ReactionID: rid, HasReactionID: true, Message: fnErr.Error(), Wrapped: fnErr}
		}
		slog.Error("reaction failed", "tag_offset", int64(t.Offset), "tag_microstep", t.Microstep, "level", r.Level, "reaction_id", rid, "error", fnErr)
		return &FatalError{Code: ErrCodeReactionPanic, Tag: t, ReactionID: rid, HasReactionID: true, Message: fnErr.Error(), Wrapped: fnErr}
	}
	return nil
}
