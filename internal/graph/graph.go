// Package graph holds the static, frozen reaction dependency graph: each
// reaction's level, precomputed trigger set, and the reusable bitset
// machinery the scheduler uses to compute a tag's triggered-reaction
// batch without reallocating its match bitset (spec.md §3, §4.4).
//
// The graph is built once by the external builder (spec.md §1: out of
// scope) and handed to the scheduler as-is; this package only consumes
// it. Grounded on the teacher's internal/engine.CycleDetector
// (engine/cycle.go), whose per-flow in-memory history map is repurposed
// here as a one-time startup check rather than a per-event guard: the
// scheduler is not supposed to re-derive levels (spec.md §4.4), so the
// detector runs once at the start of Scheduler.Run as a defense-in-depth sanity check on
// the builder's output, not on every tag.
package graph

import (
	"fmt"
	"sort"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/reactorctx"
)

// Effects lists what a reaction may write: ports (checked for double
// writes by the port store itself) and actions it may schedule.
type Effects struct {
	Ports   []ids.PortID
	Actions []ids.ActionID
}

// Reaction is one immutable node of the dependency graph (spec.md §3).
type Reaction struct {
	ID       ids.ReactionID
	Level    uint32
	Triggers ids.Set
	Uses     []ids.PortID
	Effects  Effects
	Fn       func(*reactorctx.Context) error
}

// Graph is the frozen, builder-supplied reaction table plus the
// scheduler-side indexes derived from it once in New.
type Graph struct {
	reactions []Reaction
	byLevel   [][]ids.ReactionID // ascending level order; byLevel[i] holds every reaction at level i
	maxLevel  uint32

	// matched is a reusable bitset sized to len(reactions), cleared and
	// repopulated every tag instead of being reallocated (spec.md §4.4).
	matched ids.Set
}

// New builds a Graph from the builder's reaction table. Reactions may be
// supplied in any order; New groups them by level.
func New(reactions []Reaction) *Graph {
	g := &Graph{reactions: reactions}
	var maxLevel uint32
	for _, r := range reactions {
		if r.Level > maxLevel {
			maxLevel = r.Level
		}
	}
	g.maxLevel = maxLevel
	g.byLevel = make([][]ids.ReactionID, maxLevel+1)
	for _, r := range reactions {
		g.byLevel[r.Level] = append(g.byLevel[r.Level], r.ID)
	}
	for _, bucket := range g.byLevel {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i] < bucket[j] })
	}
	g.matched = ids.NewSet(len(reactions))
	return g
}

// Reaction returns the reaction with the given id.
func (g *Graph) Reaction(id ids.ReactionID) *Reaction {
	return &g.reactions[id]
}

// LevelCount returns one past the highest assigned level.
func (g *Graph) LevelCount() uint32 { return g.maxLevel + 1 }

// LevelBatch returns every reaction id assigned to level, in ascending
// id order (a stable, arbitrary-but-deterministic order for cases where
// parallel dispatch is disabled and reactions run serially).
func (g *Graph) LevelBatch(level uint32) []ids.ReactionID {
	if int(level) >= len(g.byLevel) {
		return nil
	}
	return g.byLevel[level]
}

// TriggeredBatch computes, for the given set of triggers present this
// tag, the level-partitioned batch of reactions to release (spec.md §4.1
// step 4, §4.4). It reuses the graph's internal bitset across calls; the
// returned batch and its per-level slices are allocated afresh each call.
//
// The returned slice is indexed by level; batch[l] holds the triggered
// reaction ids at level l, in ascending id order. Levels with no
// triggered reaction are present as a nil/empty slice so callers can
// range over 0..LevelCount() uninterrupted.
func (g *Graph) TriggeredBatch(present ids.Set) [][]ids.ReactionID {
	g.matched.Clear()
	for i := range g.reactions {
		r := &g.reactions[i]
		if r.Triggers.Intersects(present) {
			g.matched.Add(uint32(r.ID))
		}
	}

	batch := make([][]ids.ReactionID, len(g.byLevel))
	for level, bucket := range g.byLevel {
		for _, rid := range bucket {
			if g.matched.Has(uint32(rid)) {
				batch[level] = append(batch[level], rid)
			}
		}
	}
	return batch
}

// ValidateLevels is the runtime defense-in-depth check described in
// SPEC_FULL.md §4.4a: it derives edges from each reaction's effects
// (ports and actions) against every other reaction's triggers, and
// confirms L(producer) < L(consumer) for each one, per spec.md §4.4's
// contract. It does not re-derive levels or detect cycles among
// arbitrary edges — only checks the ordering the builder already
// assigned is consistent with the effect/trigger edges it can see. This
// is a conservative over-approximation: it treats every scheduled action
// as a same-tag edge even though only zero-delay actions actually
// require it, so a false positive here always indicates a genuine
// builder inconsistency or an overly strict graph, never a missed one.
func (g *Graph) ValidateLevels() error {
	producers := map[ids.PortID][]ids.ReactionID{}
	actionProducers := map[ids.ActionID][]ids.ReactionID{}
	for i := range g.reactions {
		r := &g.reactions[i]
		for _, p := range r.Effects.Ports {
			producers[p] = append(producers[p], r.ID)
		}
		for _, a := range r.Effects.Actions {
			actionProducers[a] = append(actionProducers[a], r.ID)
		}
	}

	for i := range g.reactions {
		consumer := &g.reactions[i]
		for _, p := range consumer.Uses {
			for _, producerID := range producers[p] {
				if err := g.checkOrder(producerID, consumer.ID); err != nil {
					return err
				}
			}
		}
		var edgeErr error
		consumer.Triggers.Each(func(h uint32) {
			if edgeErr != nil {
				return
			}
			trig := ids.TriggerID(h)
			producerIDs := actionProducers[trig.AsAction()]
			if trig.IsPortTrigger() {
				producerIDs = producers[trig.AsPort()]
			}
			for _, producerID := range producerIDs {
				if err := g.checkOrder(producerID, consumer.ID); err != nil {
					edgeErr = err
					return
				}
			}
		})
		if edgeErr != nil {
			return edgeErr
		}
	}
	return nil
}

func (g *Graph) checkOrder(producer, consumer ids.ReactionID) error {
	if producer == consumer {
		return nil
	}
	if g.reactions[producer].Level >= g.reactions[consumer].Level {
		return fmt.Errorf(
			"level assignment inconsistent: reaction %s (level %d) must run before reaction %s (level %d) but is not ordered before it",
			producer, g.reactions[producer].Level, consumer, g.reactions[consumer].Level,
		)
	}
	return nil
}

// AssertLevelDisjoint is the optional per-tag debug check described in
// SPEC_FULL.md's supplemented features (grounded on
// original_source/boomerang_runtime/src/disjoint.rs): given the batch of
// reactions about to run at one level, confirm no two of them declare an
// overlapping port in their Effects. It is gated behind
// Config.StrictLevelCheck and does no work when disabled — the builder's
// guarantee (spec.md §5) is trusted in production.
func AssertLevelDisjoint(g *Graph, level []ids.ReactionID) error {
	seen := map[ids.PortID]ids.ReactionID{}
	for _, rid := range level {
		r := g.Reaction(rid)
		for _, p := range r.Effects.Ports {
			if owner, ok := seen[p]; ok {
				return fmt.Errorf("level disjointness violated: reactions %s and %s both write port %s at the same level", owner, rid, p)
			}
			seen[p] = rid
		}
	}
	return nil
}
