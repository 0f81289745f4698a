package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeflow/reactor/internal/graph"
	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/reactorctx"
)

func noop(*reactorctx.Context) error { return nil }

func triggerSet(ts ...ids.TriggerID) ids.Set {
	s := ids.NewSet(64)
	for _, t := range ts {
		s.Add(uint32(t))
	}
	return s
}

func TestLevelBatchGroupsAndSortsByID(t *testing.T) {
	g := graph.New([]graph.Reaction{
		{ID: 3, Level: 0, Fn: noop},
		{ID: 1, Level: 0, Fn: noop},
		{ID: 2, Level: 1, Fn: noop},
	})

	assert.Equal(t, []ids.ReactionID{1, 3}, g.LevelBatch(0))
	assert.Equal(t, []ids.ReactionID{2}, g.LevelBatch(1))
	assert.Equal(t, uint32(2), g.LevelCount())
}

func TestTriggeredBatchPartitionsByLevelAndReusesBitset(t *testing.T) {
	g := graph.New([]graph.Reaction{
		{ID: 0, Level: 0, Triggers: triggerSet(ids.ActionTrigger(10)), Fn: noop},
		{ID: 1, Level: 1, Triggers: triggerSet(ids.PortTrigger(5)), Fn: noop},
		{ID: 2, Level: 1, Triggers: triggerSet(ids.ActionTrigger(11)), Fn: noop},
	})

	present := triggerSet(ids.ActionTrigger(10))
	batch := g.TriggeredBatch(present)
	require.Len(t, batch, 2)
	assert.Equal(t, []ids.ReactionID{0}, batch[0])
	assert.Empty(t, batch[1])

	// A second call with a different present set must not see stale
	// matches from the first call — this is the whole point of clearing
	// the reusable bitset every call.
	present2 := triggerSet(ids.PortTrigger(5))
	batch2 := g.TriggeredBatch(present2)
	assert.Empty(t, batch2[0])
	assert.Equal(t, []ids.ReactionID{1}, batch2[1])
}

func TestValidateLevelsAcceptsWellOrderedGraph(t *testing.T) {
	g := graph.New([]graph.Reaction{
		{ID: 0, Level: 0, Effects: graph.Effects{Ports: []ids.PortID{7}}, Fn: noop},
		{ID: 1, Level: 1, Uses: []ids.PortID{7}, Fn: noop},
	})
	assert.NoError(t, g.ValidateLevels())
}

func TestValidateLevelsRejectsBackwardEdge(t *testing.T) {
	g := graph.New([]graph.Reaction{
		{ID: 0, Level: 1, Effects: graph.Effects{Ports: []ids.PortID{7}}, Fn: noop},
		{ID: 1, Level: 0, Uses: []ids.PortID{7}, Fn: noop},
	})
	err := g.ValidateLevels()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level assignment inconsistent")
}

func TestValidateLevelsRejectsSameLevelTriggerEdge(t *testing.T) {
	g := graph.New([]graph.Reaction{
		{ID: 0, Level: 0, Effects: graph.Effects{Actions: []ids.ActionID{9}}, Fn: noop},
		{ID: 1, Level: 0, Triggers: triggerSet(ids.ActionTrigger(9)), Fn: noop},
	})
	assert.Error(t, g.ValidateLevels())
}

func TestAssertLevelDisjointDetectsSharedEffectPort(t *testing.T) {
	g := graph.New([]graph.Reaction{
		{ID: 0, Level: 0, Effects: graph.Effects{Ports: []ids.PortID{4}}, Fn: noop},
		{ID: 1, Level: 0, Effects: graph.Effects{Ports: []ids.PortID{4}}, Fn: noop},
	})
	err := graph.AssertLevelDisjoint(g, g.LevelBatch(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level disjointness violated")
}

func TestAssertLevelDisjointAcceptsDisjointWrites(t *testing.T) {
	g := graph.New([]graph.Reaction{
		{ID: 0, Level: 0, Effects: graph.Effects{Ports: []ids.PortID{4}}, Fn: noop},
		{ID: 1, Level: 0, Effects: graph.Effects{Ports: []ids.PortID{5}}, Fn: noop},
	})
	assert.NoError(t, graph.AssertLevelDisjoint(g, g.LevelBatch(0)))
}
