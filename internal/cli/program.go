// Program registration for the `reactor run`/`replay` commands.
//
// The graph builder is an external collaborator (SPEC_FULL.md §1): a
// reaction's Fn is a Go closure, so a YAML table bundle can only ever
// describe topology and be validated for shape (internal/config's CUE
// schema), never fully deserialize reaction bodies. cmd/reactor bridges
// that gap the way the teacher's runEngine bridges compiled CUE specs to
// a running engine.New — a small set of named, in-process programs the
// `--program` flag selects by name, grounded on the
// teacher's compileSpecs/LoadSpecs indirection in run.go.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/latticeflow/reactor/internal/graph"
	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/port"
	"github.com/latticeflow/reactor/internal/reactorctx"
	"github.com/latticeflow/reactor/internal/scheduler"
)

// Program is everything a builder must hand the scheduler: the frozen
// reaction graph, the port store it reads and writes, the metadata for
// every action it may schedule, and the decoders `reactor replay` needs
// to reconstruct physical-action payloads from a recording.
type Program struct {
	Graph    *graph.Graph
	Ports    *port.Store
	Actions  []scheduler.ActionMeta
	Decoders map[ids.ActionID]scheduler.Decoder
}

// ProgramBuilder constructs a fresh Program. Builders are invoked once
// per `run`/`replay` invocation so state never leaks between runs.
type ProgramBuilder func() Program

var programRegistry = map[string]ProgramBuilder{
	"gain-pipeline": buildGainPipelineProgram,
}

// RegisterProgram makes a named program available to `reactor run` and
// `reactor replay`. Code inside this module (a main package or a test)
// calls this before Execute; the package is internal, so other modules
// cannot import it.
func RegisterProgram(name string, builder ProgramBuilder) {
	programRegistry[name] = builder
}

func lookupProgram(name string) (ProgramBuilder, error) {
	b, ok := programRegistry[name]
	if !ok {
		return nil, fmt.Errorf("cli: unknown program %q (register it with cli.RegisterProgram)", name)
	}
	return b, nil
}

// buildGainPipelineProgram is the "gain pipeline" scenario from
// SPEC_FULL.md §8's literal scenario list, plus a third level that
// reacts to a physical "boost" action, kept in-tree as the default
// demonstrable program so `reactor run`/`reactor replay` work standalone
// without a separate embedding host.
func buildGainPipelineProgram() Program {
	const (
		portIn ids.PortID = iota
		portOut
	)
	const (
		actionStart ids.ActionID = iota
		actionBoost
	)
	const (
		reactionProduce ids.ReactionID = iota
		reactionAmplify
		reactionApplyBoost
	)

	ports := port.NewStore([]reflect.Type{
		reflect.TypeOf(0), // portIn
		reflect.TypeOf(0), // portOut
	})

	produce := graph.Reaction{
		ID:       reactionProduce,
		Level:    0,
		Triggers: ids.NewSet(1),
		Effects:  graph.Effects{Ports: []ids.PortID{portIn}},
		Fn: func(c *reactorctx.Context) error {
			return reactorctx.SetPortValue(c, portIn, 2)
		},
	}
	produce.Triggers.Add(uint32(ids.ActionTrigger(actionStart)))

	amplify := graph.Reaction{
		ID:       reactionAmplify,
		Level:    1,
		Triggers: ids.NewSet(1),
		Uses:     []ids.PortID{portIn},
		Effects:  graph.Effects{Ports: []ids.PortID{portOut}},
		Fn: func(c *reactorctx.Context) error {
			v, ok := reactorctx.GetPortValue[int](c, portIn)
			if !ok {
				return nil
			}
			return reactorctx.SetPortValue(c, portOut, v*3)
		},
	}
	amplify.Triggers.Add(uint32(ids.PortTrigger(portIn)))

	applyBoost := graph.Reaction{
		ID:       reactionApplyBoost,
		Level:    2,
		Triggers: ids.NewSet(1),
		Uses:     []ids.PortID{portOut},
		Fn: func(c *reactorctx.Context) error {
			boost, _ := reactorctx.GetActionValue[int](c, actionBoost)
			base, _ := reactorctx.GetPortValue[int](c, portOut)
			slog.Info("boost applied", "base", base, "boost", boost, "result", base+boost)
			c.ScheduleShutdown(nil)
			return nil
		},
	}
	applyBoost.Triggers.Add(uint32(ids.ActionTrigger(actionBoost)))

	g := graph.New([]graph.Reaction{produce, amplify, applyBoost})

	return Program{
		Graph: g,
		Ports: ports,
		Actions: []scheduler.ActionMeta{
			{ID: actionStart, Name: "start", Kind: scheduler.KindLogical, Timer: true, Period: 0, InitialOffset: 0},
			{ID: actionBoost, Name: "boost", TypeName: "int", Kind: scheduler.KindPhysical, MinDelay: 0},
		},
		Decoders: map[ids.ActionID]scheduler.Decoder{
			actionBoost: decodeIntAction,
		},
	}
}

func decodeIntAction(raw json.RawMessage) (any, error) {
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("cli: decode boost action payload: %w", err)
	}
	return v, nil
}
