package scheduler

import (
	"fmt"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/tag"
)

// FatalErrorCode categorizes the ways a run can abort, grounded on the
// teacher's RuntimeErrorCode (engine/errors.go).
type FatalErrorCode string

const (
	// ErrCodeDoubleWrite indicates a reaction wrote a port already
	// written this tag (spec.md §4.6).
	ErrCodeDoubleWrite FatalErrorCode = "DOUBLE_WRITE"

	// ErrCodeReactionPanic indicates a reaction body panicked or
	// returned an error (spec.md §7: "reaction bodies are not expected
	// to fail").
	ErrCodeReactionPanic FatalErrorCode = "REACTION_PANIC"

	// ErrCodeLevelViolation indicates graph.ValidateLevels found the
	// builder's level assignment inconsistent with the declared
	// trigger/effect edges (spec.md §4.4a).
	ErrCodeLevelViolation FatalErrorCode = "LEVEL_VIOLATION"

	// ErrCodeDisjointViolation indicates two reactions triggered at the
	// same level in one tag declare the same port in their Effects
	// (SPEC_FULL.md's StrictLevelCheck).
	ErrCodeDisjointViolation FatalErrorCode = "DISJOINT_VIOLATION"

	// ErrCodeRecorderIO indicates the recording could not be written.
	ErrCodeRecorderIO FatalErrorCode = "RECORDER_IO"

	// ErrCodeReplayCorrupt indicates a replay log frame failed to
	// decode.
	ErrCodeReplayCorrupt FatalErrorCode = "REPLAY_CORRUPT"

	// ErrCodeReplayTypeMismatch indicates a replay log's action table
	// disagrees with this build's action wiring for a referenced
	// action_id — either the id is unknown to this build, or its
	// recorded type hash no longer matches (spec.md §6, §7).
	ErrCodeReplayTypeMismatch FatalErrorCode = "REPLAY_TYPE_MISMATCH"
)

// FatalError is returned by Scheduler.Run when the run cannot continue.
// It is matched with errors.As, grounded on the teacher's
// IsCycleError/IsQuotaError pattern (engine/errors.go).
type FatalError struct {
	Code       FatalErrorCode
	Message    string
	Tag        tag.Tag
	ReactionID ids.ReactionID

	// HasReactionID distinguishes "reaction 0" from "no reaction
	// implicated", since ids.ReactionID's zero value is a valid handle.
	HasReactionID bool

	Wrapped error
}

func (e *FatalError) Error() string {
	if e.HasReactionID {
		return fmt.Sprintf("%s: %s (tag=%s, reaction=%s)", e.Code, e.Message, e.Tag, e.ReactionID)
	}
	return fmt.Sprintf("%s: %s (tag=%s)", e.Code, e.Message, e.Tag)
}

func (e *FatalError) Unwrap() error { return e.Wrapped }

// StopReason explains why Run returned without a FatalError.
type StopReason string

const (
	// StopTimeout means the configured Timeout offset was reached.
	StopTimeout StopReason = "timeout"

	// StopShutdownRequested means a reaction or the embedder called
	// ScheduleShutdown / Stop.
	StopShutdownRequested StopReason = "shutdown-requested"

	// StopQueueEmpty means the event queue drained with Keepalive off
	// and no ingress attached.
	StopQueueEmpty StopReason = "queue-empty"

	// StopExternal means the caller's context was canceled.
	StopExternal StopReason = "external-stop"
)
