// Package timeline models the append-only audit event ledger.
package timeline

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stewardhq/steward/internal/domain/model"
)

// Kind labels what an event records
type Kind string

const (
	KindStepExecuted  Kind = "step_executed"
	KindStepDryRun    Kind = "step_dry_run"
	KindStepBlocked   Kind = "step_blocked"
	KindRunFailed     Kind = "run_failed"
	KindStopDecision  Kind = "stop_decision"
	KindGateEvaluated Kind = "gate_evaluated"
)

// Event is one flat, secret-free audit record. The payload schema is the
// fixed set of fields below; nothing free-form is ever persisted.
type Event struct {
	id          string
	entityID    model.EntityID
	runID       model.RunID
	kind        Kind
	step        model.Step
	stateBefore model.EntityState
	stateAfter  model.EntityState
	blockerCode string
	detail      string
	requestID   string
	occurredAt  model.Timestamp
}

// New creates an audit event
func New(
	entityID model.EntityID,
	runID model.RunID,
	kind Kind,
	step model.Step,
	stateBefore, stateAfter model.EntityState,
	blockerCode, detail, requestID string,
) (*Event, error) {
	if kind == "" {
		return nil, errors.New("event kind cannot be empty")
	}
	return &Event{
		id:          ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String(),
		entityID:    entityID,
		runID:       runID,
		kind:        kind,
		step:        step,
		stateBefore: stateBefore,
		stateAfter:  stateAfter,
		blockerCode: blockerCode,
		detail:      detail,
		requestID:   requestID,
		occurredAt:  model.NewTimestamp(),
	}, nil
}

// Reconstruct rebuilds an event from persisted data
func Reconstruct(
	id string,
	entityID model.EntityID,
	runID model.RunID,
	kind Kind,
	step model.Step,
	stateBefore, stateAfter model.EntityState,
	blockerCode, detail, requestID string,
	occurredAt time.Time,
) *Event {
	return &Event{
		id:          id,
		entityID:    entityID,
		runID:       runID,
		kind:        kind,
		step:        step,
		stateBefore: stateBefore,
		stateAfter:  stateAfter,
		blockerCode: blockerCode,
		detail:      detail,
		requestID:   requestID,
		occurredAt:  model.NewTimestampFromTime(occurredAt),
	}
}

// ID returns the event ID
func (e *Event) ID() string { return e.id }

// EntityID returns the governed entity ID
func (e *Event) EntityID() model.EntityID { return e.entityID }

// RunID returns the run this event belongs to
func (e *Event) RunID() model.RunID { return e.runID }

// Kind returns the event kind
func (e *Event) Kind() Kind { return e.kind }

// Step returns the pipeline step
func (e *Event) Step() model.Step { return e.step }

// StateBefore returns the entity state before the step
func (e *Event) StateBefore() model.EntityState { return e.stateBefore }

// StateAfter returns the entity state after the step, if any
func (e *Event) StateAfter() model.EntityState { return e.stateAfter }

// BlockerCode returns the blocker code, if the step was blocked
func (e *Event) BlockerCode() string { return e.blockerCode }

// Detail returns the short human-readable detail line
func (e *Event) Detail() string { return e.detail }

// RequestID returns the tracing identifier
func (e *Event) RequestID() string { return e.requestID }

// OccurredAt returns the event timestamp
func (e *Event) OccurredAt() model.Timestamp { return e.occurredAt }
