// Package run models a single coordinator invocation and its outcome.
package run

import (
	"errors"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
)

// Status is the lifecycle status of a run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// IsValid validates the run status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusBlocked:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the run has finished
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusBlocked
}

// Run records one coordinator invocation. Created once per invocation;
// after completion only status and timestamps are written, exactly once.
type Run struct {
	id          model.RunID
	entityID    model.EntityID
	step        model.Step
	mode        model.RunMode
	status      Status
	stateBefore model.EntityState
	stateAfter  model.EntityState
	requestID   string
	actor       string
	createdAt   model.Timestamp
	startedAt   model.Timestamp
	completedAt model.Timestamp
}

// New creates a pending run for an invocation
func New(entityID model.EntityID, step model.Step, mode model.RunMode, stateBefore model.EntityState, requestID, actor string) (*Run, error) {
	if !step.IsValid() {
		return nil, errors.New("invalid step")
	}
	if !mode.IsValid() {
		return nil, errors.New("invalid run mode")
	}
	if actor == "" {
		return nil, errors.New("actor cannot be empty")
	}
	return &Run{
		id:          model.NewRunID(),
		entityID:    entityID,
		step:        step,
		mode:        mode,
		status:      StatusPending,
		stateBefore: stateBefore,
		requestID:   requestID,
		actor:       actor,
		createdAt:   model.NewTimestamp(),
	}, nil
}

// Reconstruct rebuilds a run from persisted data
func Reconstruct(
	id model.RunID,
	entityID model.EntityID,
	step model.Step,
	mode model.RunMode,
	status Status,
	stateBefore, stateAfter model.EntityState,
	requestID, actor string,
	createdAt, startedAt, completedAt time.Time,
) *Run {
	return &Run{
		id:          id,
		entityID:    entityID,
		step:        step,
		mode:        mode,
		status:      status,
		stateBefore: stateBefore,
		stateAfter:  stateAfter,
		requestID:   requestID,
		actor:       actor,
		createdAt:   model.NewTimestampFromTime(createdAt),
		startedAt:   model.NewTimestampFromTime(startedAt),
		completedAt: model.NewTimestampFromTime(completedAt),
	}
}

// ID returns the run ID
func (r *Run) ID() model.RunID { return r.id }

// EntityID returns the governed entity ID
func (r *Run) EntityID() model.EntityID { return r.entityID }

// Step returns the pipeline step this run executed
func (r *Run) Step() model.Step { return r.step }

// Mode returns the run mode
func (r *Run) Mode() model.RunMode { return r.mode }

// Status returns the run status
func (r *Run) Status() Status { return r.status }

// StateBefore returns the entity state at run start
func (r *Run) StateBefore() model.EntityState { return r.stateBefore }

// StateAfter returns the entity state at run completion
func (r *Run) StateAfter() model.EntityState { return r.stateAfter }

// RequestID returns the tracing identifier
func (r *Run) RequestID() string { return r.requestID }

// Actor returns the requesting actor
func (r *Run) Actor() string { return r.actor }

// CreatedAt returns the creation timestamp
func (r *Run) CreatedAt() model.Timestamp { return r.createdAt }

// StartedAt returns the execution start timestamp
func (r *Run) StartedAt() model.Timestamp { return r.startedAt }

// CompletedAt returns the completion timestamp
func (r *Run) CompletedAt() model.Timestamp { return r.completedAt }

// Start marks the run as executing
func (r *Run) Start() error {
	if r.status != StatusPending {
		return errors.New("run already started")
	}
	r.status = StatusRunning
	r.startedAt = model.NewTimestamp()
	return nil
}

// Complete finishes the run with a terminal status
func (r *Run) Complete(status Status, stateAfter model.EntityState) error {
	if r.status.IsTerminal() {
		return errors.New("run already completed")
	}
	if !status.IsTerminal() {
		return errors.New("completion status must be terminal")
	}
	r.status = status
	r.stateAfter = stateAfter
	r.completedAt = model.NewTimestamp()
	return nil
}
