package model

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// EntityID represents a unique identifier for a governed entity (an issue)
type EntityID struct {
	value string
}

// NewEntityID creates a new ULID-based entity ID
func NewEntityID() EntityID {
	return EntityID{value: ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()}
}

// NewEntityIDFromString creates an EntityID from an existing string
func NewEntityIDFromString(id string) (EntityID, error) {
	if id == "" {
		return EntityID{}, errors.New("entity ID cannot be empty")
	}
	return EntityID{value: id}, nil
}

// String returns the string representation
func (e EntityID) String() string {
	return e.value
}

// Equals checks if two EntityIDs are equal
func (e EntityID) Equals(other EntityID) bool {
	return e.value == other.value
}

// RunID represents a unique identifier for a coordinator run
type RunID struct {
	value string
}

// NewRunID creates a new ULID-based run ID
func NewRunID() RunID {
	return RunID{value: ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()}
}

// NewRunIDFromString creates a RunID from an existing string
func NewRunIDFromString(id string) (RunID, error) {
	if id == "" {
		return RunID{}, errors.New("run ID cannot be empty")
	}
	return RunID{value: id}, nil
}

// String returns the string representation
func (r RunID) String() string {
	return r.value
}

// EntityState represents the lifecycle state of a governed entity
type EntityState string

const (
	StateCreated          EntityState = "CREATED"
	StateSpecReady        EntityState = "SPEC_READY"
	StateImplementingPrep EntityState = "IMPLEMENTING_PREP"
	StateReviewReady      EntityState = "REVIEW_READY"
	StateDone             EntityState = "DONE"
	StateVerified         EntityState = "VERIFIED"
	StateClosed           EntityState = "CLOSED"
	StateHold             EntityState = "HOLD"
)

// String returns the string representation
func (s EntityState) String() string {
	return string(s)
}

// IsValid validates the entity state
func (s EntityState) IsValid() bool {
	switch s {
	case StateCreated, StateSpecReady, StateImplementingPrep, StateReviewReady,
		StateDone, StateVerified, StateClosed, StateHold:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state admits no further transitions.
// CLOSED is immutable; HOLD exits only via explicit manual action.
func (s EntityState) IsTerminal() bool {
	return s == StateClosed
}

// CanTransitionTo checks if a state transition is valid
func (s EntityState) CanTransitionTo(next EntityState) bool {
	validTransitions := map[EntityState][]EntityState{
		StateCreated:          {StateSpecReady, StateHold},
		StateSpecReady:        {StateImplementingPrep, StateHold},
		StateImplementingPrep: {StateReviewReady, StateHold},
		StateReviewReady:      {StateDone, StateHold},
		StateDone:             {StateDone, StateVerified, StateHold},
		StateVerified:         {StateClosed, StateHold},
		StateHold:             {StateHold},
		StateClosed:           {},
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}

	for _, a := range allowed {
		if a == next {
			return true
		}
	}
	return false
}

// Step represents one stage of the fixed delivery pipeline
type Step string

const (
	StepPick          Step = "S1_PICK"
	StepSpec          Step = "S2_SPEC"
	StepImplementPrep Step = "S3_IMPLEMENT_PREP"
	StepReview        Step = "S4_REVIEW"
	StepMerge         Step = "S5_MERGE"
	StepDeployObserve Step = "S6_DEPLOY_OBSERVE"
	StepVerify        Step = "S7_VERIFY"
	StepClose         Step = "S8_CLOSE"
	StepRemediate     Step = "S9_REMEDIATE"
)

// String returns the string representation
func (s Step) String() string {
	return string(s)
}

// IsValid validates the step
func (s Step) IsValid() bool {
	switch s {
	case StepPick, StepSpec, StepImplementPrep, StepReview, StepMerge,
		StepDeployObserve, StepVerify, StepClose, StepRemediate:
		return true
	default:
		return false
	}
}

// RunMode distinguishes a real execution from a what-if evaluation
type RunMode string

const (
	ModeExecute RunMode = "execute"
	ModeDryRun  RunMode = "dryRun"
)

// String returns the string representation
func (m RunMode) String() string {
	return string(m)
}

// IsValid validates the run mode
func (m RunMode) IsValid() bool {
	return m == ModeExecute || m == ModeDryRun
}

// Timestamp is a UTC timestamp value object
type Timestamp struct {
	value time.Time
}

// NewTimestamp creates a timestamp for the current instant
func NewTimestamp() Timestamp {
	return Timestamp{value: time.Now().UTC()}
}

// NewTimestampFromTime creates a timestamp from an existing time
func NewTimestampFromTime(t time.Time) Timestamp {
	return Timestamp{value: t.UTC()}
}

// Value returns the underlying time
func (t Timestamp) Value() time.Time {
	return t.value
}

// String returns the RFC3339 representation
func (t Timestamp) String() string {
	return t.value.Format(time.RFC3339)
}

// IsZero reports whether the timestamp is unset
func (t Timestamp) IsZero() bool {
	return t.value.IsZero()
}
