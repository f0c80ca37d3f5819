// Package entity holds the aggregate for a governed change (an "issue")
// moving through the fixed delivery pipeline.
package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
)

// Common entity errors
var (
	ErrClosedImmutable = errors.New("entity is closed and immutable")
	ErrEmptyHoldReason = errors.New("hold requires a non-empty remediation reason")
)

// GitHubLink points the entity at its source-control artifacts.
// A zero PRNumber means no pull request has been associated yet.
type GitHubLink struct {
	Owner    string
	Repo     string
	PRNumber int
	Ref      string
}

// IsZero reports whether no link has been recorded
func (l GitHubLink) IsZero() bool {
	return l.Owner == "" && l.Repo == ""
}

// HasPR reports whether a pull request is associated
func (l GitHubLink) HasPR() bool {
	return !l.IsZero() && l.PRNumber > 0
}

// Entity is the aggregate root for a governed change
type Entity struct {
	id         model.EntityID
	title      string
	state      model.EntityState
	link       GitHubLink
	holdReason string
	createdAt  model.Timestamp
	updatedAt  model.Timestamp
}

// New creates a new entity in CREATED state
func New(id model.EntityID, title string) (*Entity, error) {
	if title == "" {
		return nil, errors.New("title cannot be empty")
	}
	now := model.NewTimestamp()
	return &Entity{
		id:        id,
		title:     title,
		state:     model.StateCreated,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct rebuilds an entity from persisted data
func Reconstruct(
	id model.EntityID,
	title string,
	state model.EntityState,
	link GitHubLink,
	holdReason string,
	createdAt, updatedAt time.Time,
) *Entity {
	return &Entity{
		id:         id,
		title:      title,
		state:      state,
		link:       link,
		holdReason: holdReason,
		createdAt:  model.NewTimestampFromTime(createdAt),
		updatedAt:  model.NewTimestampFromTime(updatedAt),
	}
}

// ID returns the entity ID
func (e *Entity) ID() model.EntityID { return e.id }

// Title returns the entity title
func (e *Entity) Title() string { return e.title }

// State returns the current lifecycle state
func (e *Entity) State() model.EntityState { return e.state }

// Link returns the source-control link
func (e *Entity) Link() GitHubLink { return e.link }

// HoldReason returns the remediation reason recorded on HOLD entry
func (e *Entity) HoldReason() string { return e.holdReason }

// CreatedAt returns the creation timestamp
func (e *Entity) CreatedAt() model.Timestamp { return e.createdAt }

// UpdatedAt returns the last update timestamp
func (e *Entity) UpdatedAt() model.Timestamp { return e.updatedAt }

// TransitionTo moves the entity to a new state.
// CLOSED entities never change; transitions to HOLD must go through Hold.
func (e *Entity) TransitionTo(next model.EntityState) error {
	if e.state == model.StateClosed {
		return ErrClosedImmutable
	}
	if !next.IsValid() {
		return fmt.Errorf("invalid entity state: %s", next)
	}
	if next == model.StateHold {
		return errors.New("use Hold to enter HOLD state")
	}
	if !e.state.CanTransitionTo(next) {
		return fmt.Errorf("invalid transition from %s to %s", e.state, next)
	}
	e.state = next
	e.updatedAt = model.NewTimestamp()
	return nil
}

// Hold moves the entity into HOLD with an explicit remediation reason
func (e *Entity) Hold(reason string) error {
	if e.state == model.StateClosed {
		return ErrClosedImmutable
	}
	if reason == "" {
		return ErrEmptyHoldReason
	}
	e.state = model.StateHold
	e.holdReason = reason
	e.updatedAt = model.NewTimestamp()
	return nil
}

// AttachLink records the source-control link for the entity
func (e *Entity) AttachLink(link GitHubLink) error {
	if e.state == model.StateClosed {
		return ErrClosedImmutable
	}
	if link.IsZero() {
		return errors.New("link must name an owner and repository")
	}
	e.link = link
	e.updatedAt = model.NewTimestamp()
	return nil
}
