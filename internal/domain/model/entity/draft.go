package entity

import (
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
)

// DraftStatus describes the validation state of an entity's spec draft
type DraftStatus string

const (
	DraftReady   DraftStatus = "DRAFT_READY"
	DraftInvalid DraftStatus = "DRAFT_INVALID"
)

// IsValid validates the draft status
func (s DraftStatus) IsValid() bool {
	return s == DraftReady || s == DraftInvalid
}

// Draft is the spec document attached to an entity while it is being
// specified. An entity with no draft row simply has no draft yet.
type Draft struct {
	entityID  model.EntityID
	body      string
	status    DraftStatus
	updatedAt model.Timestamp
}

// NewDraft creates a draft for an entity
func NewDraft(entityID model.EntityID, body string) *Draft {
	status := DraftReady
	if body == "" {
		status = DraftInvalid
	}
	return &Draft{
		entityID:  entityID,
		body:      body,
		status:    status,
		updatedAt: model.NewTimestamp(),
	}
}

// ReconstructDraft rebuilds a draft from persisted data
func ReconstructDraft(entityID model.EntityID, body string, status DraftStatus, updatedAt time.Time) *Draft {
	return &Draft{
		entityID:  entityID,
		body:      body,
		status:    status,
		updatedAt: model.NewTimestampFromTime(updatedAt),
	}
}

// EntityID returns the owning entity ID
func (d *Draft) EntityID() model.EntityID { return d.entityID }

// Body returns the draft body
func (d *Draft) Body() string { return d.body }

// Status returns the validation status
func (d *Draft) Status() DraftStatus { return d.status }

// UpdatedAt returns the last update timestamp
func (d *Draft) UpdatedAt() model.Timestamp { return d.updatedAt }

// IsReady reports whether the draft passed validation
func (d *Draft) IsReady() bool { return d.status == DraftReady }
