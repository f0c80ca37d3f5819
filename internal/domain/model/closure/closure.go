// Package closure models the terminal bookkeeping rows: the single
// closure record per entity, the per-HOLD remediation records, and the
// GREEN/RED verification verdict linked to its evidence.
package closure

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stewardhq/steward/internal/domain/model"
)

// Verdict is the explicit outcome of the verify step
type Verdict string

const (
	VerdictGreen Verdict = "GREEN"
	VerdictRed   Verdict = "RED"
)

// IsValid validates the verdict
func (v Verdict) IsValid() bool {
	return v == VerdictGreen || v == VerdictRed
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}

// VerifyVerdict links a verify run to its evidence, exactly one per run
type VerifyVerdict struct {
	id         string
	entityID   model.EntityID
	runID      model.RunID
	verdict    Verdict
	snapshotID string
	detail     string
	createdAt  model.Timestamp
}

// NewVerifyVerdict creates a verdict row. snapshotID may be empty only
// for a RED verdict recorded against absent evidence.
func NewVerifyVerdict(entityID model.EntityID, runID model.RunID, verdict Verdict, snapshotID, detail string) (*VerifyVerdict, error) {
	if !verdict.IsValid() {
		return nil, errors.New("invalid verify verdict")
	}
	if verdict == VerdictGreen && snapshotID == "" {
		return nil, errors.New("GREEN verdict requires evidence")
	}
	return &VerifyVerdict{
		id:         newID(),
		entityID:   entityID,
		runID:      runID,
		verdict:    verdict,
		snapshotID: snapshotID,
		detail:     detail,
		createdAt:  model.NewTimestamp(),
	}, nil
}

// ReconstructVerifyVerdict rebuilds a verdict from persisted data
func ReconstructVerifyVerdict(id string, entityID model.EntityID, runID model.RunID, verdict Verdict, snapshotID, detail string, createdAt time.Time) *VerifyVerdict {
	return &VerifyVerdict{
		id:         id,
		entityID:   entityID,
		runID:      runID,
		verdict:    verdict,
		snapshotID: snapshotID,
		detail:     detail,
		createdAt:  model.NewTimestampFromTime(createdAt),
	}
}

// ID returns the verdict row ID
func (v *VerifyVerdict) ID() string { return v.id }

// EntityID returns the governed entity ID
func (v *VerifyVerdict) EntityID() model.EntityID { return v.entityID }

// RunID returns the verify run ID
func (v *VerifyVerdict) RunID() model.RunID { return v.runID }

// Verdict returns GREEN or RED
func (v *VerifyVerdict) Verdict() Verdict { return v.verdict }

// SnapshotID returns the evidence snapshot ID, if any
func (v *VerifyVerdict) SnapshotID() string { return v.snapshotID }

// Detail returns the short explanation
func (v *VerifyVerdict) Detail() string { return v.detail }

// CreatedAt returns the creation timestamp
func (v *VerifyVerdict) CreatedAt() model.Timestamp { return v.createdAt }

// Record is the single closure row written when an entity reaches CLOSED
type Record struct {
	id        string
	entityID  model.EntityID
	runID     model.RunID
	verdictID string
	createdAt model.Timestamp
}

// NewRecord creates a closure record referencing the GREEN verdict
func NewRecord(entityID model.EntityID, runID model.RunID, verdictID string) (*Record, error) {
	if verdictID == "" {
		return nil, errors.New("closure requires a verdict reference")
	}
	return &Record{
		id:        newID(),
		entityID:  entityID,
		runID:     runID,
		verdictID: verdictID,
		createdAt: model.NewTimestamp(),
	}, nil
}

// ReconstructRecord rebuilds a closure record from persisted data
func ReconstructRecord(id string, entityID model.EntityID, runID model.RunID, verdictID string, createdAt time.Time) *Record {
	return &Record{
		id:        id,
		entityID:  entityID,
		runID:     runID,
		verdictID: verdictID,
		createdAt: model.NewTimestampFromTime(createdAt),
	}
}

// ID returns the closure row ID
func (r *Record) ID() string { return r.id }

// EntityID returns the closed entity ID
func (r *Record) EntityID() model.EntityID { return r.entityID }

// RunID returns the closing run ID
func (r *Record) RunID() model.RunID { return r.runID }

// VerdictID returns the GREEN verdict this closure rests on
func (r *Record) VerdictID() string { return r.verdictID }

// CreatedAt returns the creation timestamp
func (r *Record) CreatedAt() model.Timestamp { return r.createdAt }

// Remediation is one HOLD-entry audit row; an entity may accumulate many
type Remediation struct {
	id        string
	entityID  model.EntityID
	runID     model.RunID
	reason    string
	createdAt model.Timestamp
}

// NewRemediation creates a remediation record for a HOLD entry
func NewRemediation(entityID model.EntityID, runID model.RunID, reason string) (*Remediation, error) {
	if reason == "" {
		return nil, errors.New("remediation requires a non-empty reason")
	}
	return &Remediation{
		id:        newID(),
		entityID:  entityID,
		runID:     runID,
		reason:    reason,
		createdAt: model.NewTimestamp(),
	}, nil
}

// ReconstructRemediation rebuilds a remediation record from persisted data
func ReconstructRemediation(id string, entityID model.EntityID, runID model.RunID, reason string, createdAt time.Time) *Remediation {
	return &Remediation{
		id:        id,
		entityID:  entityID,
		runID:     runID,
		reason:    reason,
		createdAt: model.NewTimestampFromTime(createdAt),
	}
}

// ID returns the remediation row ID
func (r *Remediation) ID() string { return r.id }

// EntityID returns the held entity ID
func (r *Remediation) EntityID() model.EntityID { return r.entityID }

// RunID returns the holding run ID
func (r *Remediation) RunID() model.RunID { return r.runID }

// Reason returns the remediation reason
func (r *Remediation) Reason() string { return r.reason }

// CreatedAt returns the creation timestamp
func (r *Remediation) CreatedAt() model.Timestamp { return r.createdAt }
