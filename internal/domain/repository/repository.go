// Package repository defines the persistence interfaces the domain layer
// depends on. Implementations live under infrastructure/persistence.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/closure"
	"github.com/stewardhq/steward/internal/domain/model/entity"
	"github.com/stewardhq/steward/internal/domain/model/lock"
	"github.com/stewardhq/steward/internal/domain/model/run"
	"github.com/stewardhq/steward/internal/domain/model/snapshot"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/service/stopgate"
)

// Common repository errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// EntityRepository persists governed entities and their spec drafts
type EntityRepository interface {
	Find(ctx context.Context, id model.EntityID) (*entity.Entity, error)
	Save(ctx context.Context, e *entity.Entity) error
	FindDraft(ctx context.Context, id model.EntityID) (*entity.Draft, error)
	SaveDraft(ctx context.Context, d *entity.Draft) error
	IsPicked(ctx context.Context, id model.EntityID) (bool, error)
	MarkPicked(ctx context.Context, id model.EntityID, actor string) error
}

// RunRepository persists coordinator runs
type RunRepository interface {
	Save(ctx context.Context, r *run.Run) error
	Update(ctx context.Context, r *run.Run) error
	Find(ctx context.Context, id model.RunID) (*run.Run, error)
	ListByEntity(ctx context.Context, entityID model.EntityID) ([]*run.Run, error)
}

// LockRepository provides the TTL-expiring mutual-exclusion lock table.
// Acquire returns (nil, nil) when the lock is held by an active holder.
type LockRepository interface {
	Acquire(ctx context.Context, key lock.Key, holder string, ttl time.Duration) (*lock.RunLock, error)
	Release(ctx context.Context, key lock.Key) error
	Find(ctx context.Context, key lock.Key) (*lock.RunLock, error)
	List(ctx context.Context) ([]*lock.RunLock, error)
	CleanupExpired(ctx context.Context) (int, error)
}

// IdempotencyRepository provides the TTL-expiring response cache.
// Find returns ErrNotFound for missing or expired entries.
type IdempotencyRepository interface {
	Find(ctx context.Context, key lock.Key) (*lock.IdempotencyRecord, error)
	Save(ctx context.Context, rec *lock.IdempotencyRecord) error
	CleanupExpired(ctx context.Context) (int, error)
}

// SnapshotRepository persists check snapshots and deploy observations.
// InsertIfAbsent is the idempotency point for evidence: when a row with
// the same (owner, repo, ref, hash) exists, that row is returned and no
// insert happens.
type SnapshotRepository interface {
	InsertIfAbsent(ctx context.Context, s *snapshot.ChecksSnapshot) (*snapshot.ChecksSnapshot, error)
	GetLatest(ctx context.Context, owner, repo, ref string) (*snapshot.ChecksSnapshot, error)
	FindByID(ctx context.Context, id string) (*snapshot.ChecksSnapshot, error)
	SaveObservation(ctx context.Context, o *snapshot.DeployObservation) error
	HasObservation(ctx context.Context, entityID model.EntityID) (bool, error)
	FindLatestObservation(ctx context.Context, entityID model.EntityID) (*snapshot.DeployObservation, error)
}

// ClosureRepository persists closure records, remediation records, and
// verification verdicts. SaveRecord enforces one closure per entity.
type ClosureRepository interface {
	SaveRecord(ctx context.Context, r *closure.Record) error
	FindRecord(ctx context.Context, entityID model.EntityID) (*closure.Record, error)
	SaveRemediation(ctx context.Context, r *closure.Remediation) error
	ListRemediations(ctx context.Context, entityID model.EntityID) ([]*closure.Remediation, error)
	SaveVerdict(ctx context.Context, v *closure.VerifyVerdict) error
	FindVerdictByRun(ctx context.Context, runID model.RunID) (*closure.VerifyVerdict, error)
	FindLatestVerdict(ctx context.Context, entityID model.EntityID) (*closure.VerifyVerdict, error)
}

// EventRepository is the append-only audit ledger
type EventRepository interface {
	Append(ctx context.Context, e *timeline.Event) error
	ListByEntity(ctx context.Context, entityID model.EntityID) ([]*timeline.Event, error)
	ListByRun(ctx context.Context, runID model.RunID) ([]*timeline.Event, error)
}

// StopDecisionRepository is the audit ledger for stop-gate evaluations
type StopDecisionRepository interface {
	Append(ctx context.Context, entityID model.EntityID, runID model.RunID, res stopgate.Result) error
	ListByEntity(ctx context.Context, entityID model.EntityID) ([]stopgate.Result, error)
}
