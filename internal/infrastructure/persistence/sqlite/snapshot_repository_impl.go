package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/snapshot"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// SnapshotRepositoryImpl implements repository.SnapshotRepository with SQLite
type SnapshotRepositoryImpl struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SQLite-based snapshot repository
func NewSnapshotRepository(db *sql.DB) repository.SnapshotRepository {
	return &SnapshotRepositoryImpl{db: db}
}

// checkRow is the persisted JSON shape of one check
type checkRow struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// InsertIfAbsent inserts the snapshot unless a row with the same content
// hash exists for the same (owner, repo, ref); the existing row wins.
func (r *SnapshotRepositoryImpl) InsertIfAbsent(ctx context.Context, s *snapshot.ChecksSnapshot) (*snapshot.ChecksSnapshot, error) {
	existing, err := r.findByHash(ctx, s.RepoOwner(), s.RepoName(), s.Ref(), s.Hash())
	if err == nil {
		return existing, nil
	}

	rows := make([]checkRow, 0, len(s.Checks()))
	for _, c := range s.Checks() {
		rows = append(rows, checkRow{Name: c.Name, Status: string(c.Status), Conclusion: c.Conclusion})
	}
	checksJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal checks: %w", err)
	}

	query := `
		INSERT INTO checks_snapshots (id, repo_owner, repo_name, ref, checks_json, total_checks, failed_checks, pending_checks, snapshot_hash, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		s.ID(), s.RepoOwner(), s.RepoName(), s.Ref(),
		string(checksJSON), s.TotalChecks(), s.FailedChecks(), s.PendingChecks(),
		s.Hash(), s.CapturedAt().String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Concurrent capture inserted the same content first
			return r.findByHash(ctx, s.RepoOwner(), s.RepoName(), s.Ref(), s.Hash())
		}
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	return s, nil
}

// GetLatest returns the most recently captured snapshot for a ref
func (r *SnapshotRepositoryImpl) GetLatest(ctx context.Context, owner, repo, ref string) (*snapshot.ChecksSnapshot, error) {
	query := `
		SELECT id, repo_owner, repo_name, ref, checks_json, total_checks, failed_checks, pending_checks, snapshot_hash, captured_at
		FROM checks_snapshots
		WHERE repo_owner = ? AND repo_name = ? AND ref = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, owner, repo, ref), fmt.Sprintf("%s/%s@%s", owner, repo, ref))
}

// FindByID retrieves a snapshot by row ID
func (r *SnapshotRepositoryImpl) FindByID(ctx context.Context, id string) (*snapshot.ChecksSnapshot, error) {
	query := `
		SELECT id, repo_owner, repo_name, ref, checks_json, total_checks, failed_checks, pending_checks, snapshot_hash, captured_at
		FROM checks_snapshots
		WHERE id = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

func (r *SnapshotRepositoryImpl) findByHash(ctx context.Context, owner, repo, ref, hash string) (*snapshot.ChecksSnapshot, error) {
	query := `
		SELECT id, repo_owner, repo_name, ref, checks_json, total_checks, failed_checks, pending_checks, snapshot_hash, captured_at
		FROM checks_snapshots
		WHERE repo_owner = ? AND repo_name = ? AND ref = ? AND snapshot_hash = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, owner, repo, ref, hash), hash)
}

func (r *SnapshotRepositoryImpl) scanOne(row *sql.Row, what string) (*snapshot.ChecksSnapshot, error) {
	var (
		id, owner, repo, ref, checksJSON, hash, capturedAtStr string
		total, failed, pending                                int
	)

	err := row.Scan(&id, &owner, &repo, &ref, &checksJSON, &total, &failed, &pending, &hash, &capturedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("snapshot %s: %w", what, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	var rows []checkRow
	if err := json.Unmarshal([]byte(checksJSON), &rows); err != nil {
		return nil, fmt.Errorf("unmarshal checks: %w", err)
	}
	checks := make([]snapshot.Check, 0, len(rows))
	for _, c := range rows {
		checks = append(checks, snapshot.Check{Name: c.Name, Status: snapshot.CheckStatus(c.Status), Conclusion: c.Conclusion})
	}

	capturedAt, err := time.Parse(time.RFC3339, capturedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse captured_at: %w", err)
	}

	return snapshot.Reconstruct(id, owner, repo, ref, checks, total, failed, pending, hash, capturedAt), nil
}

// SaveObservation inserts a deploy observation row
func (r *SnapshotRepositoryImpl) SaveObservation(ctx context.Context, o *snapshot.DeployObservation) error {
	query := `
		INSERT INTO deploy_observations (id, entity_id, run_id, deployment_id, environment, state, healthy, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	healthy := 0
	if o.Healthy() {
		healthy = 1
	}

	_, err := r.db.ExecContext(ctx, query,
		o.ID(), o.EntityID().String(), o.RunID().String(),
		o.DeploymentID(), o.Environment(), o.State(), healthy,
		o.ObservedAt().String(),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// FindLatestObservation returns the most recent deploy observation for
// the entity, or repository.ErrNotFound when none has been recorded
func (r *SnapshotRepositoryImpl) FindLatestObservation(ctx context.Context, entityID model.EntityID) (*snapshot.DeployObservation, error) {
	query := `
		SELECT id, entity_id, run_id, deployment_id, environment, state, healthy, observed_at
		FROM deploy_observations
		WHERE entity_id = ?
		ORDER BY observed_at DESC, rowid DESC
		LIMIT 1
	`

	var (
		id, entityIDStr, runIDStr, environment, state, observedAtStr string
		deploymentID                                                 int64
		healthyInt                                                   int
	)
	err := r.db.QueryRowContext(ctx, query, entityID.String()).Scan(
		&id, &entityIDStr, &runIDStr, &deploymentID, &environment, &state, &healthyInt, &observedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("observation for entity %s: %w", entityID.String(), repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan observation: %w", err)
	}

	eid, err := model.NewEntityIDFromString(entityIDStr)
	if err != nil {
		return nil, fmt.Errorf("parse entity_id: %w", err)
	}
	rid, err := model.NewRunIDFromString(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("parse run_id: %w", err)
	}
	observedAt, err := time.Parse(time.RFC3339, observedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse observed_at: %w", err)
	}

	return snapshot.ReconstructDeployObservation(id, eid, rid, deploymentID, environment, state, healthyInt == 1, observedAt), nil
}

// HasObservation reports whether any deploy observation exists for the entity
func (r *SnapshotRepositoryImpl) HasObservation(ctx context.Context, entityID model.EntityID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deploy_observations WHERE entity_id = ?`,
		entityID.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count observations: %w", err)
	}
	return count > 0, nil
}
