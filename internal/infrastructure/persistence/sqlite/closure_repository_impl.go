package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/closure"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// ClosureRepositoryImpl implements repository.ClosureRepository with SQLite
type ClosureRepositoryImpl struct {
	db *sql.DB
}

// NewClosureRepository creates a new SQLite-based closure repository
func NewClosureRepository(db *sql.DB) repository.ClosureRepository {
	return &ClosureRepositoryImpl{db: db}
}

// SaveRecord inserts the closure record; the UNIQUE(entity_id) constraint
// keeps CLOSED reachable exactly once.
func (r *ClosureRepositoryImpl) SaveRecord(ctx context.Context, rec *closure.Record) error {
	query := `
		INSERT INTO closure_records (id, entity_id, run_id, verdict_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID(), rec.EntityID().String(), rec.RunID().String(), rec.VerdictID(), rec.CreatedAt().String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("closure for %s: %w", rec.EntityID().String(), repository.ErrAlreadyExists)
		}
		return fmt.Errorf("insert closure record: %w", err)
	}
	return nil
}

// FindRecord retrieves the closure record for an entity
func (r *ClosureRepositoryImpl) FindRecord(ctx context.Context, entityID model.EntityID) (*closure.Record, error) {
	query := `SELECT id, entity_id, run_id, verdict_id, created_at FROM closure_records WHERE entity_id = ?`

	row := r.db.QueryRowContext(ctx, query, entityID.String())

	var id, entityIDStr, runIDStr, verdictID, createdAtStr string
	err := row.Scan(&id, &entityIDStr, &runIDStr, &verdictID, &createdAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("closure for %s: %w", entityID.String(), repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan closure record: %w", err)
	}

	eid, runID, createdAt, err := parseRecordRefs(entityIDStr, runIDStr, createdAtStr)
	if err != nil {
		return nil, err
	}
	return closure.ReconstructRecord(id, eid, runID, verdictID, createdAt), nil
}

// SaveRemediation appends a remediation record
func (r *ClosureRepositoryImpl) SaveRemediation(ctx context.Context, rec *closure.Remediation) error {
	query := `
		INSERT INTO remediation_records (id, entity_id, run_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID(), rec.EntityID().String(), rec.RunID().String(), rec.Reason(), rec.CreatedAt().String(),
	)
	if err != nil {
		return fmt.Errorf("insert remediation record: %w", err)
	}
	return nil
}

// ListRemediations lists remediation records for an entity, newest first
func (r *ClosureRepositoryImpl) ListRemediations(ctx context.Context, entityID model.EntityID) ([]*closure.Remediation, error) {
	query := `
		SELECT id, entity_id, run_id, reason, created_at
		FROM remediation_records
		WHERE entity_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, entityID.String())
	if err != nil {
		return nil, fmt.Errorf("query remediations: %w", err)
	}
	defer rows.Close()

	var records []*closure.Remediation
	for rows.Next() {
		var id, entityIDStr, runIDStr, reason, createdAtStr string
		if err := rows.Scan(&id, &entityIDStr, &runIDStr, &reason, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan remediation record: %w", err)
		}
		eid, runID, createdAt, err := parseRecordRefs(entityIDStr, runIDStr, createdAtStr)
		if err != nil {
			return nil, err
		}
		records = append(records, closure.ReconstructRemediation(id, eid, runID, reason, createdAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate remediations: %w", err)
	}
	return records, nil
}

// SaveVerdict inserts a verify verdict; UNIQUE(run_id) keeps one per run
func (r *ClosureRepositoryImpl) SaveVerdict(ctx context.Context, v *closure.VerifyVerdict) error {
	query := `
		INSERT INTO verify_verdicts (id, entity_id, run_id, verdict, snapshot_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		v.ID(), v.EntityID().String(), v.RunID().String(),
		string(v.Verdict()), v.SnapshotID(), v.Detail(), v.CreatedAt().String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("verdict for run %s: %w", v.RunID().String(), repository.ErrAlreadyExists)
		}
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// FindVerdictByRun retrieves the verdict written by a run
func (r *ClosureRepositoryImpl) FindVerdictByRun(ctx context.Context, runID model.RunID) (*closure.VerifyVerdict, error) {
	query := `
		SELECT id, entity_id, run_id, verdict, snapshot_id, detail, created_at
		FROM verify_verdicts
		WHERE run_id = ?
	`
	return r.scanVerdict(r.db.QueryRowContext(ctx, query, runID.String()), runID.String())
}

// FindLatestVerdict retrieves the most recent verdict for an entity
func (r *ClosureRepositoryImpl) FindLatestVerdict(ctx context.Context, entityID model.EntityID) (*closure.VerifyVerdict, error) {
	query := `
		SELECT id, entity_id, run_id, verdict, snapshot_id, detail, created_at
		FROM verify_verdicts
		WHERE entity_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.scanVerdict(r.db.QueryRowContext(ctx, query, entityID.String()), entityID.String())
}

func (r *ClosureRepositoryImpl) scanVerdict(row *sql.Row, what string) (*closure.VerifyVerdict, error) {
	var id, entityIDStr, runIDStr, verdict, snapshotID, detail, createdAtStr string
	err := row.Scan(&id, &entityIDStr, &runIDStr, &verdict, &snapshotID, &detail, &createdAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("verdict %s: %w", what, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan verdict: %w", err)
	}

	eid, runID, createdAt, err := parseRecordRefs(entityIDStr, runIDStr, createdAtStr)
	if err != nil {
		return nil, err
	}
	return closure.ReconstructVerifyVerdict(id, eid, runID, closure.Verdict(verdict), snapshotID, detail, createdAt), nil
}

func parseRecordRefs(entityIDStr, runIDStr, createdAtStr string) (model.EntityID, model.RunID, time.Time, error) {
	entityID, err := model.NewEntityIDFromString(entityIDStr)
	if err != nil {
		return model.EntityID{}, model.RunID{}, time.Time{}, fmt.Errorf("invalid entity ID: %w", err)
	}
	runID, err := model.NewRunIDFromString(runIDStr)
	if err != nil {
		return model.EntityID{}, model.RunID{}, time.Time{}, fmt.Errorf("invalid run ID: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return model.EntityID{}, model.RunID{}, time.Time{}, fmt.Errorf("parse created_at: %w", err)
	}
	return entityID, runID, createdAt, nil
}
