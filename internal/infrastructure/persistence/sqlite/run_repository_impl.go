package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/run"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// RunRepositoryImpl implements repository.RunRepository with SQLite
type RunRepositoryImpl struct {
	db *sql.DB
}

// NewRunRepository creates a new SQLite-based run repository
func NewRunRepository(db *sql.DB) repository.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// Save inserts a new run row
func (r *RunRepositoryImpl) Save(ctx context.Context, rn *run.Run) error {
	query := `
		INSERT INTO runs (id, entity_id, step, mode, status, state_before, state_after, request_id, actor, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rn.ID().String(),
		rn.EntityID().String(),
		rn.Step().String(),
		rn.Mode().String(),
		string(rn.Status()),
		rn.StateBefore().String(),
		rn.StateAfter().String(),
		rn.RequestID(),
		rn.Actor(),
		rn.CreatedAt().String(),
		nullableTimestamp(rn.StartedAt()),
		nullableTimestamp(rn.CompletedAt()),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update writes the run's status and timestamps
func (r *RunRepositoryImpl) Update(ctx context.Context, rn *run.Run) error {
	query := `
		UPDATE runs
		SET status = ?, state_after = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(rn.Status()),
		rn.StateAfter().String(),
		nullableTimestamp(rn.StartedAt()),
		nullableTimestamp(rn.CompletedAt()),
		rn.ID().String(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", rn.ID().String(), repository.ErrNotFound)
	}
	return nil
}

// Find retrieves a run by ID
func (r *RunRepositoryImpl) Find(ctx context.Context, id model.RunID) (*run.Run, error) {
	query := `
		SELECT id, entity_id, step, mode, status, state_before, state_after, request_id, actor, created_at, started_at, completed_at
		FROM runs
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, query, id.String())
	rn, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id.String(), repository.ErrNotFound)
	}
	return rn, err
}

// ListByEntity lists runs for an entity, newest first
func (r *RunRepositoryImpl) ListByEntity(ctx context.Context, entityID model.EntityID) ([]*run.Run, error) {
	query := `
		SELECT id, entity_id, step, mode, status, state_before, state_after, request_id, actor, created_at, started_at, completed_at
		FROM runs
		WHERE entity_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, entityID.String())
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*run.Run
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*run.Run, error) {
	var (
		idStr, entityIDStr, step, mode, status string
		stateBefore, stateAfter                string
		requestID, actor, createdAtStr         string
		startedAtStr, completedAtStr           sql.NullString
	)

	err := row.Scan(&idStr, &entityIDStr, &step, &mode, &status, &stateBefore, &stateAfter,
		&requestID, &actor, &createdAtStr, &startedAtStr, &completedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	startedAt := parseNullableTimestamp(startedAtStr)
	completedAt := parseNullableTimestamp(completedAtStr)

	runID, err := model.NewRunIDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid run ID: %w", err)
	}
	entityID, err := model.NewEntityIDFromString(entityIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid entity ID: %w", err)
	}

	return run.Reconstruct(
		runID, entityID,
		model.Step(step), model.RunMode(mode), run.Status(status),
		model.EntityState(stateBefore), model.EntityState(stateAfter),
		requestID, actor,
		createdAt, startedAt, completedAt,
	), nil
}

func nullableTimestamp(ts model.Timestamp) interface{} {
	if ts.IsZero() {
		return nil
	}
	return ts.String()
}

func parseNullableTimestamp(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
