package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// EventRepositoryImpl implements repository.EventRepository with SQLite.
// The events table is append-only; nothing here updates or deletes.
type EventRepositoryImpl struct {
	db *sql.DB
}

// NewEventRepository creates a new SQLite-based event repository
func NewEventRepository(db *sql.DB) repository.EventRepository {
	return &EventRepositoryImpl{db: db}
}

// Append inserts an audit event
func (r *EventRepositoryImpl) Append(ctx context.Context, e *timeline.Event) error {
	query := `
		INSERT INTO events (id, entity_id, run_id, kind, step, state_before, state_after, blocker_code, detail, request_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID(),
		e.EntityID().String(),
		e.RunID().String(),
		string(e.Kind()),
		e.Step().String(),
		e.StateBefore().String(),
		e.StateAfter().String(),
		e.BlockerCode(),
		e.Detail(),
		e.RequestID(),
		e.OccurredAt().String(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByEntity lists events for an entity, newest first
func (r *EventRepositoryImpl) ListByEntity(ctx context.Context, entityID model.EntityID) ([]*timeline.Event, error) {
	query := `
		SELECT id, entity_id, run_id, kind, step, state_before, state_after, blocker_code, detail, request_id, occurred_at
		FROM events
		WHERE entity_id = ?
		ORDER BY occurred_at DESC, id DESC
	`
	return r.list(ctx, query, entityID.String())
}

// ListByRun lists events for a run, newest first
func (r *EventRepositoryImpl) ListByRun(ctx context.Context, runID model.RunID) ([]*timeline.Event, error) {
	query := `
		SELECT id, entity_id, run_id, kind, step, state_before, state_after, blocker_code, detail, request_id, occurred_at
		FROM events
		WHERE run_id = ?
		ORDER BY occurred_at DESC, id DESC
	`
	return r.list(ctx, query, runID.String())
}

func (r *EventRepositoryImpl) list(ctx context.Context, query string, arg string) ([]*timeline.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*timeline.Event
	for rows.Next() {
		var (
			id, entityIDStr, runIDStr, kind, step string
			stateBefore, stateAfter, blockerCode  string
			detail, requestID, occurredAtStr      string
		)
		if err := rows.Scan(&id, &entityIDStr, &runIDStr, &kind, &step, &stateBefore, &stateAfter,
			&blockerCode, &detail, &requestID, &occurredAtStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		entityID, err := model.NewEntityIDFromString(entityIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid entity ID: %w", err)
		}
		runID, err := model.NewRunIDFromString(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid run ID: %w", err)
		}
		occurredAt, err := time.Parse(time.RFC3339, occurredAtStr)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at: %w", err)
		}

		events = append(events, timeline.Reconstruct(
			id, entityID, runID, timeline.Kind(kind), model.Step(step),
			model.EntityState(stateBefore), model.EntityState(stateAfter),
			blockerCode, detail, requestID, occurredAt,
		))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
