package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// EntityRepositoryImpl implements repository.EntityRepository with SQLite
type EntityRepositoryImpl struct {
	db *sql.DB
}

// NewEntityRepository creates a new SQLite-based entity repository
func NewEntityRepository(db *sql.DB) repository.EntityRepository {
	return &EntityRepositoryImpl{db: db}
}

// Find retrieves an entity by ID
func (r *EntityRepositoryImpl) Find(ctx context.Context, id model.EntityID) (*entity.Entity, error) {
	query := `
		SELECT id, title, state, gh_owner, gh_repo, gh_pr_number, gh_ref, hold_reason, created_at, updated_at
		FROM entities
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, query, id.String())

	var (
		idStr, title, state        string
		ghOwner, ghRepo, ghRef     string
		ghPRNumber                 int
		holdReason                 string
		createdAtStr, updatedAtStr string
	)

	err := row.Scan(&idStr, &title, &state, &ghOwner, &ghRepo, &ghPRNumber, &ghRef, &holdReason, &createdAtStr, &updatedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("entity %s: %w", id.String(), repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	entityID, err := model.NewEntityIDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid entity ID: %w", err)
	}

	link := entity.GitHubLink{Owner: ghOwner, Repo: ghRepo, PRNumber: ghPRNumber, Ref: ghRef}
	return entity.Reconstruct(entityID, title, model.EntityState(state), link, holdReason, createdAt, updatedAt), nil
}

// Save upserts an entity
func (r *EntityRepositoryImpl) Save(ctx context.Context, e *entity.Entity) error {
	query := `
		INSERT INTO entities (id, title, state, gh_owner, gh_repo, gh_pr_number, gh_ref, hold_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			gh_owner = excluded.gh_owner,
			gh_repo = excluded.gh_repo,
			gh_pr_number = excluded.gh_pr_number,
			gh_ref = excluded.gh_ref,
			hold_reason = excluded.hold_reason,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID().String(),
		e.Title(),
		e.State().String(),
		e.Link().Owner,
		e.Link().Repo,
		e.Link().PRNumber,
		e.Link().Ref,
		e.HoldReason(),
		e.CreatedAt().String(),
		e.UpdatedAt().String(),
	)
	if err != nil {
		return fmt.Errorf("save entity: %w", err)
	}
	return nil
}

// FindDraft retrieves the spec draft for an entity
func (r *EntityRepositoryImpl) FindDraft(ctx context.Context, id model.EntityID) (*entity.Draft, error) {
	query := `SELECT entity_id, body, status, updated_at FROM drafts WHERE entity_id = ?`

	row := r.db.QueryRowContext(ctx, query, id.String())

	var entityIDStr, body, status, updatedAtStr string
	err := row.Scan(&entityIDStr, &body, &status, &updatedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("draft for %s: %w", id.String(), repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan draft: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	entityID, err := model.NewEntityIDFromString(entityIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid entity ID: %w", err)
	}

	return entity.ReconstructDraft(entityID, body, entity.DraftStatus(status), updatedAt), nil
}

// SaveDraft upserts a spec draft
func (r *EntityRepositoryImpl) SaveDraft(ctx context.Context, d *entity.Draft) error {
	query := `
		INSERT INTO drafts (entity_id, body, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			body = excluded.body,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		d.EntityID().String(),
		d.Body(),
		string(d.Status()),
		d.UpdatedAt().String(),
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// IsPicked reports whether the entity has been picked
func (r *EntityRepositoryImpl) IsPicked(ctx context.Context, id model.EntityID) (bool, error) {
	var pickedBy string
	err := r.db.QueryRowContext(ctx, `SELECT picked_by FROM entities WHERE id = ?`, id.String()).Scan(&pickedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("entity %s: %w", id.String(), repository.ErrNotFound)
		}
		return false, fmt.Errorf("scan picked_by: %w", err)
	}
	return pickedBy != "", nil
}

// MarkPicked records the picking actor; picking twice keeps the first actor
func (r *EntityRepositoryImpl) MarkPicked(ctx context.Context, id model.EntityID, actor string) error {
	query := `UPDATE entities SET picked_by = ?, picked_at = ? WHERE id = ? AND picked_by = ''`

	_, err := r.db.ExecContext(ctx, query, actor, time.Now().UTC().Format(time.RFC3339), id.String())
	if err != nil {
		return fmt.Errorf("mark picked: %w", err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a UNIQUE constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
