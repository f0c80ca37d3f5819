package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model/lock"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// IdempotencyRepositoryImpl implements repository.IdempotencyRepository with SQLite
type IdempotencyRepositoryImpl struct {
	db *sql.DB
}

// NewIdempotencyRepository creates a new SQLite-based idempotency repository
func NewIdempotencyRepository(db *sql.DB) repository.IdempotencyRepository {
	return &IdempotencyRepositoryImpl{db: db}
}

// Find retrieves an unexpired record; expired rows read as not found
func (r *IdempotencyRepositoryImpl) Find(ctx context.Context, key lock.Key) (*lock.IdempotencyRecord, error) {
	query := `
		SELECT lock_key, cached_response, created_at, expires_at
		FROM idempotency_records
		WHERE lock_key = ? AND expires_at >= ?
	`

	row := r.db.QueryRowContext(ctx, query, key.String(), time.Now().UTC().Format(time.RFC3339))

	var keyStr, cachedResponse, createdAtStr, expiresAtStr string
	err := row.Scan(&keyStr, &cachedResponse, &createdAtStr, &expiresAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("idempotency record %s: %w", key.String(), repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan idempotency record: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	k, err := lock.NewKeyFromString(keyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid lock key: %w", err)
	}
	return lock.ReconstructIdempotencyRecord(k, cachedResponse, createdAt, expiresAt), nil
}

// Save upserts a cached response under its key. An overwrite can only
// replace an expired row because live keys are serialized by the lock.
func (r *IdempotencyRepositoryImpl) Save(ctx context.Context, rec *lock.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (lock_key, cached_response, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lock_key) DO UPDATE SET
			cached_response = excluded.cached_response,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.Key().String(),
		rec.CachedResponse(),
		rec.CreatedAt().String(),
		rec.ExpiresAt().String(),
	)
	if err != nil {
		return fmt.Errorf("save idempotency record: %w", err)
	}
	return nil
}

// CleanupExpired removes expired records
func (r *IdempotencyRepositoryImpl) CleanupExpired(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(rows), nil
}
