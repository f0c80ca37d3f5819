package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model/lock"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// LockRepositoryImpl implements repository.LockRepository with SQLite
type LockRepositoryImpl struct {
	db *sql.DB
}

// NewLockRepository creates a new SQLite-based lock repository
func NewLockRepository(db *sql.DB) repository.LockRepository {
	return &LockRepositoryImpl{db: db}
}

// Acquire attempts to acquire the lock, reclaiming an expired one
// atomically. Returns (nil, nil) when the lock is held and live.
func (r *LockRepositoryImpl) Acquire(ctx context.Context, key lock.Key, holder string, ttl time.Duration) (*lock.RunLock, error) {
	now := time.Now().UTC()

	// Clear any expired lock first; losing this race to another process
	// is fine, the insert below settles ownership.
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM locks WHERE lock_key = ? AND expires_at < ?`,
		key.String(), now.Format(time.RFC3339),
	); err != nil {
		return nil, fmt.Errorf("cleanup expired lock: %w", err)
	}

	runLock := lock.NewRunLock(key, holder, ttl)

	insertQuery := `
		INSERT INTO locks (lock_key, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, insertQuery,
		runLock.Key().String(),
		runLock.Holder(),
		runLock.AcquiredAt().String(),
		runLock.ExpiresAt().String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// A live holder owns the lock
			return nil, nil
		}
		return nil, fmt.Errorf("insert lock: %w", err)
	}

	return runLock, nil
}

// Release releases a lock
func (r *LockRepositoryImpl) Release(ctx context.Context, key lock.Key) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM locks WHERE lock_key = ?`, key.String())
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lock %s: %w", key.String(), lock.ErrLockNotFound)
	}
	return nil
}

// Find retrieves a lock by key
func (r *LockRepositoryImpl) Find(ctx context.Context, key lock.Key) (*lock.RunLock, error) {
	query := `SELECT lock_key, holder, acquired_at, expires_at FROM locks WHERE lock_key = ?`

	row := r.db.QueryRowContext(ctx, query, key.String())

	var keyStr, holder, acquiredAtStr, expiresAtStr string
	err := row.Scan(&keyStr, &holder, &acquiredAtStr, &expiresAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("lock %s: %w", key.String(), lock.ErrLockNotFound)
		}
		return nil, fmt.Errorf("scan lock: %w", err)
	}

	return reconstructLock(keyStr, holder, acquiredAtStr, expiresAtStr)
}

// List lists all lock rows, newest first
func (r *LockRepositoryImpl) List(ctx context.Context) ([]*lock.RunLock, error) {
	query := `SELECT lock_key, holder, acquired_at, expires_at FROM locks ORDER BY acquired_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()

	var locks []*lock.RunLock
	for rows.Next() {
		var keyStr, holder, acquiredAtStr, expiresAtStr string
		if err := rows.Scan(&keyStr, &holder, &acquiredAtStr, &expiresAtStr); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		l, err := reconstructLock(keyStr, holder, acquiredAtStr, expiresAtStr)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locks: %w", err)
	}
	return locks, nil
}

// CleanupExpired removes expired locks
func (r *LockRepositoryImpl) CleanupExpired(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM locks WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired locks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(rows), nil
}

func reconstructLock(keyStr, holder, acquiredAtStr, expiresAtStr string) (*lock.RunLock, error) {
	acquiredAt, err := time.Parse(time.RFC3339, acquiredAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse acquired_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	key, err := lock.NewKeyFromString(keyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid lock key: %w", err)
	}
	return lock.ReconstructRunLock(key, holder, acquiredAt, expiresAt), nil
}
