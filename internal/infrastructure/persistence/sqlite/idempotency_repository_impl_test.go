package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/domain/model/lock"
	"github.com/stewardhq/steward/internal/domain/repository"
)

func TestIdempotencyRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	key := testLockKey(t, "ent-101")

	_, err := repo.Find(ctx, key)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	rec := lock.NewIdempotencyRecord(key, `{"status":"completed"}`, time.Hour)
	require.NoError(t, repo.Save(ctx, rec))

	found, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"completed"}`, found.CachedResponse())
	assert.True(t, key.Equals(found.Key()))
}

func TestIdempotencyRepository_ExpiredReadsAsNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	key := testLockKey(t, "ent-102")

	rec := lock.NewIdempotencyRecord(key, "{}", -time.Minute)
	require.NoError(t, repo.Save(ctx, rec))

	_, err := repo.Find(ctx, key)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIdempotencyRepository_SaveOverwritesExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	key := testLockKey(t, "ent-103")

	require.NoError(t, repo.Save(ctx, lock.NewIdempotencyRecord(key, "old", -time.Minute)))
	require.NoError(t, repo.Save(ctx, lock.NewIdempotencyRecord(key, "new", time.Hour)))

	found, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "new", found.CachedResponse())
}

func TestIdempotencyRepository_CleanupExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, lock.NewIdempotencyRecord(testLockKey(t, "ent-104"), "{}", -time.Minute)))
	require.NoError(t, repo.Save(ctx, lock.NewIdempotencyRecord(testLockKey(t, "ent-105"), "{}", time.Hour)))

	removed, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Find(ctx, testLockKey(t, "ent-105"))
	assert.NoError(t, err)
}
