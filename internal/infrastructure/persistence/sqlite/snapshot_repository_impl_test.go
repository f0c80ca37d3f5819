package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/snapshot"
	"github.com/stewardhq/steward/internal/domain/repository"
)

func greenChecks() []snapshot.Check {
	return []snapshot.Check{
		{Name: "build", Status: snapshot.CheckCompleted, Conclusion: "success"},
		{Name: "test", Status: snapshot.CheckCompleted, Conclusion: "success"},
	}
}

func TestSnapshotRepository_InsertIfAbsent_Deduplicates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	first, err := snapshot.New("acme", "widgets", "abc123", greenChecks())
	require.NoError(t, err)
	stored, err := repo.InsertIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), stored.ID())

	// Same content captured again returns the original row
	second, err := snapshot.New("acme", "widgets", "abc123", greenChecks())
	require.NoError(t, err)
	dedup, err := repo.InsertIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), dedup.ID())
	assert.Equal(t, first.Hash(), dedup.Hash())
}

func TestSnapshotRepository_InsertIfAbsent_DifferentContentInserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	green, err := snapshot.New("acme", "widgets", "abc123", greenChecks())
	require.NoError(t, err)
	_, err = repo.InsertIfAbsent(ctx, green)
	require.NoError(t, err)

	red, err := snapshot.New("acme", "widgets", "abc123", []snapshot.Check{
		{Name: "build", Status: snapshot.CheckCompleted, Conclusion: "failure"},
	})
	require.NoError(t, err)
	stored, err := repo.InsertIfAbsent(ctx, red)
	require.NoError(t, err)
	assert.Equal(t, red.ID(), stored.ID())
}

func TestSnapshotRepository_FindByID_Roundtrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	snap, err := snapshot.New("acme", "widgets", "abc123", greenChecks())
	require.NoError(t, err)
	_, err = repo.InsertIfAbsent(ctx, snap)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, snap.ID())
	require.NoError(t, err)
	assert.Equal(t, snap.Hash(), found.Hash())
	assert.Equal(t, snap.TotalChecks(), found.TotalChecks())
	assert.Equal(t, snap.FailedChecks(), found.FailedChecks())
	assert.Equal(t, snap.Checks(), found.Checks())

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSnapshotRepository_GetLatest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	_, err := repo.GetLatest(ctx, "acme", "widgets", "abc123")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	snap, err := snapshot.New("acme", "widgets", "abc123", greenChecks())
	require.NoError(t, err)
	_, err = repo.InsertIfAbsent(ctx, snap)
	require.NoError(t, err)

	latest, err := repo.GetLatest(ctx, "acme", "widgets", "abc123")
	require.NoError(t, err)
	assert.Equal(t, snap.ID(), latest.ID())
}

func TestSnapshotRepository_Observations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	entityID, err := model.NewEntityIDFromString("ent-201")
	require.NoError(t, err)

	has, err := repo.HasObservation(ctx, entityID)
	require.NoError(t, err)
	assert.False(t, has)

	obs, err := snapshot.NewDeployObservation(entityID, model.NewRunID(), 42, "production", "success", true)
	require.NoError(t, err)
	require.NoError(t, repo.SaveObservation(ctx, obs))

	has, err = repo.HasObservation(ctx, entityID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSnapshotRepository_FindLatestObservation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	entityID, err := model.NewEntityIDFromString("ent-202")
	require.NoError(t, err)

	_, err = repo.FindLatestObservation(ctx, entityID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	first, err := snapshot.NewDeployObservation(entityID, model.NewRunID(), 42, "production", "failure", false)
	require.NoError(t, err)
	require.NoError(t, repo.SaveObservation(ctx, first))

	second, err := snapshot.NewDeployObservation(entityID, model.NewRunID(), 43, "production", "success", true)
	require.NoError(t, err)
	require.NoError(t, repo.SaveObservation(ctx, second))

	latest, err := repo.FindLatestObservation(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, int64(43), latest.DeploymentID())
	assert.Equal(t, "success", latest.State())
	assert.True(t, latest.Healthy())
	assert.Equal(t, entityID.String(), latest.EntityID().String())
}
