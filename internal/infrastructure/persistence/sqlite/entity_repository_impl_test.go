package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
	"github.com/stewardhq/steward/internal/domain/repository"
)

func saveTestEntity(t *testing.T, repo repository.EntityRepository, idStr string) *entity.Entity {
	t.Helper()
	id, err := model.NewEntityIDFromString(idStr)
	require.NoError(t, err)
	e, err := entity.New(id, "ship the widget")
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), e))
	return e
}

func TestEntityRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	e := saveTestEntity(t, repo, "ent-301")
	require.NoError(t, e.AttachLink(entity.GitHubLink{Owner: "acme", Repo: "widgets", PRNumber: 7, Ref: "abc"}))
	require.NoError(t, repo.Save(ctx, e))

	found, err := repo.Find(ctx, e.ID())
	require.NoError(t, err)
	assert.Equal(t, e.Title(), found.Title())
	assert.Equal(t, model.StateCreated, found.State())
	assert.Equal(t, e.Link(), found.Link())
}

func TestEntityRepository_FindMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	id, err := model.NewEntityIDFromString("nope")
	require.NoError(t, err)
	_, err = repo.Find(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEntityRepository_SavePersistsStateAndHoldReason(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	e := saveTestEntity(t, repo, "ent-302")
	require.NoError(t, e.Hold("operator requested freeze"))
	require.NoError(t, repo.Save(ctx, e))

	found, err := repo.Find(ctx, e.ID())
	require.NoError(t, err)
	assert.Equal(t, model.StateHold, found.State())
	assert.Equal(t, "operator requested freeze", found.HoldReason())
}

func TestEntityRepository_Drafts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	e := saveTestEntity(t, repo, "ent-303")

	_, err := repo.FindDraft(ctx, e.ID())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.SaveDraft(ctx, entity.NewDraft(e.ID(), "first body")))
	require.NoError(t, repo.SaveDraft(ctx, entity.NewDraft(e.ID(), "second body")))

	draft, err := repo.FindDraft(ctx, e.ID())
	require.NoError(t, err)
	assert.Equal(t, "second body", draft.Body())
	assert.True(t, draft.IsReady())
}

func TestEntityRepository_MarkPickedOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	e := saveTestEntity(t, repo, "ent-304")

	picked, err := repo.IsPicked(ctx, e.ID())
	require.NoError(t, err)
	assert.False(t, picked)

	require.NoError(t, repo.MarkPicked(ctx, e.ID(), "alice"))
	picked, err = repo.IsPicked(ctx, e.ID())
	require.NoError(t, err)
	assert.True(t, picked)

	// A second pick does not steal ownership
	require.NoError(t, repo.MarkPicked(ctx, e.ID(), "bob"))
	var pickedBy string
	require.NoError(t, db.QueryRow(`SELECT picked_by FROM entities WHERE id = ?`, e.ID().String()).Scan(&pickedBy))
	assert.Equal(t, "alice", pickedBy)
}
