package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/domain/model"
)

func testKey(t *testing.T, entityID, actor string, step model.Step, mode model.RunMode) Key {
	t.Helper()
	id, err := model.NewEntityIDFromString(entityID)
	require.NoError(t, err)
	k, err := NewKey(id, step, mode, actor)
	require.NoError(t, err)
	return k
}

func TestNewKey_Deterministic(t *testing.T) {
	a := testKey(t, "ent-1", "alice", model.StepMerge, model.ModeExecute)
	b := testKey(t, "ent-1", "alice", model.StepMerge, model.ModeExecute)
	assert.True(t, a.Equals(b))
	assert.Len(t, a.String(), 64)
}

func TestNewKey_ComponentsMatter(t *testing.T) {
	base := testKey(t, "ent-1", "alice", model.StepMerge, model.ModeExecute)

	assert.False(t, base.Equals(testKey(t, "ent-2", "alice", model.StepMerge, model.ModeExecute)))
	assert.False(t, base.Equals(testKey(t, "ent-1", "bob", model.StepMerge, model.ModeExecute)))
	assert.False(t, base.Equals(testKey(t, "ent-1", "alice", model.StepVerify, model.ModeExecute)))
	assert.False(t, base.Equals(testKey(t, "ent-1", "alice", model.StepMerge, model.ModeDryRun)))
}

func TestNewKey_SeparatorPreventsAmbiguity(t *testing.T) {
	// "ab" + "c..." must not collide with "a" + "bc..." style splits
	a := testKey(t, "ent", "xalice", model.StepMerge, model.ModeExecute)
	b := testKey(t, "entx", "alice", model.StepMerge, model.ModeExecute)
	assert.False(t, a.Equals(b))
}

func TestNewKey_Validation(t *testing.T) {
	id, err := model.NewEntityIDFromString("ent-1")
	require.NoError(t, err)

	_, err = NewKey(model.EntityID{}, model.StepMerge, model.ModeExecute, "alice")
	assert.Error(t, err)
	_, err = NewKey(id, model.StepMerge, model.ModeExecute, "")
	assert.Error(t, err)
}

func TestRunLock_Expiry(t *testing.T) {
	k := testKey(t, "ent-1", "alice", model.StepMerge, model.ModeExecute)

	live := NewRunLock(k, "alice/req-1", time.Minute)
	assert.False(t, live.IsExpired())
	assert.Greater(t, live.RemainingTime(), time.Duration(0))

	expired := ReconstructRunLock(k, "alice/req-1", time.Now().Add(-10*time.Minute), time.Now().Add(-5*time.Minute))
	assert.True(t, expired.IsExpired())
}

func TestIdempotencyRecord_Expiry(t *testing.T) {
	k := testKey(t, "ent-1", "alice", model.StepMerge, model.ModeExecute)

	live := NewIdempotencyRecord(k, `{"status":"completed"}`, time.Hour)
	assert.False(t, live.IsExpired())
	assert.Equal(t, `{"status":"completed"}`, live.CachedResponse())

	expired := ReconstructIdempotencyRecord(k, "{}", time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	assert.True(t, expired.IsExpired())
}
