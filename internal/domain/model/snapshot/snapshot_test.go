package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/domain/model"
)

func entityID(t *testing.T) model.EntityID {
	t.Helper()
	id, err := model.NewEntityIDFromString("ent-1")
	require.NoError(t, err)
	return id
}

func runID() model.RunID {
	return model.NewRunID()
}

func TestNew_RequiresCoordinates(t *testing.T) {
	_, err := New("", "widgets", "abc", nil)
	assert.Error(t, err)
	_, err = New("acme", "", "abc", nil)
	assert.Error(t, err)
	_, err = New("acme", "widgets", "", nil)
	assert.Error(t, err)
}

func TestNew_CountsFailedAndPending(t *testing.T) {
	snap, err := New("acme", "widgets", "abc", []Check{
		{Name: "build", Status: CheckCompleted, Conclusion: "success"},
		{Name: "test", Status: CheckCompleted, Conclusion: "failure"},
		{Name: "lint", Status: CheckCompleted, Conclusion: "timed_out"},
		{Name: "deploy", Status: CheckInProgress},
		{Name: "scan", Status: CheckQueued},
		{Name: "optional", Status: CheckCompleted, Conclusion: "neutral"},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, snap.TotalChecks())
	assert.Equal(t, 2, snap.FailedChecks())
	assert.Equal(t, 2, snap.PendingChecks())
}

func TestHash_IgnoresCheckOrder(t *testing.T) {
	a, err := New("acme", "widgets", "abc", []Check{
		{Name: "build", Status: CheckCompleted, Conclusion: "success"},
		{Name: "test", Status: CheckCompleted, Conclusion: "failure"},
	})
	require.NoError(t, err)

	b, err := New("acme", "widgets", "abc", []Check{
		{Name: "test", Status: CheckCompleted, Conclusion: "failure"},
		{Name: "build", Status: CheckCompleted, Conclusion: "success"},
	})
	require.NoError(t, err)

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestHash_SensitiveToContent(t *testing.T) {
	base, err := New("acme", "widgets", "abc", []Check{
		{Name: "build", Status: CheckCompleted, Conclusion: "success"},
	})
	require.NoError(t, err)

	changedConclusion, err := New("acme", "widgets", "abc", []Check{
		{Name: "build", Status: CheckCompleted, Conclusion: "failure"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, base.Hash(), changedConclusion.Hash())

	changedRef, err := New("acme", "widgets", "def", []Check{
		{Name: "build", Status: CheckCompleted, Conclusion: "success"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, base.Hash(), changedRef.Hash())
}

func TestHash_EmptyCheckSetIsStillHashed(t *testing.T) {
	a, err := New("acme", "widgets", "abc", nil)
	require.NoError(t, err)
	b, err := New("acme", "widgets", "abc", []Check{})
	require.NoError(t, err)

	assert.NotEmpty(t, a.Hash())
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, 0, a.TotalChecks())
}

func TestNewDeployObservation_RequiresDeploymentID(t *testing.T) {
	_, err := NewDeployObservation(entityID(t), runID(), 0, "production", "success", true)
	assert.Error(t, err)

	obs, err := NewDeployObservation(entityID(t), runID(), 42, "production", "success", true)
	require.NoError(t, err)
	assert.Equal(t, int64(42), obs.DeploymentID())
	assert.True(t, obs.Healthy())
	assert.NotEmpty(t, obs.ID())
}
