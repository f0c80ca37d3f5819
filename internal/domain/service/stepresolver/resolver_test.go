package stepresolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
)

func entityInState(t *testing.T, state model.EntityState, withPR bool) *entity.Entity {
	t.Helper()
	link := entity.GitHubLink{}
	if withPR {
		link = entity.GitHubLink{Owner: "acme", Repo: "widgets", PRNumber: 7, Ref: "abc123"}
	}
	id, err := model.NewEntityIDFromString("ent-1")
	require.NoError(t, err)
	now := time.Now().UTC()
	return entity.Reconstruct(id, "test entity", state, link, "", now, now)
}

func TestResolve_NilEntity(t *testing.T) {
	res := Resolve(Facts{})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerUnknownState, res.BlockerCode)
}

func TestResolve_CreatedUnpicked(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.StateCreated, false)})
	assert.Equal(t, model.StepPick, res.Step)
	assert.False(t, res.Blocked)
}

func TestResolve_CreatedPickedWithoutDraft(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.StateCreated, false), Picked: true})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerNoDraft, res.BlockerCode)
}

func TestResolve_CreatedPickedWithInvalidDraft(t *testing.T) {
	e := entityInState(t, model.StateCreated, false)
	draft := entity.NewDraft(e.ID(), "")

	res := Resolve(Facts{Entity: e, Picked: true, Draft: draft})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerDraftInvalid, res.BlockerCode)
}

func TestResolve_CreatedPickedWithReadyDraft(t *testing.T) {
	e := entityInState(t, model.StateCreated, false)
	draft := entity.NewDraft(e.ID(), "a real spec body")

	res := Resolve(Facts{Entity: e, Picked: true, Draft: draft})
	assert.Equal(t, model.StepSpec, res.Step)
}

func TestResolve_SpecReady(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.StateSpecReady, false)})
	assert.Equal(t, model.StepImplementPrep, res.Step)
}

func TestResolve_ImplementingPrepNeedsPR(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.StateImplementingPrep, false)})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerNoGitHubLink, res.BlockerCode)

	res = Resolve(Facts{Entity: entityInState(t, model.StateImplementingPrep, true)})
	assert.Equal(t, model.StepReview, res.Step)
}

func TestResolve_ReviewReadyNeedsPR(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.StateReviewReady, false)})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerNoGitHubLink, res.BlockerCode)

	res = Resolve(Facts{Entity: entityInState(t, model.StateReviewReady, true)})
	assert.Equal(t, model.StepMerge, res.Step)
}

func TestResolve_DoneBranchesOnObservation(t *testing.T) {
	e := entityInState(t, model.StateDone, true)

	res := Resolve(Facts{Entity: e})
	assert.Equal(t, model.StepDeployObserve, res.Step)

	res = Resolve(Facts{Entity: e, HasDeployObservation: true})
	assert.Equal(t, model.StepVerify, res.Step)
}

func TestResolve_VerifiedNeedsGreenVerdict(t *testing.T) {
	e := entityInState(t, model.StateVerified, true)

	res := Resolve(Facts{Entity: e})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerNoGreenVerdict, res.BlockerCode)

	res = Resolve(Facts{Entity: e, HasGreenVerdict: true})
	assert.Equal(t, model.StepClose, res.Step)
}

func TestResolve_HoldIsBlocked(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.StateHold, true)})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerOnHold, res.BlockerCode)
}

func TestResolve_ClosedIsTerminal(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.StateClosed, true)})
	assert.True(t, res.Terminal)
	assert.False(t, res.Blocked)
	assert.Empty(t, res.BlockerCode)
}

func TestResolve_UnknownState(t *testing.T) {
	res := Resolve(Facts{Entity: entityInState(t, model.EntityState("BOGUS"), false)})
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockerUnknownState, res.BlockerCode)
}

// Resolve is pure: the same facts always produce the same resolution.
func TestResolve_Deterministic(t *testing.T) {
	e := entityInState(t, model.StateDone, true)
	f := Facts{Entity: e, HasDeployObservation: true}

	first := Resolve(f)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(f))
	}
}
