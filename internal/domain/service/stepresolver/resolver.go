// Package stepresolver maps an entity's current state to the next eligible
// pipeline step. Resolve is total: every input yields a step, an explicit
// blocker, or a terminal no-next-step; it never panics or errors.
package stepresolver

import (
	"fmt"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
)

// Blocker codes returned by Resolve
const (
	BlockerNoGitHubLink        = "NO_GITHUB_LINK"
	BlockerNoDraft             = "NO_DRAFT"
	BlockerDraftInvalid        = "DRAFT_INVALID"
	BlockerNotVerified         = "NOT_VERIFIED"
	BlockerNoGreenVerdict      = "NO_GREEN_VERDICT"
	BlockerInvalidStateForHold = "INVALID_STATE_FOR_HOLD"
	BlockerOnHold              = "ON_HOLD"
	BlockerUnknownState        = "UNKNOWN_STATE"
)

// Facts is the explicit state snapshot the resolver works from. It never
// reads ambient state; callers load and pass everything it needs.
type Facts struct {
	Entity               *entity.Entity
	Draft                *entity.Draft
	Picked               bool
	HasDeployObservation bool
	HasGreenVerdict      bool
}

// Resolution is the resolver outcome
type Resolution struct {
	Step           model.Step
	Blocked        bool
	BlockerCode    string
	BlockerMessage string
	Terminal       bool
}

func blocked(code, message string) Resolution {
	return Resolution{Blocked: true, BlockerCode: code, BlockerMessage: message}
}

func eligible(step model.Step) Resolution {
	return Resolution{Step: step}
}

// Resolve returns the next eligible step for the entity, an explicit
// blocker, or terminal no-next-step for CLOSED.
func Resolve(f Facts) Resolution {
	e := f.Entity
	if e == nil {
		return blocked(BlockerUnknownState, "no entity provided")
	}

	switch e.State() {
	case model.StateCreated:
		if !f.Picked {
			return eligible(model.StepPick)
		}
		if f.Draft == nil {
			return blocked(BlockerNoDraft, "entity has no spec draft")
		}
		if !f.Draft.IsReady() {
			return blocked(BlockerDraftInvalid, "spec draft failed validation")
		}
		return eligible(model.StepSpec)

	case model.StateSpecReady:
		return eligible(model.StepImplementPrep)

	case model.StateImplementingPrep:
		if !e.Link().HasPR() {
			return blocked(BlockerNoGitHubLink, "no pull request associated with entity")
		}
		return eligible(model.StepReview)

	case model.StateReviewReady:
		if !e.Link().HasPR() {
			return blocked(BlockerNoGitHubLink, "no pull request associated with entity")
		}
		return eligible(model.StepMerge)

	case model.StateDone:
		if !f.HasDeployObservation {
			return eligible(model.StepDeployObserve)
		}
		return eligible(model.StepVerify)

	case model.StateVerified:
		if !f.HasGreenVerdict {
			return blocked(BlockerNoGreenVerdict, "close requires a prior GREEN verdict")
		}
		return eligible(model.StepClose)

	case model.StateHold:
		return blocked(BlockerOnHold, "entity is on hold; manual action required to resume")

	case model.StateClosed:
		return Resolution{Terminal: true}

	default:
		return blocked(BlockerUnknownState, fmt.Sprintf("unrecognized entity state: %s", e.State()))
	}
}
