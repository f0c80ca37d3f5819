package step

import (
	"context"
	"fmt"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/service/stepresolver"
)

// ReviewExecutor records that review was explicitly requested and moves
// the entity to REVIEW_READY. It never advances further on its own; the
// merge step is a separate invocation.
type ReviewExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *ReviewExecutor) Step() model.Step { return model.StepReview }

// Execute requests review on the associated pull request
func (e *ReviewExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before == model.StateReviewReady {
		out := noOpOutput(before, "entity already in REVIEW_READY")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}
	if before != model.StateImplementingPrep {
		out := blockedOutput(before, BlockerInvalidState, fmt.Sprintf("review requires IMPLEMENTING_PREP, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	link := ent.Link()
	if !link.HasPR() {
		out := blockedOutput(before, stepresolver.BlockerNoGitHubLink, "no pull request associated with entity")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: model.StateReviewReady, Message: fmt.Sprintf("would request review on %s/%s#%d", link.Owner, link.Repo, link.PRNumber)}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateReviewReady, "", out.Message)
	}

	client, err := e.SCM.ForRepo(link.Owner, link.Repo)
	if err != nil {
		return Output{}, fmt.Errorf("review request: %w", err)
	}
	if err := client.CreateComment(ctx, link.Owner, link.Repo, link.PRNumber,
		fmt.Sprintf("Review requested by %s.", in.Actor)); err != nil {
		return Output{}, fmt.Errorf("record review request: %w", err)
	}
	if err := client.AddLabels(ctx, link.Owner, link.Repo, link.PRNumber, []string{"needs-review"}); err != nil {
		e.Logger.Warn("review: label %s/%s#%d: %v", link.Owner, link.Repo, link.PRNumber, err)
	}

	if err := ent.TransitionTo(model.StateReviewReady); err != nil {
		return Output{}, fmt.Errorf("transition to REVIEW_READY: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}

	out := Output{StateBefore: before, StateAfter: model.StateReviewReady, Message: "review requested"}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateReviewReady, "", out.Message)
}
