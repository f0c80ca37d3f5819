package step

import (
	"context"
	"fmt"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
)

// PickExecutor claims a freshly created entity for an actor
type PickExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *PickExecutor) Step() model.Step { return model.StepPick }

// Execute claims the entity. Picking an already-picked entity is a
// success no-op; the first actor keeps the claim.
func (e *PickExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before != model.StateCreated {
		out := blockedOutput(before, BlockerInvalidState, fmt.Sprintf("pick requires CREATED, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	picked, err := e.Entities.IsPicked(ctx, ent.ID())
	if err != nil {
		return Output{}, fmt.Errorf("check picked: %w", err)
	}
	if picked {
		out := noOpOutput(before, "entity already picked")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: before, Message: fmt.Sprintf("would pick entity for %s", in.Actor)}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}

	if err := e.Entities.MarkPicked(ctx, ent.ID(), in.Actor); err != nil {
		return Output{}, fmt.Errorf("mark picked: %w", err)
	}

	// Assignment on the tracker side is best effort; the pick itself is
	// the authoritative record.
	if link := ent.Link(); link.HasPR() {
		client, err := e.SCM.ForRepo(link.Owner, link.Repo)
		if err == nil {
			if err := client.AddAssignees(ctx, link.Owner, link.Repo, link.PRNumber, []string{in.Actor}); err != nil {
				e.Logger.Warn("pick: assign %s on %s/%s#%d: %v", in.Actor, link.Owner, link.Repo, link.PRNumber, err)
			}
		}
	}

	out := Output{StateBefore: before, StateAfter: before, Message: fmt.Sprintf("picked by %s", in.Actor)}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
}
