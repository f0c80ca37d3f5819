package step

import (
	"context"
	"errors"
	"fmt"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/repository"
	"github.com/stewardhq/steward/internal/domain/service/stepresolver"
)

// SpecExecutor promotes an entity with a validated draft to SPEC_READY
type SpecExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *SpecExecutor) Step() model.Step { return model.StepSpec }

// Execute re-validates the draft and moves the entity to SPEC_READY
func (e *SpecExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before == model.StateSpecReady {
		out := noOpOutput(before, "entity already in SPEC_READY")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}
	if before != model.StateCreated {
		out := blockedOutput(before, BlockerInvalidState, fmt.Sprintf("spec requires CREATED, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	draft, err := e.Entities.FindDraft(ctx, ent.ID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			out := blockedOutput(before, stepresolver.BlockerNoDraft, "entity has no spec draft")
			return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
		}
		return Output{}, fmt.Errorf("load draft: %w", err)
	}
	if !draft.IsReady() {
		out := blockedOutput(before, stepresolver.BlockerDraftInvalid, "spec draft failed validation")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: model.StateSpecReady, Message: "would promote draft to SPEC_READY"}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateSpecReady, "", out.Message)
	}

	if err := ent.TransitionTo(model.StateSpecReady); err != nil {
		return Output{}, fmt.Errorf("transition to SPEC_READY: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}

	out := Output{StateBefore: before, StateAfter: model.StateSpecReady, Message: "spec promoted"}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateSpecReady, "", out.Message)
}
