package step

import (
	"context"
	"fmt"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
)

// ImplementPrepExecutor moves a specified entity into implementation prep
type ImplementPrepExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *ImplementPrepExecutor) Step() model.Step { return model.StepImplementPrep }

// Execute moves the entity from SPEC_READY to IMPLEMENTING_PREP
func (e *ImplementPrepExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before == model.StateImplementingPrep {
		out := noOpOutput(before, "entity already in IMPLEMENTING_PREP")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}
	if before != model.StateSpecReady {
		out := blockedOutput(before, BlockerInvalidState, fmt.Sprintf("implement-prep requires SPEC_READY, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: model.StateImplementingPrep, Message: "would enter IMPLEMENTING_PREP"}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateImplementingPrep, "", out.Message)
	}

	if err := ent.TransitionTo(model.StateImplementingPrep); err != nil {
		return Output{}, fmt.Errorf("transition to IMPLEMENTING_PREP: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}

	out := Output{StateBefore: before, StateAfter: model.StateImplementingPrep, Message: "implementation prep started"}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateImplementingPrep, "", out.Message)
}
