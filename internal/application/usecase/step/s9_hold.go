package step

import (
	"context"
	"fmt"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/closure"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/service/stepresolver"
)

// RemediateExecutor places an entity on HOLD with an explicit operator
// reason. Every entry writes a remediation record; calling it on an
// entity already on HOLD records a fresh reason rather than failing.
type RemediateExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *RemediateExecutor) Step() model.Step { return model.StepRemediate }

// Execute puts the entity on hold
func (e *RemediateExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before == model.StateClosed {
		out := blockedOutput(before, stepresolver.BlockerInvalidStateForHold, "CLOSED entities are immutable")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}
	if in.Reason == "" {
		out := blockedOutput(before, BlockerMissingReason, "hold requires a non-empty remediation reason")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: model.StateHold, Message: fmt.Sprintf("would hold: %s", in.Reason)}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateHold, "", out.Message)
	}

	alreadyHeld := before == model.StateHold
	if err := ent.Hold(in.Reason); err != nil {
		return Output{}, fmt.Errorf("hold entity: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}

	rem, err := closure.NewRemediation(ent.ID(), in.Run.ID(), in.Reason)
	if err != nil {
		return Output{}, fmt.Errorf("build remediation: %w", err)
	}
	if err := e.Closures.SaveRemediation(ctx, rem); err != nil {
		return Output{}, fmt.Errorf("save remediation: %w", err)
	}

	msg := fmt.Sprintf("held: %s", in.Reason)
	if alreadyHeld {
		msg = fmt.Sprintf("hold reason updated: %s", in.Reason)
	}
	out := Output{StateBefore: before, StateAfter: model.StateHold, Message: msg}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateHold, "", out.Message)
}
