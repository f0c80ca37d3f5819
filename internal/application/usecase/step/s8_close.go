package step

import (
	"context"
	"errors"
	"fmt"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/closure"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/repository"
	"github.com/stewardhq/steward/internal/domain/service/stepresolver"
)

// CloseExecutor writes the closure record and moves a verified entity to
// its terminal state. Closing requires a standing GREEN verdict; the
// closure row references that verdict so the terminal state is auditable.
type CloseExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *CloseExecutor) Step() model.Step { return model.StepClose }

// Execute closes a verified entity
func (e *CloseExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before == model.StateClosed {
		out := noOpOutput(before, "entity is already CLOSED")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}
	if before != model.StateVerified {
		out := blockedOutput(before, stepresolver.BlockerNotVerified, fmt.Sprintf("close requires VERIFIED, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	verdict, err := e.Closures.FindLatestVerdict(ctx, ent.ID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			out := blockedOutput(before, stepresolver.BlockerNoGreenVerdict, "no verification verdict recorded for entity")
			return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
		}
		return Output{}, fmt.Errorf("find verdict: %w", err)
	}
	if verdict.Verdict() != closure.VerdictGreen {
		out := blockedOutput(before, stepresolver.BlockerNoGreenVerdict, fmt.Sprintf("latest verdict is %s", verdict.Verdict()))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: model.StateClosed, Message: fmt.Sprintf("would close on verdict %s", verdict.ID())}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateClosed, "", out.Message)
	}

	rec, err := closure.NewRecord(ent.ID(), in.Run.ID(), verdict.ID())
	if err != nil {
		return Output{}, fmt.Errorf("build closure record: %w", err)
	}
	if err := e.Closures.SaveRecord(ctx, rec); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
		return Output{}, fmt.Errorf("save closure record: %w", err)
	}

	if err := ent.TransitionTo(model.StateClosed); err != nil {
		return Output{}, fmt.Errorf("transition to CLOSED: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}

	out := Output{StateBefore: before, StateAfter: model.StateClosed, Message: fmt.Sprintf("closed on verdict %s", verdict.ID())}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateClosed, "", out.Message)
}
