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

// VerifyExecutor reads post-deploy evidence and records an explicit
// GREEN or RED verdict. A RED verdict moves the entity to HOLD with a
// remediation record; silence is never a verdict.
type VerifyExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *VerifyExecutor) Step() model.Step { return model.StepVerify }

// Execute verifies the deployed entity and records the verdict
func (e *VerifyExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before == model.StateVerified {
		out := noOpOutput(before, "entity is already VERIFIED")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}
	if before != model.StateDone {
		out := blockedOutput(before, BlockerInvalidState, fmt.Sprintf("verify requires DONE, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	obs, err := e.Snapshots.FindLatestObservation(ctx, ent.ID())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Output{}, fmt.Errorf("load observation: %w", err)
	}

	// Absence of evidence is a RED verdict, never a pass. An unhealthy
	// deployment is RED no matter what the checks say.
	verdictValue := closure.VerdictRed
	var snapshotID, detail string
	switch {
	case obs == nil:
		detail = "no deploy observation recorded for entity"
	case !obs.Healthy():
		detail = fmt.Sprintf("deployment %d in %s reported %s", obs.DeploymentID(), obs.Environment(), obs.State())
	default:
		link := ent.Link()
		if link.IsZero() {
			out := blockedOutput(before, stepresolver.BlockerNoGitHubLink, "no repository associated with entity")
			return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
		}
		snap, cerr := e.Mirror.Capture(ctx, link.Owner, link.Repo, link.Ref)
		if cerr != nil {
			return Output{}, fmt.Errorf("capture evidence: %w", cerr)
		}
		snapshotID = snap.ID()
		switch {
		case snap.TotalChecks() == 0:
			detail = "no check evidence available for ref"
		case snap.FailedChecks() > 0:
			detail = fmt.Sprintf("%d check(s) failed post-deploy", snap.FailedChecks())
		case snap.PendingChecks() > 0:
			detail = fmt.Sprintf("%d check(s) still pending post-deploy", snap.PendingChecks())
		default:
			verdictValue = closure.VerdictGreen
			detail = fmt.Sprintf("all %d check(s) green post-deploy", snap.TotalChecks())
		}
	}

	if in.Mode == model.ModeDryRun {
		after := model.StateVerified
		if verdictValue == closure.VerdictRed {
			after = model.StateHold
		}
		out := Output{StateBefore: before, StateAfter: after, Message: fmt.Sprintf("would record %s: %s", verdictValue, detail)}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, after, "", out.Message)
	}

	verdict, err := closure.NewVerifyVerdict(ent.ID(), in.Run.ID(), verdictValue, snapshotID, detail)
	if err != nil {
		return Output{}, fmt.Errorf("build verdict: %w", err)
	}
	if err := e.Closures.SaveVerdict(ctx, verdict); err != nil {
		return Output{}, fmt.Errorf("save verdict: %w", err)
	}

	if verdictValue == closure.VerdictGreen {
		if err := ent.TransitionTo(model.StateVerified); err != nil {
			return Output{}, fmt.Errorf("transition to VERIFIED: %w", err)
		}
		if err := e.Entities.Save(ctx, ent); err != nil {
			return Output{}, fmt.Errorf("save entity: %w", err)
		}
		out := Output{StateBefore: before, StateAfter: model.StateVerified, Message: fmt.Sprintf("GREEN: %s", detail)}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateVerified, "", out.Message)
	}

	// RED routes through HOLD; the remediation record carries the reason.
	reason := fmt.Sprintf("verification RED: %s", detail)
	if err := ent.Hold(reason); err != nil {
		return Output{}, fmt.Errorf("hold entity: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}
	rem, err := closure.NewRemediation(ent.ID(), in.Run.ID(), reason)
	if err != nil {
		return Output{}, fmt.Errorf("build remediation: %w", err)
	}
	if err := e.Closures.SaveRemediation(ctx, rem); err != nil {
		return Output{}, fmt.Errorf("save remediation: %w", err)
	}

	out := Output{StateBefore: before, StateAfter: model.StateHold, Message: fmt.Sprintf("RED: %s", detail)}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateHold, "", out.Message)
}
