package step

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/application/port"
	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
	"github.com/stewardhq/steward/internal/domain/model/snapshot"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/service/gate"
	"github.com/stewardhq/steward/internal/domain/service/stepresolver"
	"github.com/stewardhq/steward/internal/domain/service/stopgate"
)

// MergeExecutor merges the pull request once the gate passes. Merging is
// the one external mutation whose retry could duplicate effects, so an
// ambiguous outcome is resolved by re-reading the merged flag, never by
// re-issuing the merge.
type MergeExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *MergeExecutor) Step() model.Step { return model.StepMerge }

// Execute gates and merges the entity's pull request
func (e *MergeExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before != model.StateReviewReady && before != model.StateDone {
		out := blockedOutput(before, BlockerInvalidState, fmt.Sprintf("merge requires REVIEW_READY, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	link := ent.Link()
	if !link.HasPR() {
		out := blockedOutput(before, stepresolver.BlockerNoGitHubLink, "no pull request associated with entity")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	client, err := e.SCM.ForRepo(link.Owner, link.Repo)
	if err != nil {
		return Output{}, fmt.Errorf("merge: %w", err)
	}

	pr, err := client.GetPullRequest(ctx, link.Owner, link.Repo, link.PRNumber)
	if err != nil {
		return Output{}, fmt.Errorf("read pull request: %w", err)
	}

	// Already merged: confirm DONE and return the existing merge commit.
	if pr.Merged {
		return e.confirmMerged(ctx, in, before, pr.MergeCommitSHA)
	}

	if before == model.StateDone {
		out := blockedOutput(before, BlockerInvalidState, "entity is DONE but pull request is not merged")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	// Freeze evidence, then decide on the frozen view only.
	snap, err := e.Mirror.Capture(ctx, link.Owner, link.Repo, pr.Head.SHA)
	if err != nil {
		return Output{}, fmt.Errorf("capture evidence: %w", err)
	}

	reviews, err := client.ListReviews(ctx, link.Owner, link.Repo, link.PRNumber)
	if err != nil {
		return Output{}, fmt.Errorf("read reviews: %w", err)
	}
	reviewStatus := gate.ResolveReviewStatus(toGateReviews(reviews))

	verdict := gate.Decide(reviewStatus, snap)
	gateDetail := fmt.Sprintf("review=%s checks=%s snapshot=%s", verdict.ReviewStatus, verdict.ChecksStatus, snap.Hash())
	if err := e.emit(ctx, in, e.Step(), timeline.KindGateEvaluated, before, before, "", gateDetail); err != nil {
		return Output{}, err
	}

	if verdict.Verdict != gate.VerdictPass {
		if verdict.ChecksStatus == gate.ChecksFail && snap.FailedChecks() > 0 && in.Mode == model.ModeExecute {
			if err := e.maybeRerunFailedChecks(ctx, in, client, link, snap); err != nil {
				e.Logger.Warn("merge: rerun failed checks: %v", err)
			}
		}
		out := blockedOutput(before, BlockerGateFailed, verdict.BlockReason)
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: model.StateDone, Message: fmt.Sprintf("would merge %s/%s#%d", link.Owner, link.Repo, link.PRNumber)}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateDone, "", out.Message)
	}

	res, err := client.MergePullRequest(ctx, link.Owner, link.Repo, link.PRNumber, e.MergeMethod)
	if err != nil {
		// The merge may have landed despite the error; re-read before
		// reporting failure.
		if recheck, rerr := client.GetPullRequest(ctx, link.Owner, link.Repo, link.PRNumber); rerr == nil && recheck.Merged {
			return e.confirmMerged(ctx, in, before, recheck.MergeCommitSHA)
		}
		return Output{}, fmt.Errorf("merge pull request: %w", err)
	}

	if err := ent.TransitionTo(model.StateDone); err != nil {
		return Output{}, fmt.Errorf("transition to DONE: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}

	out := Output{StateBefore: before, StateAfter: model.StateDone, Message: fmt.Sprintf("merged: %s", res.SHA)}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateDone, "", out.Message)
}

// confirmMerged settles the idempotent already-merged case
func (e *MergeExecutor) confirmMerged(ctx context.Context, in Input, before model.EntityState, sha string) (Output, error) {
	ent := in.Entity
	msg := fmt.Sprintf("already merged: %s", sha)

	if before == model.StateDone {
		out := noOpOutput(before, msg)
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}

	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: model.StateDone, Message: msg}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateDone, "", out.Message)
	}

	if err := ent.TransitionTo(model.StateDone); err != nil {
		return Output{}, fmt.Errorf("transition to DONE: %w", err)
	}
	if err := e.Entities.Save(ctx, ent); err != nil {
		return Output{}, fmt.Errorf("save entity: %w", err)
	}

	out := Output{StateBefore: before, StateAfter: model.StateDone, Message: msg}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, model.StateDone, "", out.Message)
}

// maybeRerunFailedChecks consults the stop gate before re-requesting any
// failed check run. Every evaluation lands in the ledger, whatever the
// outcome.
func (e *MergeExecutor) maybeRerunFailedChecks(ctx context.Context, in Input, client port.SourceControl, link entity.GitHubLink, snap *snapshot.ChecksSnapshot) error {
	prior, err := e.StopLog.ListByEntity(ctx, in.Entity.ID())
	if err != nil {
		return fmt.Errorf("load stop history: %w", err)
	}

	history := buildStopHistory(prior, snap.Hash(), classifyFailure(snap))
	result := stopgate.Evaluate(history, e.Lawbook, e.now())

	if err := e.StopLog.Append(ctx, in.Entity.ID(), in.Run.ID(), result); err != nil {
		return fmt.Errorf("record stop decision: %w", err)
	}
	detail := fmt.Sprintf("decision=%s reason=%s signal=%s", result.Decision, result.ReasonCode, snap.Hash())
	if err := e.emit(ctx, in, e.Step(), timeline.KindStopDecision, in.Entity.State(), in.Entity.State(), result.ReasonCode, detail); err != nil {
		return err
	}

	if result.Decision != stopgate.DecisionContinue {
		e.Logger.Info("merge: automated rerun stopped for %s: %s", in.Entity.ID(), result.ReasonCode)
		return nil
	}

	runs, err := client.ListCheckRuns(ctx, link.Owner, link.Repo, snap.Ref())
	if err != nil {
		return fmt.Errorf("list check runs for rerun: %w", err)
	}
	for _, r := range runs {
		if r.Status == "completed" && r.Conclusion != "success" && r.Conclusion != "neutral" && r.Conclusion != "skipped" {
			if err := client.RerequestCheckRun(ctx, link.Owner, link.Repo, r.ID); err != nil {
				return fmt.Errorf("rerequest check %s: %w", r.Name, err)
			}
		}
	}
	return nil
}

// buildStopHistory reconstructs attempt counters from the ledger. prior
// is newest first; signals are compared oldest to newest.
func buildStopHistory(prior []stopgate.Result, signal, failureClass string) stopgate.History {
	h := stopgate.History{
		FailureClass: failureClass,
	}

	// Walk the ledger oldest first for signal-change tracking
	var (
		signals []string
		seenAt  []time.Time
	)
	for i := len(prior) - 1; i >= 0; i-- {
		p := prior[i]
		var sig string
		if n := len(p.History.RecentSignals); n > 0 {
			sig = p.History.RecentSignals[n-1]
			signals = append(signals, sig)
			seenAt = append(seenAt, p.EvaluatedAt)
		}
		if p.Decision == stopgate.DecisionContinue {
			h.TotalAttempts++
			if sig == signal {
				h.JobAttempts++
			}
		}
		if h.FirstFailureAt.IsZero() || p.EvaluatedAt.Before(h.FirstFailureAt) {
			h.FirstFailureAt = p.EvaluatedAt
		}
	}

	for i, s := range signals {
		if i == 0 || s != signals[i-1] {
			h.LastChangeAt = seenAt[i]
		}
	}

	h.RecentSignals = append(signals, signal)
	return h
}

// classifyFailure buckets a red snapshot into a coarse failure class
func classifyFailure(snap *snapshot.ChecksSnapshot) string {
	for _, c := range snap.Checks() {
		if c.Status != snapshot.CheckCompleted || c.Conclusion == "success" || c.Conclusion == "neutral" || c.Conclusion == "skipped" {
			continue
		}
		name := strings.ToLower(c.Name)
		switch {
		case strings.Contains(name, "build") || strings.Contains(name, "compile"):
			return "compile_error"
		case strings.Contains(name, "lint"):
			return "lint_failure"
		default:
			return "test_failure"
		}
	}
	return "unknown"
}

func toGateReviews(reviews []port.Review) []gate.Review {
	out := make([]gate.Review, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, gate.Review{
			Reviewer:    r.User.Login,
			State:       r.State,
			SubmittedAt: r.SubmittedAt,
		})
	}
	return out
}
