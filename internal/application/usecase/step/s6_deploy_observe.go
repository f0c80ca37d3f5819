package step

import (
	"context"
	"fmt"

	"github.com/stewardhq/steward/internal/application/port"
	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/snapshot"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/service/stepresolver"
)

// DeployObserveExecutor records the deployment evidence for a merged
// entity. It never deploys anything itself; it only observes what the
// deployment system reports and stores the observation row.
type DeployObserveExecutor struct {
	Deps
}

// Step returns the pipeline step this executor handles
func (e *DeployObserveExecutor) Step() model.Step { return model.StepDeployObserve }

// Execute observes the latest deployment for the entity's merge ref
func (e *DeployObserveExecutor) Execute(ctx context.Context, in Input) (Output, error) {
	ent := in.Entity
	before := ent.State()

	if before != model.StateDone {
		out := blockedOutput(before, BlockerInvalidState, fmt.Sprintf("deploy observation requires DONE, entity is %s", before))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	link := ent.Link()
	if link.IsZero() {
		out := blockedOutput(before, stepresolver.BlockerNoGitHubLink, "no repository associated with entity")
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	client, err := e.SCM.ForRepo(link.Owner, link.Repo)
	if err != nil {
		return Output{}, fmt.Errorf("deploy observe: %w", err)
	}

	deployments, err := client.ListDeployments(ctx, link.Owner, link.Repo, link.Ref)
	if err != nil {
		return Output{}, fmt.Errorf("list deployments: %w", err)
	}
	if len(deployments) == 0 {
		out := blockedOutput(before, BlockerNoDeployment, fmt.Sprintf("no deployments found for ref %s", link.Ref))
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepBlocked, before, before, out.BlockerCode, out.Message)
	}

	latest := latestDeployment(deployments)
	statuses, err := client.ListDeploymentStatuses(ctx, link.Owner, link.Repo, latest.ID)
	if err != nil {
		return Output{}, fmt.Errorf("list deployment statuses: %w", err)
	}

	state := "unknown"
	if len(statuses) > 0 {
		state = latestStatus(statuses).State
	}
	healthy := state == "success"

	msg := fmt.Sprintf("deployment %d in %s is %s", latest.ID, latest.Environment, state)
	if in.Mode == model.ModeDryRun {
		out := Output{StateBefore: before, StateAfter: before, Message: "would record: " + msg}
		return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
	}

	obs, err := snapshot.NewDeployObservation(ent.ID(), in.Run.ID(), latest.ID, latest.Environment, state, healthy)
	if err != nil {
		return Output{}, fmt.Errorf("build observation: %w", err)
	}
	if err := e.Snapshots.SaveObservation(ctx, obs); err != nil {
		return Output{}, fmt.Errorf("save observation: %w", err)
	}

	// The entity stays DONE; the observation row is the state change.
	out := Output{StateBefore: before, StateAfter: before, Message: msg}
	return out, e.emit(ctx, in, e.Step(), timeline.KindStepExecuted, before, before, "", out.Message)
}

func latestDeployment(ds []port.Deployment) port.Deployment {
	latest := ds[0]
	for _, d := range ds[1:] {
		if d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest
}

func latestStatus(ss []port.DeploymentStatus) port.DeploymentStatus {
	latest := ss[0]
	for _, s := range ss[1:] {
		if s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	return latest
}
