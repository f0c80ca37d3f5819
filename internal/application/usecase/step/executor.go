// Package step implements the nine pipeline step executors. Every
// executor re-validates its own preconditions, performs an idempotent
// transition, and emits an audit event; dry-run mode emits the event
// without writing anything else.
package step

import (
	"context"
	"time"

	"github.com/stewardhq/steward/internal/app"
	"github.com/stewardhq/steward/internal/application/port"
	"github.com/stewardhq/steward/internal/application/usecase/mirror"
	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
	"github.com/stewardhq/steward/internal/domain/model/run"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/repository"
	"github.com/stewardhq/steward/internal/domain/service/stopgate"
)

// Blocker codes produced by the executors themselves, beyond those the
// step resolver can return.
const (
	BlockerInvalidState  = "INVALID_STATE"
	BlockerGateFailed    = "GATE_FAILED"
	BlockerNoDeployment  = "NO_DEPLOYMENT"
	BlockerMissingReason = "MISSING_REASON"
)

// Input carries everything an executor needs for one invocation
type Input struct {
	Entity    *entity.Entity
	Run       *run.Run
	Mode      model.RunMode
	Actor     string
	RequestID string
	Reason    string
}

// Output is the executor result. Blocked outcomes are values, not errors;
// errors are reserved for real failures.
type Output struct {
	StateBefore model.EntityState
	StateAfter  model.EntityState
	Blocked     bool
	BlockerCode string
	Message     string
	NoOp        bool
}

// Executor runs one pipeline step
type Executor interface {
	Step() model.Step
	Execute(ctx context.Context, in Input) (Output, error)
}

// Deps is the shared dependency set for all executors
type Deps struct {
	Entities    repository.EntityRepository
	Snapshots   repository.SnapshotRepository
	Closures    repository.ClosureRepository
	Events      repository.EventRepository
	StopLog     repository.StopDecisionRepository
	Mirror      *mirror.Service
	SCM         port.SourceControlFactory
	Lawbook     stopgate.Lawbook
	MergeMethod string
	Logger      app.Logger
	Now         func() time.Time
}

// All builds the full executor set keyed by step
func All(d Deps) map[model.Step]Executor {
	return map[model.Step]Executor{
		model.StepPick:          &PickExecutor{d},
		model.StepSpec:          &SpecExecutor{d},
		model.StepImplementPrep: &ImplementPrepExecutor{d},
		model.StepReview:        &ReviewExecutor{d},
		model.StepMerge:         &MergeExecutor{d},
		model.StepDeployObserve: &DeployObserveExecutor{d},
		model.StepVerify:        &VerifyExecutor{d},
		model.StepClose:         &CloseExecutor{d},
		model.StepRemediate:     &RemediateExecutor{d},
	}
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// emit appends an audit event; dry-run events use their own kind so the
// ledger distinguishes what happened from what would have happened.
func (d Deps) emit(ctx context.Context, in Input, step model.Step, kind timeline.Kind, stateBefore, stateAfter model.EntityState, blockerCode, detail string) error {
	if in.Mode == model.ModeDryRun && kind == timeline.KindStepExecuted {
		kind = timeline.KindStepDryRun
	}
	ev, err := timeline.New(
		in.Entity.ID(), in.Run.ID(), kind, step,
		stateBefore, stateAfter, blockerCode, detail, in.RequestID,
	)
	if err != nil {
		return err
	}
	return d.Events.Append(ctx, ev)
}

func blockedOutput(state model.EntityState, code, message string) Output {
	return Output{
		StateBefore: state,
		StateAfter:  state,
		Blocked:     true,
		BlockerCode: code,
		Message:     message,
	}
}

func noOpOutput(state model.EntityState, message string) Output {
	return Output{
		StateBefore: state,
		StateAfter:  state,
		Message:     message,
		NoOp:        true,
	}
}
