package step

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/app"
	"github.com/stewardhq/steward/internal/application/port"
	"github.com/stewardhq/steward/internal/application/usecase/mirror"
	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
	"github.com/stewardhq/steward/internal/domain/model/run"
	"github.com/stewardhq/steward/internal/domain/model/snapshot"
	"github.com/stewardhq/steward/internal/domain/repository"
	"github.com/stewardhq/steward/internal/domain/service/stopgate"
	"github.com/stewardhq/steward/internal/infrastructure/persistence/sqlite"
)

// fakeSCM is an in-memory port.SourceControl with scripted responses
// and recorded mutations.
type fakeSCM struct {
	checkRuns   []port.CheckRun
	reviews     []port.Review
	pullRequest *port.PullRequest
	mergeResult *port.MergeResult
	mergeErr    error
	deployments []port.Deployment
	statuses    []port.DeploymentStatus

	mergeCalls  int
	rerequested []int64
	assignees   []string
}

func (f *fakeSCM) ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]port.CheckRun, error) {
	return f.checkRuns, nil
}

func (f *fakeSCM) ListReviews(ctx context.Context, owner, repo string, number int) ([]port.Review, error) {
	return f.reviews, nil
}

func (f *fakeSCM) GetPullRequest(ctx context.Context, owner, repo string, number int) (*port.PullRequest, error) {
	if f.pullRequest == nil {
		return nil, errors.New("no pull request scripted")
	}
	return f.pullRequest, nil
}

func (f *fakeSCM) MergePullRequest(ctx context.Context, owner, repo string, number int, method string) (*port.MergeResult, error) {
	f.mergeCalls++
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	f.pullRequest.Merged = true
	f.pullRequest.MergeCommitSHA = f.mergeResult.SHA
	return f.mergeResult, nil
}

func (f *fakeSCM) ListDeployments(ctx context.Context, owner, repo, ref string) ([]port.Deployment, error) {
	return f.deployments, nil
}

func (f *fakeSCM) ListDeploymentStatuses(ctx context.Context, owner, repo string, deploymentID int64) ([]port.DeploymentStatus, error) {
	return f.statuses, nil
}

func (f *fakeSCM) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	return nil
}

func (f *fakeSCM) AddAssignees(ctx context.Context, owner, repo string, number int, assignees []string) error {
	f.assignees = append(f.assignees, assignees...)
	return nil
}

func (f *fakeSCM) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	return nil
}

func (f *fakeSCM) RerequestCheckRun(ctx context.Context, owner, repo string, checkRunID int64) error {
	f.rerequested = append(f.rerequested, checkRunID)
	return nil
}

type fakeFactory struct {
	scm *fakeSCM
}

func (f *fakeFactory) ForRepo(owner, repo string) (port.SourceControl, error) {
	return f.scm, nil
}

type testEnv struct {
	deps     Deps
	scm      *fakeSCM
	entities repository.EntityRepository
	closures repository.ClosureRepository
	stopLog  repository.StopDecisionRepository
	snaps    repository.SnapshotRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.NewMigrator(db).Migrate())

	scm := &fakeSCM{}
	factory := &fakeFactory{scm: scm}
	logger := app.NewStderrLogger(io.Discard, "ERROR")

	entities := sqlite.NewEntityRepository(db)
	snaps := sqlite.NewSnapshotRepository(db)
	closures := sqlite.NewClosureRepository(db)
	events := sqlite.NewEventRepository(db)
	stopLog := sqlite.NewStopDecisionRepository(db)

	deps := Deps{
		Entities:    entities,
		Snapshots:   snaps,
		Closures:    closures,
		Events:      events,
		StopLog:     stopLog,
		Mirror:      mirror.NewService(factory, snaps, logger),
		SCM:         factory,
		Lawbook:     stopgate.DefaultLawbook(),
		MergeMethod: "squash",
		Logger:      logger,
		Now:         func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return &testEnv{deps: deps, scm: scm, entities: entities, closures: closures, stopLog: stopLog, snaps: snaps}
}

func (env *testEnv) entityInState(t *testing.T, state model.EntityState, withPR bool) *entity.Entity {
	t.Helper()
	link := entity.GitHubLink{}
	if withPR {
		link = entity.GitHubLink{Owner: "acme", Repo: "widgets", PRNumber: 42, Ref: "abc123"}
	}
	now := time.Now().UTC()
	ent := entity.Reconstruct(model.NewEntityID(), "Test entity", state, link, "", now, now)
	require.NoError(t, env.entities.Save(context.Background(), ent))
	return ent
}

func (env *testEnv) inputFor(t *testing.T, ent *entity.Entity, step model.Step, mode model.RunMode) Input {
	t.Helper()
	rn, err := run.New(ent.ID(), step, mode, ent.State(), "req-test", "alice")
	require.NoError(t, err)
	return Input{Entity: ent, Run: rn, Mode: mode, Actor: "alice", RequestID: "req-test"}
}

func approvedReview(login string) port.Review {
	r := port.Review{ID: 1, State: "APPROVED", SubmittedAt: time.Now().UTC()}
	r.User.Login = login
	return r
}

func greenCheckRuns() []port.CheckRun {
	return []port.CheckRun{
		{ID: 11, Name: "build", Status: "completed", Conclusion: "success"},
		{ID: 12, Name: "test", Status: "completed", Conclusion: "success"},
	}
}

func TestPickExecutor_ClaimsCreatedEntity(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateCreated, true)
	exec := &PickExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepPick, model.ModeExecute))
	require.NoError(t, err)
	require.False(t, out.Blocked)
	require.Equal(t, model.StateCreated, out.StateAfter)

	picked, err := env.entities.IsPicked(context.Background(), ent.ID())
	require.NoError(t, err)
	require.True(t, picked)
	require.Contains(t, env.scm.assignees, "alice")
}

func TestPickExecutor_SecondPickIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateCreated, false)
	exec := &PickExecutor{env.deps}

	_, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepPick, model.ModeExecute))
	require.NoError(t, err)

	in := env.inputFor(t, ent, model.StepPick, model.ModeExecute)
	in.Actor = "bob"
	out, err := exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.True(t, out.NoOp)
	require.False(t, out.Blocked)
}

func TestPickExecutor_WrongStateBlocked(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, false)
	exec := &PickExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepPick, model.ModeExecute))
	require.NoError(t, err)
	require.True(t, out.Blocked)
	require.Equal(t, BlockerInvalidState, out.BlockerCode)
}

func TestMergeExecutor_PassMergesAndTransitions(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateReviewReady, true)
	env.scm.pullRequest = &port.PullRequest{Number: 42, State: "open"}
	env.scm.pullRequest.Head.SHA = "abc123"
	env.scm.checkRuns = greenCheckRuns()
	env.scm.reviews = []port.Review{approvedReview("reviewer")}
	env.scm.mergeResult = &port.MergeResult{SHA: "deadbeef", Merged: true}
	exec := &MergeExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeExecute))
	require.NoError(t, err)
	require.False(t, out.Blocked)
	require.Equal(t, model.StateDone, out.StateAfter)
	require.Equal(t, 1, env.scm.mergeCalls)

	saved, err := env.entities.Find(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, model.StateDone, saved.State())
}

func TestMergeExecutor_DryRunDoesNotMerge(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateReviewReady, true)
	env.scm.pullRequest = &port.PullRequest{Number: 42, State: "open"}
	env.scm.pullRequest.Head.SHA = "abc123"
	env.scm.checkRuns = greenCheckRuns()
	env.scm.reviews = []port.Review{approvedReview("reviewer")}
	exec := &MergeExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeDryRun))
	require.NoError(t, err)
	require.False(t, out.Blocked)
	require.Equal(t, model.StateDone, out.StateAfter)
	require.Zero(t, env.scm.mergeCalls)

	saved, err := env.entities.Find(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, model.StateReviewReady, saved.State())
}

func TestMergeExecutor_AlreadyMergedConfirms(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateReviewReady, true)
	env.scm.pullRequest = &port.PullRequest{Number: 42, State: "closed", Merged: true, MergeCommitSHA: "feedface"}
	exec := &MergeExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeExecute))
	require.NoError(t, err)
	require.False(t, out.Blocked)
	require.Equal(t, model.StateDone, out.StateAfter)
	require.Zero(t, env.scm.mergeCalls)
	require.Contains(t, out.Message, "feedface")
}

func TestMergeExecutor_AlreadyMergedOnDoneIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, true)
	env.scm.pullRequest = &port.PullRequest{Number: 42, State: "closed", Merged: true, MergeCommitSHA: "feedface"}
	exec := &MergeExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeExecute))
	require.NoError(t, err)
	require.True(t, out.NoOp)
	require.Equal(t, model.StateDone, out.StateAfter)
}

func TestMergeExecutor_GateFailBlocksAndRerunsFailedChecks(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateReviewReady, true)
	env.scm.pullRequest = &port.PullRequest{Number: 42, State: "open"}
	env.scm.pullRequest.Head.SHA = "abc123"
	env.scm.checkRuns = []port.CheckRun{
		{ID: 21, Name: "build", Status: "completed", Conclusion: "success"},
		{ID: 22, Name: "test", Status: "completed", Conclusion: "failure"},
	}
	env.scm.reviews = []port.Review{approvedReview("reviewer")}
	exec := &MergeExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeExecute))
	require.NoError(t, err)
	require.True(t, out.Blocked)
	require.Equal(t, BlockerGateFailed, out.BlockerCode)
	require.Zero(t, env.scm.mergeCalls)

	// First failure: stop gate says CONTINUE, the failed check is re-requested
	require.Equal(t, []int64{22}, env.scm.rerequested)
	ledger, err := env.stopLog.ListByEntity(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.Equal(t, stopgate.DecisionContinue, ledger[0].Decision)
}

func TestMergeExecutor_NoPRLinkBlocked(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateReviewReady, false)
	exec := &MergeExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeExecute))
	require.NoError(t, err)
	require.True(t, out.Blocked)
}

func TestMergeExecutor_MergeErrorResolvedByReread(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateReviewReady, true)
	pr := &port.PullRequest{Number: 42, State: "open"}
	pr.Head.SHA = "abc123"
	env.scm.pullRequest = pr
	env.scm.checkRuns = greenCheckRuns()
	env.scm.reviews = []port.Review{approvedReview("reviewer")}
	env.scm.mergeErr = errors.New("502 bad gateway")
	exec := &MergeExecutor{env.deps}

	// The fake returns the error without setting Merged, so the re-read
	// still sees an open PR and the executor surfaces the failure.
	_, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeExecute))
	require.Error(t, err)
	require.Equal(t, 1, env.scm.mergeCalls)

	// Now the PR reads as merged: the retry confirms instead of re-merging.
	pr.Merged = true
	pr.MergeCommitSHA = "deadbeef"
	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepMerge, model.ModeExecute))
	require.NoError(t, err)
	require.Equal(t, model.StateDone, out.StateAfter)
	require.Equal(t, 1, env.scm.mergeCalls)
}

func TestVerifyExecutor_GreenTransitionsToVerified(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, true)
	env.scm.checkRuns = greenCheckRuns()
	recordObservation(t, env, ent)
	exec := &VerifyExecutor{env.deps}

	in := env.inputFor(t, ent, model.StepVerify, model.ModeExecute)
	out, err := exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.False(t, out.Blocked)
	require.Equal(t, model.StateVerified, out.StateAfter)

	verdict, err := env.closures.FindLatestVerdict(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, "GREEN", string(verdict.Verdict()))
	require.NotEmpty(t, verdict.SnapshotID())
}

func TestVerifyExecutor_RedHoldsWithRemediation(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, true)
	env.scm.checkRuns = []port.CheckRun{
		{ID: 31, Name: "smoke", Status: "completed", Conclusion: "failure"},
	}
	recordObservation(t, env, ent)
	exec := &VerifyExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepVerify, model.ModeExecute))
	require.NoError(t, err)
	require.Equal(t, model.StateHold, out.StateAfter)

	saved, err := env.entities.Find(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, model.StateHold, saved.State())
	require.Contains(t, saved.HoldReason(), "verification RED")

	rems, err := env.closures.ListRemediations(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Len(t, rems, 1)

	verdict, err := env.closures.FindLatestVerdict(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, "RED", string(verdict.Verdict()))
}

func TestVerifyExecutor_NoObservationIsRedNotPass(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, true)
	env.scm.checkRuns = greenCheckRuns()
	exec := &VerifyExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepVerify, model.ModeExecute))
	require.NoError(t, err)
	require.False(t, out.Blocked)
	require.Equal(t, model.StateHold, out.StateAfter)

	saved, err := env.entities.Find(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, model.StateHold, saved.State())
	require.Contains(t, saved.HoldReason(), "no deploy observation")

	verdict, err := env.closures.FindLatestVerdict(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, "RED", string(verdict.Verdict()))
	require.Empty(t, verdict.SnapshotID())

	rems, err := env.closures.ListRemediations(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Len(t, rems, 1)
}

func TestVerifyExecutor_UnhealthyDeploymentIsRedDespiteGreenChecks(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, true)
	env.scm.checkRuns = greenCheckRuns()
	recordObservationWith(t, env, ent, "failure", false)
	exec := &VerifyExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepVerify, model.ModeExecute))
	require.NoError(t, err)
	require.Equal(t, model.StateHold, out.StateAfter)

	verdict, err := env.closures.FindLatestVerdict(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, "RED", string(verdict.Verdict()))
	require.Contains(t, verdict.Detail(), "failure")

	saved, err := env.entities.Find(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, model.StateHold, saved.State())
}

func TestVerifyExecutor_AlreadyVerifiedIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateVerified, true)
	exec := &VerifyExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepVerify, model.ModeExecute))
	require.NoError(t, err)
	require.True(t, out.NoOp)
}

func TestRemediateExecutor_HoldsWithReason(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, false)
	exec := &RemediateExecutor{env.deps}

	in := env.inputFor(t, ent, model.StepRemediate, model.ModeExecute)
	in.Reason = "production incident"
	out, err := exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, model.StateHold, out.StateAfter)

	saved, err := env.entities.Find(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Equal(t, model.StateHold, saved.State())
	require.Equal(t, "production incident", saved.HoldReason())

	rems, err := env.closures.ListRemediations(context.Background(), ent.ID())
	require.NoError(t, err)
	require.Len(t, rems, 1)
	require.Equal(t, "production incident", rems[0].Reason())
}

func TestRemediateExecutor_MissingReasonBlocked(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateDone, false)
	exec := &RemediateExecutor{env.deps}

	out, err := exec.Execute(context.Background(), env.inputFor(t, ent, model.StepRemediate, model.ModeExecute))
	require.NoError(t, err)
	require.True(t, out.Blocked)
	require.Equal(t, BlockerMissingReason, out.BlockerCode)
}

func TestRemediateExecutor_ClosedBlocked(t *testing.T) {
	env := newTestEnv(t)
	ent := env.entityInState(t, model.StateClosed, false)
	exec := &RemediateExecutor{env.deps}

	in := env.inputFor(t, ent, model.StepRemediate, model.ModeExecute)
	in.Reason = "too late"
	out, err := exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.True(t, out.Blocked)
}

func recordObservation(t *testing.T, env *testEnv, ent *entity.Entity) {
	t.Helper()
	recordObservationWith(t, env, ent, "success", true)
}

func recordObservationWith(t *testing.T, env *testEnv, ent *entity.Entity, state string, healthy bool) {
	t.Helper()
	obs, err := snapshot.NewDeployObservation(ent.ID(), model.NewRunID(), 1, "production", state, healthy)
	require.NoError(t, err)
	require.NoError(t, env.snaps.SaveObservation(context.Background(), obs))
}
