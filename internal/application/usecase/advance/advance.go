// Package advance is the run coordinator. One Advance call is one run:
// it resolves the next step, takes the per-key lock, executes the step,
// records the run and its events, and caches the response for replay.
package advance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/app"
	"github.com/stewardhq/steward/internal/application/usecase/step"
	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/closure"
	"github.com/stewardhq/steward/internal/domain/model/entity"
	"github.com/stewardhq/steward/internal/domain/model/lock"
	"github.com/stewardhq/steward/internal/domain/model/run"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
	"github.com/stewardhq/steward/internal/domain/repository"
	"github.com/stewardhq/steward/internal/domain/service/stepresolver"
)

// SchemaVersion identifies the response envelope layout. Cached responses
// carry it so replays from older layouts are detectable.
const SchemaVersion = 1

// Request is one coordinator invocation
type Request struct {
	EntityID  model.EntityID
	Step      model.Step // optional; resolved from state when empty
	Mode      model.RunMode
	Actor     string
	RequestID string // optional; generated when empty
	Reason    string // required for S9_REMEDIATE
}

// Conflict describes the standing lock when acquisition fails
type Conflict struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Result is the coordinator response envelope. It is what gets cached
// for idempotent replay, so it carries everything a caller may act on.
type Result struct {
	SchemaVersion int       `json:"schema_version"`
	RequestID     string    `json:"request_id"`
	RunID         string    `json:"run_id,omitempty"`
	Status        string    `json:"status"`
	Step          string    `json:"step,omitempty"`
	StateBefore   string    `json:"state_before,omitempty"`
	StateAfter    string    `json:"state_after,omitempty"`
	BlockerCode   string    `json:"blocker_code,omitempty"`
	Message       string    `json:"message,omitempty"`
	Replayed      bool      `json:"replayed,omitempty"`
	Conflict      *Conflict `json:"conflict,omitempty"`
}

// Result statuses beyond the run statuses
const (
	StatusConflict = "conflict"
	StatusTerminal = "terminal"
)

// Coordinator drives one step execution per invocation
type Coordinator struct {
	entities       repository.EntityRepository
	runs           repository.RunRepository
	locks          repository.LockRepository
	idempotency    repository.IdempotencyRepository
	snapshots      repository.SnapshotRepository
	closures       repository.ClosureRepository
	events         repository.EventRepository
	executors      map[model.Step]step.Executor
	lockTTL        time.Duration
	idempotencyTTL time.Duration
	logger         app.Logger
}

// New creates the coordinator
func New(
	entities repository.EntityRepository,
	runs repository.RunRepository,
	locks repository.LockRepository,
	idempotency repository.IdempotencyRepository,
	snapshots repository.SnapshotRepository,
	closures repository.ClosureRepository,
	events repository.EventRepository,
	executors map[model.Step]step.Executor,
	lockTTL, idempotencyTTL time.Duration,
	logger app.Logger,
) *Coordinator {
	if lockTTL <= 0 {
		lockTTL = lock.DefaultTTL
	}
	if idempotencyTTL <= 0 {
		idempotencyTTL = lock.IdempotencyTTL
	}
	return &Coordinator{
		entities:       entities,
		runs:           runs,
		locks:          locks,
		idempotency:    idempotency,
		snapshots:      snapshots,
		closures:       closures,
		events:         events,
		executors:      executors,
		lockTTL:        lockTTL,
		idempotencyTTL: idempotencyTTL,
		logger:         logger,
	}
}

// Advance executes the next eligible step for the entity, or the explicit
// step when the request names one. Repeating a request inside the replay
// window returns the cached response without re-executing anything.
func (c *Coordinator) Advance(ctx context.Context, req Request) (*Result, error) {
	if req.Actor == "" {
		return nil, errors.New("advance requires an actor")
	}
	if !req.Mode.IsValid() {
		return nil, fmt.Errorf("invalid run mode: %s", req.Mode)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ent, err := c.entities.Find(ctx, req.EntityID)
	if err != nil {
		return nil, fmt.Errorf("find entity %s: %w", req.EntityID, err)
	}

	facts, err := c.loadFacts(ctx, ent)
	if err != nil {
		return nil, err
	}
	resolution := stepresolver.Resolve(facts)

	target := req.Step
	if target == "" {
		if resolution.Terminal {
			return &Result{
				SchemaVersion: SchemaVersion,
				RequestID:     req.RequestID,
				Status:        StatusTerminal,
				StateBefore:   ent.State().String(),
				StateAfter:    ent.State().String(),
				Message:       "entity is CLOSED; no further steps",
			}, nil
		}
		if resolution.Blocked {
			return &Result{
				SchemaVersion: SchemaVersion,
				RequestID:     req.RequestID,
				Status:        string(run.StatusBlocked),
				StateBefore:   ent.State().String(),
				StateAfter:    ent.State().String(),
				BlockerCode:   resolution.BlockerCode,
				Message:       resolution.BlockerMessage,
			}, nil
		}
		target = resolution.Step
	}
	if !target.IsValid() {
		return nil, fmt.Errorf("invalid step: %s", target)
	}

	key, err := lock.NewKey(ent.ID(), target, req.Mode, req.Actor)
	if err != nil {
		return nil, fmt.Errorf("derive coordination key: %w", err)
	}

	// Replay window: a repeated request gets the cached response verbatim.
	if cached, err := c.idempotency.Find(ctx, key); err == nil {
		var res Result
		if uerr := json.Unmarshal([]byte(cached.CachedResponse()), &res); uerr == nil && res.SchemaVersion == SchemaVersion {
			res.Replayed = true
			c.logger.Info("advance: replayed cached response for entity %s step %s", ent.ID(), target)
			return &res, nil
		}
		c.logger.Warn("advance: discarding undecodable cached response for key %s", key)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check idempotency cache: %w", err)
	}

	holder := fmt.Sprintf("%s/%s", req.Actor, req.RequestID)
	held, err := c.locks.Acquire(ctx, key, holder, c.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if held == nil {
		standing, ferr := c.locks.Find(ctx, key)
		conflict := &Conflict{}
		if ferr == nil {
			conflict.Holder = standing.Holder()
			conflict.ExpiresAt = standing.ExpiresAt().Value()
		}
		return &Result{
			SchemaVersion: SchemaVersion,
			RequestID:     req.RequestID,
			Status:        StatusConflict,
			Step:          target.String(),
			StateBefore:   ent.State().String(),
			StateAfter:    ent.State().String(),
			Message:       "another run holds the lock for this step",
			Conflict:      conflict,
		}, nil
	}
	defer func() {
		if rerr := c.locks.Release(ctx, key); rerr != nil {
			c.logger.Warn("advance: release lock %s: %v", key, rerr)
		}
	}()

	r, err := run.New(ent.ID(), target, req.Mode, ent.State(), req.RequestID, req.Actor)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := c.runs.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	if err := r.Start(); err != nil {
		return nil, err
	}
	if err := c.runs.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}

	exec, ok := c.executors[target]
	if !ok {
		return nil, fmt.Errorf("no executor registered for step %s", target)
	}

	out, execErr := exec.Execute(ctx, step.Input{
		Entity:    ent,
		Run:       r,
		Mode:      req.Mode,
		Actor:     req.Actor,
		RequestID: req.RequestID,
		Reason:    req.Reason,
	})
	if execErr != nil {
		c.failRun(ctx, r, ent.State(), target, req, execErr)
		return nil, fmt.Errorf("execute %s: %w", target, execErr)
	}

	status := run.StatusCompleted
	if out.Blocked {
		status = run.StatusBlocked
	}
	if err := r.Complete(status, out.StateAfter); err != nil {
		return nil, err
	}
	if err := c.runs.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}

	res := &Result{
		SchemaVersion: SchemaVersion,
		RequestID:     req.RequestID,
		RunID:         r.ID().String(),
		Status:        string(status),
		Step:          target.String(),
		StateBefore:   out.StateBefore.String(),
		StateAfter:    out.StateAfter.String(),
		BlockerCode:   out.BlockerCode,
		Message:       out.Message,
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	rec := lock.NewIdempotencyRecord(key, string(payload), c.idempotencyTTL)
	if err := c.idempotency.Save(ctx, rec); err != nil {
		// The run itself succeeded; a cache miss on replay re-executes an
		// idempotent step, so this is logged and not fatal.
		c.logger.Warn("advance: cache response for key %s: %v", key, err)
	}

	return res, nil
}

// failRun records the failed run and its event; both writes are best
// effort since the original error is what the caller needs.
func (c *Coordinator) failRun(ctx context.Context, r *run.Run, state model.EntityState, target model.Step, req Request, execErr error) {
	if err := r.Complete(run.StatusFailed, state); err == nil {
		if uerr := c.runs.Update(ctx, r); uerr != nil {
			c.logger.Warn("advance: record failed run %s: %v", r.ID(), uerr)
		}
	}
	ev, err := timeline.New(
		r.EntityID(), r.ID(), timeline.KindRunFailed, target,
		state, state, "", execErr.Error(), req.RequestID,
	)
	if err == nil {
		if aerr := c.events.Append(ctx, ev); aerr != nil {
			c.logger.Warn("advance: record run_failed event: %v", aerr)
		}
	}
}

// loadFacts gathers the explicit inputs the step resolver needs
func (c *Coordinator) loadFacts(ctx context.Context, ent *entity.Entity) (stepresolver.Facts, error) {
	facts := stepresolver.Facts{Entity: ent}

	draft, err := c.entities.FindDraft(ctx, ent.ID())
	switch {
	case err == nil:
		facts.Draft = draft
	case !errors.Is(err, repository.ErrNotFound):
		return facts, fmt.Errorf("find draft: %w", err)
	}

	picked, err := c.entities.IsPicked(ctx, ent.ID())
	if err != nil {
		return facts, fmt.Errorf("check picked: %w", err)
	}
	facts.Picked = picked

	hasObs, err := c.snapshots.HasObservation(ctx, ent.ID())
	if err != nil {
		return facts, fmt.Errorf("check observations: %w", err)
	}
	facts.HasDeployObservation = hasObs

	verdict, err := c.closures.FindLatestVerdict(ctx, ent.ID())
	switch {
	case err == nil:
		facts.HasGreenVerdict = verdict.Verdict() == closure.VerdictGreen
	case !errors.Is(err, repository.ErrNotFound):
		return facts, fmt.Errorf("find verdict: %w", err)
	}

	return facts, nil
}
