package snapshot

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stewardhq/steward/internal/domain/model"
)

// DeployObservation records one observed deployment for an entity. Like
// snapshots these rows are permanent evidence, never mutated.
type DeployObservation struct {
	id           string
	entityID     model.EntityID
	runID        model.RunID
	deploymentID int64
	environment  string
	state        string
	healthy      bool
	observedAt   model.Timestamp
}

// NewDeployObservation creates an observation row
func NewDeployObservation(entityID model.EntityID, runID model.RunID, deploymentID int64, environment, state string, healthy bool) (*DeployObservation, error) {
	if deploymentID <= 0 {
		return nil, errors.New("observation requires a deployment ID")
	}
	return &DeployObservation{
		id:           ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String(),
		entityID:     entityID,
		runID:        runID,
		deploymentID: deploymentID,
		environment:  environment,
		state:        state,
		healthy:      healthy,
		observedAt:   model.NewTimestamp(),
	}, nil
}

// ReconstructDeployObservation rebuilds an observation from persisted data
func ReconstructDeployObservation(id string, entityID model.EntityID, runID model.RunID, deploymentID int64, environment, state string, healthy bool, observedAt time.Time) *DeployObservation {
	return &DeployObservation{
		id:           id,
		entityID:     entityID,
		runID:        runID,
		deploymentID: deploymentID,
		environment:  environment,
		state:        state,
		healthy:      healthy,
		observedAt:   model.NewTimestampFromTime(observedAt),
	}
}

// ID returns the observation row ID
func (o *DeployObservation) ID() string { return o.id }

// EntityID returns the observed entity ID
func (o *DeployObservation) EntityID() model.EntityID { return o.entityID }

// RunID returns the observing run ID
func (o *DeployObservation) RunID() model.RunID { return o.runID }

// DeploymentID returns the external deployment identifier
func (o *DeployObservation) DeploymentID() int64 { return o.deploymentID }

// Environment returns the deployment environment
func (o *DeployObservation) Environment() string { return o.environment }

// State returns the deployment state as reported
func (o *DeployObservation) State() string { return o.state }

// Healthy reports whether the deployment passed its health checks
func (o *DeployObservation) Healthy() bool { return o.healthy }

// ObservedAt returns the observation timestamp
func (o *DeployObservation) ObservedAt() model.Timestamp { return o.observedAt }
