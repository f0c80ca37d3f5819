// Package mirror freezes external check results into content-addressed
// snapshots so gate decisions never read live state.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/stewardhq/steward/internal/app"
	"github.com/stewardhq/steward/internal/application/port"
	"github.com/stewardhq/steward/internal/domain/model/snapshot"
	"github.com/stewardhq/steward/internal/domain/repository"
)

// ErrNoEvidence is returned when the external source has no check results
// for the ref. Gates treat this as a hard failure, never an empty pass.
var ErrNoEvidence = errors.New("no check evidence available for ref")

// Service captures and retrieves evidence snapshots
type Service struct {
	scm       port.SourceControlFactory
	snapshots repository.SnapshotRepository
	logger    app.Logger
}

// NewService creates the snapshot mirror
func NewService(scm port.SourceControlFactory, snapshots repository.SnapshotRepository, logger app.Logger) *Service {
	return &Service{scm: scm, snapshots: snapshots, logger: logger}
}

// Capture performs a fresh external read and freezes it. Capturing
// content that already exists for (owner, repo, ref) returns the existing
// row; the snapshot hash is the idempotency key for evidence.
func (s *Service) Capture(ctx context.Context, owner, repo, ref string) (*snapshot.ChecksSnapshot, error) {
	client, err := s.scm.ForRepo(owner, repo)
	if err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}

	runs, err := client.ListCheckRuns(ctx, owner, repo, ref)
	if err != nil {
		return nil, fmt.Errorf("read check runs for %s/%s@%s: %w", owner, repo, ref, err)
	}

	checks := make([]snapshot.Check, 0, len(runs))
	for _, r := range runs {
		checks = append(checks, snapshot.Check{
			Name:       r.Name,
			Status:     snapshot.CheckStatus(r.Status),
			Conclusion: r.Conclusion,
		})
	}

	snap, err := snapshot.New(owner, repo, ref, checks)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	stored, err := s.snapshots.InsertIfAbsent(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	if stored.ID() != snap.ID() {
		s.logger.Debug("mirror: snapshot %s already captured as %s", snap.Hash(), stored.ID())
	}
	return stored, nil
}

// GetLatest returns the most recent frozen snapshot for a ref, or
// ErrNoEvidence when none has been captured.
func (s *Service) GetLatest(ctx context.Context, owner, repo, ref string) (*snapshot.ChecksSnapshot, error) {
	snap, err := s.snapshots.GetLatest(ctx, owner, repo, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s/%s@%s: %w", owner, repo, ref, ErrNoEvidence)
		}
		return nil, err
	}
	return snap, nil
}
