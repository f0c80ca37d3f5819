// Package snapshot models a frozen, content-addressed view of external
// check results used as gate evidence.
package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stewardhq/steward/internal/domain/model"
)

// CheckStatus is the reported lifecycle status of a single check run
type CheckStatus string

const (
	CheckQueued     CheckStatus = "queued"
	CheckInProgress CheckStatus = "in_progress"
	CheckCompleted  CheckStatus = "completed"
)

// Check is one check-run result inside a snapshot
type Check struct {
	Name       string
	Status     CheckStatus
	Conclusion string
}

// ChecksSnapshot is a point-in-time capture of all check runs for a ref.
// Rows are permanent audit data, unique per (owner, repo, ref, hash).
type ChecksSnapshot struct {
	id            string
	repoOwner     string
	repoName      string
	ref           string
	checks        []Check
	totalChecks   int
	failedChecks  int
	pendingChecks int
	snapshotHash  string
	capturedAt    model.Timestamp
}

// successConclusions are check conclusions that do not count as failures
var successConclusions = map[string]bool{
	"success": true,
	"neutral": true,
	"skipped": true,
}

// New captures a snapshot from a fresh read of check runs.
// The content hash covers only (owner, repo, ref, name, status, conclusion)
// so the same evidence always produces the same hash.
func New(repoOwner, repoName, ref string, checks []Check) (*ChecksSnapshot, error) {
	if repoOwner == "" || repoName == "" {
		return nil, errors.New("snapshot requires owner and repo")
	}
	if ref == "" {
		return nil, errors.New("snapshot requires a ref")
	}

	sorted := make([]Check, len(checks))
	copy(sorted, checks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		if sorted[i].Status != sorted[j].Status {
			return sorted[i].Status < sorted[j].Status
		}
		return sorted[i].Conclusion < sorted[j].Conclusion
	})

	failed, pending := 0, 0
	for _, c := range sorted {
		if c.Status != CheckCompleted {
			pending++
			continue
		}
		if !successConclusions[c.Conclusion] {
			failed++
		}
	}

	return &ChecksSnapshot{
		id:            ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String(),
		repoOwner:     repoOwner,
		repoName:      repoName,
		ref:           ref,
		checks:        sorted,
		totalChecks:   len(sorted),
		failedChecks:  failed,
		pendingChecks: pending,
		snapshotHash:  computeHash(repoOwner, repoName, ref, sorted),
		capturedAt:    model.NewTimestamp(),
	}, nil
}

// Reconstruct rebuilds a snapshot from persisted data
func Reconstruct(
	id, repoOwner, repoName, ref string,
	checks []Check,
	totalChecks, failedChecks, pendingChecks int,
	snapshotHash string,
	capturedAt time.Time,
) *ChecksSnapshot {
	return &ChecksSnapshot{
		id:            id,
		repoOwner:     repoOwner,
		repoName:      repoName,
		ref:           ref,
		checks:        checks,
		totalChecks:   totalChecks,
		failedChecks:  failedChecks,
		pendingChecks: pendingChecks,
		snapshotHash:  snapshotHash,
		capturedAt:    model.NewTimestampFromTime(capturedAt),
	}
}

func computeHash(owner, repo, ref string, sorted []Check) string {
	h := sha256.New()
	h.Write([]byte(owner))
	h.Write([]byte{0})
	h.Write([]byte(repo))
	h.Write([]byte{0})
	h.Write([]byte(ref))
	for _, c := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(c.Name))
		h.Write([]byte{0x1f})
		h.Write([]byte(c.Status))
		h.Write([]byte{0x1f})
		h.Write([]byte(c.Conclusion))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ID returns the snapshot row ID
func (s *ChecksSnapshot) ID() string { return s.id }

// RepoOwner returns the repository owner
func (s *ChecksSnapshot) RepoOwner() string { return s.repoOwner }

// RepoName returns the repository name
func (s *ChecksSnapshot) RepoName() string { return s.repoName }

// Ref returns the git ref the checks ran against
func (s *ChecksSnapshot) Ref() string { return s.ref }

// Checks returns the captured check results, sorted
func (s *ChecksSnapshot) Checks() []Check { return s.checks }

// TotalChecks returns the number of captured checks
func (s *ChecksSnapshot) TotalChecks() int { return s.totalChecks }

// FailedChecks returns the number of completed, non-successful checks
func (s *ChecksSnapshot) FailedChecks() int { return s.failedChecks }

// PendingChecks returns the number of not-yet-completed checks
func (s *ChecksSnapshot) PendingChecks() int { return s.pendingChecks }

// Hash returns the content hash
func (s *ChecksSnapshot) Hash() string { return s.snapshotHash }

// CapturedAt returns the capture timestamp
func (s *ChecksSnapshot) CapturedAt() model.Timestamp { return s.capturedAt }
