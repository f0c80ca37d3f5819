// Package gate combines review approval and frozen check evidence into a
// merge verdict. Decide is pure: no I/O, no clock, no ambient state.
package gate

import (
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model/snapshot"
)

// ReviewStatus is the resolved review position for a pull request
type ReviewStatus string

const (
	ReviewApproved         ReviewStatus = "APPROVED"
	ReviewNotApproved      ReviewStatus = "NOT_APPROVED"
	ReviewChangesRequested ReviewStatus = "CHANGES_REQUESTED"
)

// ChecksStatus is the pass/fail reading of a checks snapshot
type ChecksStatus string

const (
	ChecksPass ChecksStatus = "PASS"
	ChecksFail ChecksStatus = "FAIL"
)

// VerdictValue is the gate outcome, always one of the two literals
type VerdictValue string

const (
	VerdictPass VerdictValue = "PASS"
	VerdictFail VerdictValue = "FAIL"
)

// Verdict is the gate decision with its explicit reason
type Verdict struct {
	Verdict      VerdictValue
	BlockReason  string
	ReviewStatus ReviewStatus
	ChecksStatus ChecksStatus
}

// Review is one PR review as reported by the source-control API
type Review struct {
	Reviewer    string
	State       string
	SubmittedAt time.Time
}

// ResolveReviewStatus reduces raw reviews to a single status.
// Only each reviewer's most recent review counts; any standing
// CHANGES_REQUESTED dominates any approval.
func ResolveReviewStatus(reviews []Review) ReviewStatus {
	latest := make(map[string]Review)
	for _, r := range reviews {
		if r.Reviewer == "" {
			continue
		}
		prev, ok := latest[r.Reviewer]
		if !ok || r.SubmittedAt.After(prev.SubmittedAt) {
			latest[r.Reviewer] = r
		}
	}

	approved := false
	for _, r := range latest {
		switch r.State {
		case "CHANGES_REQUESTED":
			return ReviewChangesRequested
		case "APPROVED":
			approved = true
		}
	}
	if approved {
		return ReviewApproved
	}
	return ReviewNotApproved
}

// resolveChecksStatus fails closed: pending checks, failed checks, and an
// empty check set all read as FAIL.
func resolveChecksStatus(snap *snapshot.ChecksSnapshot) (ChecksStatus, string) {
	switch {
	case snap.TotalChecks() == 0:
		return ChecksFail, "no checks reported for ref"
	case snap.PendingChecks() > 0:
		return ChecksFail, fmt.Sprintf("%d check(s) still pending", snap.PendingChecks())
	case snap.FailedChecks() > 0:
		return ChecksFail, fmt.Sprintf("%d check(s) failed", snap.FailedChecks())
	default:
		return ChecksPass, ""
	}
}

// Decide combines review status and check evidence into a verdict.
// PASS requires an approved review and a fully green, non-empty check set.
func Decide(review ReviewStatus, snap *snapshot.ChecksSnapshot) Verdict {
	checksStatus, checksReason := resolveChecksStatus(snap)

	v := Verdict{
		ReviewStatus: review,
		ChecksStatus: checksStatus,
	}

	if review != ReviewApproved {
		v.Verdict = VerdictFail
		v.BlockReason = fmt.Sprintf("review status is %s", review)
		return v
	}
	if checksStatus != ChecksPass {
		v.Verdict = VerdictFail
		v.BlockReason = checksReason
		return v
	}

	v.Verdict = VerdictPass
	return v
}
