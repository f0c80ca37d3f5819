// Package port defines the outbound interfaces the application layer
// depends on for external collaborators, and the transport-neutral
// records they exchange.
package port

import (
	"context"
	"time"
)

// CheckRun is one check run reported for a ref
type CheckRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// Review is one pull request review
type Review struct {
	ID          int64     `json:"id"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
	User        struct {
		Login string `json:"login"`
	} `json:"user"`
}

// PullRequest is the subset of PR detail the gate needs
type PullRequest struct {
	Number         int    `json:"number"`
	State          string `json:"state"`
	Merged         bool   `json:"merged"`
	MergeCommitSHA string `json:"merge_commit_sha"`
	Head           struct {
		SHA string `json:"sha"`
		Ref string `json:"ref"`
	} `json:"head"`
}

// MergeResult is the response to a merge request
type MergeResult struct {
	SHA     string `json:"sha"`
	Merged  bool   `json:"merged"`
	Message string `json:"message"`
}

// Deployment is one deployment record
type Deployment struct {
	ID          int64     `json:"id"`
	Ref         string    `json:"ref"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeploymentStatus is one status entry for a deployment
type DeploymentStatus struct {
	ID        int64     `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceControl is the slice of the source-control API the executors
// consume. Evidence reads are idempotent; mutations are gated and never
// retried implicitly.
type SourceControl interface {
	ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]CheckRun, error)
	ListReviews(ctx context.Context, owner, repo string, number int) ([]Review, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error)
	MergePullRequest(ctx context.Context, owner, repo string, number int, method string) (*MergeResult, error)
	ListDeployments(ctx context.Context, owner, repo, ref string) ([]Deployment, error)
	ListDeploymentStatuses(ctx context.Context, owner, repo string, deploymentID int64) ([]DeploymentStatus, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	AddAssignees(ctx context.Context, owner, repo string, number int, assignees []string) error
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
	RerequestCheckRun(ctx context.Context, owner, repo string, checkRunID int64) error
}

// SourceControlFactory hands out access-checked clients. ForRepo fails
// with an access-denied error before any network call when the repository
// is outside the configured allow-list.
type SourceControlFactory interface {
	ForRepo(owner, repo string) (SourceControl, error)
}
