// Package github is a minimal client for the pieces of the GitHub REST
// API the control plane consumes: check runs, reviews, pull requests,
// deployments, and a small set of gated mutations. Responses decode
// directly into the application port records.
package github

import (
	"time"

	"github.com/stewardhq/steward/internal/application/port"
)

// DefaultAPIEndpoint is the public API base URL
const DefaultAPIEndpoint = "https://api.github.com"

// DefaultTimeout bounds a single HTTP request
const DefaultTimeout = 30 * time.Second

// checkRunsResponse is the list envelope for check runs
type checkRunsResponse struct {
	TotalCount int             `json:"total_count"`
	CheckRuns  []port.CheckRun `json:"check_runs"`
}
