package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/app"
	"github.com/stewardhq/steward/internal/application/port"
)

// Client talks to the GitHub REST API with deterministic retry behavior
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	backoff    BackoffConfig
	logger     app.Logger
	wait       func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// waitFor blocks for the delay or until the context ends
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewClient creates a client for the public API endpoint
func NewClient(token string) *Client {
	return &Client{
		token:      token,
		baseURL:    DefaultAPIEndpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		backoff:    DefaultBackoffConfig(),
		logger:     app.GetLogger(),
		wait:       waitFor,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithBaseURL returns a copy targeting a custom base URL (tests, GHE)
func (c *Client) WithBaseURL(baseURL string) *Client {
	clone := *c
	clone.baseURL = baseURL
	return &clone
}

// WithHTTPClient returns a copy using a custom HTTP client
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	clone := *c
	clone.httpClient = httpClient
	return &clone
}

// WithBackoff returns a copy with custom retry bounds
func (c *Client) WithBackoff(cfg BackoffConfig) *Client {
	clone := *c
	clone.backoff = cfg
	return &clone
}

func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.baseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// doRequest performs one API call with authentication and bounded,
// deterministic retries. idempotent must be false for any call whose
// repetition could duplicate a side effect.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}, idempotent bool) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	requestID := uuid.New().String()
	endpoint := method + " " + urlStr

	var lastErr error
	for attempt := 0; ; attempt++ {
		respBody, err := c.doOnce(ctx, method, urlStr, payload, requestID)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		decision := DecideRetry(c.backoff, err, attempt, idempotent, requestID, endpoint, c.now())
		if !decision.Retry {
			break
		}

		c.logger.Warn("github: retrying %s after %s (attempt %d): %v", endpoint, decision.Delay, attempt+1, err)
		if werr := c.wait(ctx, decision.Delay); werr != nil {
			return nil, werr
		}
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, urlStr string, payload []byte, requestID string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	const maxResponseSize = 10 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp, string(respBody))
	}
	return respBody, nil
}

// ListCheckRuns lists all check runs for a ref
func (c *Client) ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]port.CheckRun, error) {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs", owner, repo, ref),
		map[string]string{"per_page": "100"})
	body, err := c.doRequest(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return nil, fmt.Errorf("list check runs: %w", err)
	}
	var out checkRunsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode check runs: %w", err)
	}
	return out.CheckRuns, nil
}

// ListReviews lists all reviews on a pull request
func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]port.Review, error) {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, number),
		map[string]string{"per_page": "100"})
	body, err := c.doRequest(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	var out []port.Review
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return out, nil
}

// GetPullRequest fetches PR detail (head SHA, merged flag, state)
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*port.PullRequest, error) {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number), nil)
	body, err := c.doRequest(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return nil, fmt.Errorf("get pull request: %w", err)
	}
	var out port.PullRequest
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode pull request: %w", err)
	}
	return &out, nil
}

// MergePullRequest merges a PR. Never retried: an ambiguous failure may
// have merged already, and callers must re-check the merged flag instead.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, method string) (*port.MergeResult, error) {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", owner, repo, number), nil)
	req := map[string]string{"merge_method": method}
	body, err := c.doRequest(ctx, http.MethodPut, u, req, false)
	if err != nil {
		return nil, fmt.Errorf("merge pull request: %w", err)
	}
	var out port.MergeResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode merge result: %w", err)
	}
	return &out, nil
}

// ListDeployments lists deployments, optionally filtered by ref
func (c *Client) ListDeployments(ctx context.Context, owner, repo, ref string) ([]port.Deployment, error) {
	params := map[string]string{"per_page": "100"}
	if ref != "" {
		params["ref"] = ref
	}
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/deployments", owner, repo), params)
	body, err := c.doRequest(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	var out []port.Deployment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode deployments: %w", err)
	}
	return out, nil
}

// ListDeploymentStatuses lists the status history for a deployment
func (c *Client) ListDeploymentStatuses(ctx context.Context, owner, repo string, deploymentID int64) ([]port.DeploymentStatus, error) {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/deployments/%d/statuses", owner, repo, deploymentID), nil)
	body, err := c.doRequest(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return nil, fmt.Errorf("list deployment statuses: %w", err)
	}
	var out []port.DeploymentStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode deployment statuses: %w", err)
	}
	return out, nil
}

// AddLabels adds labels to an issue or PR
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, repo, number), nil)
	req := map[string][]string{"labels": labels}
	if _, err := c.doRequest(ctx, http.MethodPost, u, req, false); err != nil {
		return fmt.Errorf("add labels: %w", err)
	}
	return nil
}

// AddAssignees assigns users to an issue or PR
func (c *Client) AddAssignees(ctx context.Context, owner, repo string, number int, assignees []string) error {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/issues/%d/assignees", owner, repo, number), nil)
	req := map[string][]string{"assignees": assignees}
	if _, err := c.doRequest(ctx, http.MethodPost, u, req, false); err != nil {
		return fmt.Errorf("add assignees: %w", err)
	}
	return nil
}

// CreateComment posts a comment on an issue or PR
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, commentBody string) error {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number), nil)
	req := map[string]string{"body": commentBody}
	if _, err := c.doRequest(ctx, http.MethodPost, u, req, false); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// RerequestCheckRun asks the provider to re-run a single check run
func (c *Client) RerequestCheckRun(ctx context.Context, owner, repo string, checkRunID int64) error {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/check-runs/%d/rerequest", owner, repo, checkRunID), nil)
	if _, err := c.doRequest(ctx, http.MethodPost, u, nil, false); err != nil {
		return fmt.Errorf("rerequest check run: %w", err)
	}
	return nil
}

// RerunFailedJobs re-runs the failed jobs of a workflow run
func (c *Client) RerunFailedJobs(ctx context.Context, owner, repo string, workflowRunID int64) error {
	u := c.buildURL(fmt.Sprintf("/repos/%s/%s/actions/runs/%d/rerun-failed-jobs", owner, repo, workflowRunID), nil)
	if _, err := c.doRequest(ctx, http.MethodPost, u, nil, false); err != nil {
		return fmt.Errorf("rerun failed jobs: %w", err)
	}
	return nil
}
