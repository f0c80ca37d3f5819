package github

import (
	"errors"
	"fmt"
)

// ErrAccessDenied is returned when a repository is outside the allow-list
var ErrAccessDenied = errors.New("repository access denied")

// Factory hands out clients for allow-listed repositories. The allow-list
// check happens before any network call is possible.
type Factory struct {
	token        string
	baseURL      string
	allowedRepos map[string]bool
	backoff      BackoffConfig
}

// NewFactory creates a factory. allowedRepos entries are "owner/repo";
// an empty list denies everything.
func NewFactory(token, baseURL string, allowedRepos []string) *Factory {
	allowed := make(map[string]bool, len(allowedRepos))
	for _, r := range allowedRepos {
		allowed[r] = true
	}
	if baseURL == "" {
		baseURL = DefaultAPIEndpoint
	}
	return &Factory{
		token:        token,
		baseURL:      baseURL,
		allowedRepos: allowed,
		backoff:      DefaultBackoffConfig(),
	}
}

// WithBackoff sets custom retry bounds for created clients
func (f *Factory) WithBackoff(cfg BackoffConfig) *Factory {
	f.backoff = cfg
	return f
}

// ForRepo returns a client for the repository, or ErrAccessDenied when
// the repository is not allow-listed.
func (f *Factory) ForRepo(owner, repo string) (*Client, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: owner and repo required", ErrAccessDenied)
	}
	if !f.allowedRepos[owner+"/"+repo] {
		return nil, fmt.Errorf("%w: %s/%s", ErrAccessDenied, owner, repo)
	}
	return NewClient(f.token).WithBaseURL(f.baseURL).WithBackoff(f.backoff), nil
}
