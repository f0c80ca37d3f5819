package github

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrorClass buckets an external API failure for retry decisions
type ErrorClass string

const (
	ClassRateLimitPrimary   ErrorClass = "rate-limit-primary"
	ClassRateLimitSecondary ErrorClass = "rate-limit-secondary"
	ClassServerError        ErrorClass = "server-error"
	ClassNetworkError       ErrorClass = "network-error"
	ClassClientError        ErrorClass = "client-error"
	ClassUnknown            ErrorClass = "unknown"
)

// APIError is a non-2xx response from the source-control API
type APIError struct {
	StatusCode         int
	Message            string
	RetryAfter         time.Duration
	RateLimitRemaining string
	RateLimitReset     time.Time
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
}

// newAPIError builds an APIError from a response, capturing the
// rate-limit headers needed for backoff decisions.
func newAPIError(resp *http.Response, message string) *APIError {
	apiErr := &APIError{
		StatusCode:         resp.StatusCode,
		Message:            message,
		RateLimitRemaining: resp.Header.Get("X-RateLimit-Remaining"),
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			apiErr.RateLimitReset = time.Unix(epoch, 0).UTC()
		}
	}
	return apiErr
}

// Classify buckets an error. Anything not positively identified is
// unknown, and unknown is never retried.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusForbidden && apiErr.RateLimitRemaining == "0":
			return ClassRateLimitPrimary
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ClassRateLimitSecondary
		case apiErr.StatusCode >= 500:
			return ClassServerError
		case apiErr.StatusCode >= 400:
			return ClassClientError
		default:
			return ClassUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetworkError
	}

	return ClassUnknown
}
