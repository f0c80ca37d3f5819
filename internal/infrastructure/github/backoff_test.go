package github

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterUnit_Deterministic(t *testing.T) {
	a := jitterUnit("req-1", 2, "GET /repos/o/r/pulls/1")
	b := jitterUnit("req-1", 2, "GET /repos/o/r/pulls/1")
	assert.Equal(t, a, b)

	assert.GreaterOrEqual(t, a, 0.0)
	assert.Less(t, a, 1.0)

	// Any seed component change moves the jitter
	assert.NotEqual(t, a, jitterUnit("req-2", 2, "GET /repos/o/r/pulls/1"))
	assert.NotEqual(t, a, jitterUnit("req-1", 3, "GET /repos/o/r/pulls/1"))
}

func TestCalculateBackoff_Monotonic(t *testing.T) {
	cfg := DefaultBackoffConfig()

	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := calculateBackoff(cfg, attempt, "req-42", "GET /x")
		assert.GreaterOrEqual(t, d, prev, "attempt %d shrank the delay", attempt)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
		prev = d
	}
}

func TestCalculateBackoff_JitterBounds(t *testing.T) {
	cfg := DefaultBackoffConfig()

	d := calculateBackoff(cfg, 0, "req-7", "GET /y")
	lower := time.Duration(float64(cfg.InitialDelay) * (1 - cfg.JitterFraction))
	upper := time.Duration(float64(cfg.InitialDelay) * (1 + cfg.JitterFraction))
	assert.GreaterOrEqual(t, d, lower)
	assert.LessOrEqual(t, d, upper)
}

func TestCalculateBackoff_CapsAtMaxDelay(t *testing.T) {
	cfg := DefaultBackoffConfig()
	assert.Equal(t, cfg.MaxDelay, calculateBackoff(cfg, 30, "req-9", "GET /z"))
}

func TestDecideRetry_CeilingStops(t *testing.T) {
	cfg := DefaultBackoffConfig()
	err := &APIError{StatusCode: http.StatusInternalServerError}

	dec := DecideRetry(cfg, err, cfg.MaxRetries, true, "req", "GET /x", time.Now())
	assert.False(t, dec.Retry)
	assert.Equal(t, "retry ceiling reached", dec.Reason)
}

func TestDecideRetry_NonIdempotentNeverRetried(t *testing.T) {
	cfg := DefaultBackoffConfig()

	for _, err := range []error{
		&APIError{StatusCode: http.StatusInternalServerError},
		&APIError{StatusCode: http.StatusTooManyRequests},
	} {
		dec := DecideRetry(cfg, err, 0, false, "req", "PUT /merge", time.Now())
		assert.False(t, dec.Retry, "retried %v on a non-idempotent call", err)
	}
}

func TestDecideRetry_ClientErrorNeverRetried(t *testing.T) {
	cfg := DefaultBackoffConfig()
	dec := DecideRetry(cfg, &APIError{StatusCode: http.StatusNotFound}, 0, true, "req", "GET /x", time.Now())
	assert.False(t, dec.Retry)
	assert.Equal(t, string(ClassClientError), dec.Reason)
}

func TestDecideRetry_UnknownNeverRetried(t *testing.T) {
	cfg := DefaultBackoffConfig()
	dec := DecideRetry(cfg, errors.New("something odd"), 0, true, "req", "GET /x", time.Now())
	assert.False(t, dec.Retry)
	assert.Equal(t, string(ClassUnknown), dec.Reason)
}

func TestDecideRetry_ServerErrorBacksOff(t *testing.T) {
	cfg := DefaultBackoffConfig()
	dec := DecideRetry(cfg, &APIError{StatusCode: http.StatusBadGateway}, 1, true, "req", "GET /x", time.Now())
	require.True(t, dec.Retry)
	assert.Equal(t, calculateBackoff(cfg, 1, "req", "GET /x"), dec.Delay)
}

func TestDecideRetry_RateLimitHonorsRetryAfter(t *testing.T) {
	cfg := DefaultBackoffConfig()
	err := &APIError{StatusCode: http.StatusTooManyRequests, RetryAfter: 30 * time.Second}

	dec := DecideRetry(cfg, err, 0, true, "req", "GET /x", time.Now())
	require.True(t, dec.Retry)
	assert.Equal(t, 30*time.Second, dec.Delay)
}

func TestDecideRetry_RateLimitHonorsResetWithBuffer(t *testing.T) {
	cfg := DefaultBackoffConfig()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := &APIError{
		StatusCode:         http.StatusForbidden,
		RateLimitRemaining: "0",
		RateLimitReset:     now.Add(45 * time.Second),
	}

	dec := DecideRetry(cfg, err, 0, true, "req", "GET /x", now)
	require.True(t, dec.Retry)
	assert.Equal(t, 45*time.Second+rateLimitResetBuffer, dec.Delay)
}

func TestDecideRetry_RateLimitDelayCapped(t *testing.T) {
	cfg := DefaultBackoffConfig()
	err := &APIError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Hour}

	dec := DecideRetry(cfg, err, 0, true, "req", "GET /x", time.Now())
	require.True(t, dec.Retry)
	assert.Equal(t, cfg.MaxDelay, dec.Delay)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"primary rate limit", &APIError{StatusCode: 403, RateLimitRemaining: "0"}, ClassRateLimitPrimary},
		{"plain 403", &APIError{StatusCode: 403, RateLimitRemaining: "12"}, ClassClientError},
		{"secondary rate limit", &APIError{StatusCode: 429}, ClassRateLimitSecondary},
		{"server error", &APIError{StatusCode: 503}, ClassServerError},
		{"client error", &APIError{StatusCode: 422}, ClassClientError},
		{"plain error", errors.New("boom"), ClassUnknown},
		{"nil", nil, ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
