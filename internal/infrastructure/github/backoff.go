package github

import (
	"errors"
	"fmt"
	"hash/fnv"
	"time"
)

// BackoffConfig bounds the retry policy
type BackoffConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	MaxRetries     int
	JitterFraction float64
}

// DefaultBackoffConfig returns the standard policy bounds
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay:   time.Second,
		MaxDelay:       2 * time.Minute,
		Multiplier:     2.0,
		MaxRetries:     5,
		JitterFraction: 0.2,
	}
}

// RetryDecision is the outcome of classifying one failed attempt
type RetryDecision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// rateLimitResetBuffer is added on top of a server-advertised reset time
const rateLimitResetBuffer = time.Second

// jitterUnit derives a deterministic value in [0, 1) from the seed
// context. The same (requestID, attempt, endpoint) always produces the
// same jitter, so failing request sequences replay with identical waits.
func jitterUnit(requestID string, attempt int, endpoint string) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", requestID, attempt, endpoint)
	return float64(h.Sum64()%10000) / 10000.0
}

// calculateBackoff computes the capped exponential delay for an attempt,
// shifted by the seeded jitter within ±JitterFraction.
func calculateBackoff(cfg BackoffConfig, attempt int, requestID, endpoint string) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= cfg.Multiplier
		if delay >= float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}

	if delay < float64(cfg.MaxDelay) && cfg.JitterFraction > 0 {
		// jitter in [-JitterFraction, +JitterFraction)
		unit := jitterUnit(requestID, attempt, endpoint)
		delay += delay * cfg.JitterFraction * (2*unit - 1)
	}

	d := time.Duration(delay)
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// rateLimitDelay honors the server-advertised wait when present, capped
// at MaxDelay; the reset-time case gets a one-second safety buffer.
func rateLimitDelay(cfg BackoffConfig, apiErr *APIError, now time.Time, attempt int, requestID, endpoint string) time.Duration {
	var d time.Duration
	switch {
	case apiErr.RetryAfter > 0:
		d = apiErr.RetryAfter
	case !apiErr.RateLimitReset.IsZero():
		d = apiErr.RateLimitReset.Sub(now) + rateLimitResetBuffer
	default:
		return calculateBackoff(cfg, attempt, requestID, endpoint)
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// DecideRetry determines whether a failed attempt may be retried and how
// long to wait. Non-idempotent calls are retried only when the caller has
// explicitly marked them idempotent-safe; a retried write that already
// took effect would otherwise duplicate its side effects.
func DecideRetry(cfg BackoffConfig, err error, attempt int, idempotent bool, requestID, endpoint string, now time.Time) RetryDecision {
	if attempt >= cfg.MaxRetries {
		return RetryDecision{Reason: "retry ceiling reached"}
	}

	class := Classify(err)
	switch class {
	case ClassServerError, ClassNetworkError:
		if !idempotent {
			return RetryDecision{Reason: fmt.Sprintf("%s on non-idempotent call", class)}
		}
		return RetryDecision{
			Retry:  true,
			Delay:  calculateBackoff(cfg, attempt, requestID, endpoint),
			Reason: string(class),
		}
	case ClassRateLimitPrimary, ClassRateLimitSecondary:
		if !idempotent {
			return RetryDecision{Reason: fmt.Sprintf("%s on non-idempotent call", class)}
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return RetryDecision{Reason: "rate limit without API error detail"}
		}
		return RetryDecision{
			Retry:  true,
			Delay:  rateLimitDelay(cfg, apiErr, now, attempt, requestID, endpoint),
			Reason: string(class),
		}
	default:
		// client-error and unknown are never retried
		return RetryDecision{Reason: string(class)}
	}
}
