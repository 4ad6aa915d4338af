package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryConfig holds retry settings for model calls.
type RetryConfig struct {
	MaxRetries  int
	InitBackoff time.Duration
	MaxBackoff  time.Duration
}

const (
	defaultMaxRetries  = 5
	defaultInitBackoff = time.Second
	defaultMaxBackoff  = 60 * time.Second
	backoffFactor      = 2.0
)

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxRetries <= 0 {
		r.MaxRetries = defaultMaxRetries
	}
	if r.InitBackoff <= 0 {
		r.InitBackoff = defaultInitBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = defaultMaxBackoff
	}
	return r
}

// withRetry runs call until it succeeds, fails permanently or the retry
// budget is spent. Rate limits and 5xx errors are retried with exponential
// backoff; billing errors are never retried.
func withRetry[T any](ctx context.Context, cfg RetryConfig, provider string, call func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	backoff := cfg.InitBackoff

	var zero T
	for attempt := 0; ; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if isBillingError(err) {
			return zero, fmt.Errorf("billing/payment error (fatal): %w", err)
		}
		if !isRetryableError(err) {
			return zero, fmt.Errorf("%s request failed: %w", provider, err)
		}
		if attempt == cfg.MaxRetries {
			return zero, fmt.Errorf("%s request failed after %d retries: %w", provider, cfg.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

func isRateLimitError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "overloaded")
}

func isServerError(err error) bool {
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable",
		"gateway timeout", "temporarily unavailable",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func isRetryableError(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

func isBillingError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "billing") ||
		strings.Contains(s, "payment") ||
		strings.Contains(s, "insufficient_quota") ||
		strings.Contains(s, "quota exceeded") ||
		strings.Contains(s, "402")
}
