package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/pagemark/internal/extract"
)

// RetryPolicy decides whether a failed attempt is repeated and how long to
// wait first.
type RetryPolicy interface {
	MaxAttempts() int
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// ExponentialRetryPolicy doubles the wait after every failed attempt.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxAttempts total
// attempts. Values below one are raised to one.
func NewExponentialRetryPolicy(maxAttempts int, baseDelay time.Duration) *ExponentialRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &ExponentialRetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts returns the total number of attempts allowed per item.
func (p *ExponentialRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable after attempt.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return extract.Retryable(err)
}

// Backoff returns base * 2^(attempt-1): the wait after the attempt-th failure.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.baseDelay << (attempt - 1)
}
