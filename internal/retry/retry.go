// Package retry implements the backoff policy for transcription job retries.
package retry

import (
	"math"
	"time"

	"github.com/flightstudio/podscribe/pkg/types"
)

const maxBackoffSeconds = 3600

// DefaultPolicy returns the default retry configuration.
func DefaultPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       3,
		BackoffSeconds:    30,
		BackoffMultiplier: 2.0,
		RetryableFailures: []types.FailureCategory{
			types.FailureTransient,
			types.FailureTimeout,
			types.FailureRateLimited,
		},
	}
}

// Backoff returns the wait duration for a given attempt number.
// Uses exponential backoff: base * multiplier^(attempt-1), capped at one hour.
func Backoff(policy types.RetryPolicy, attempt int) time.Duration {
	base := policy.BackoffSeconds
	if base <= 0 {
		base = 30
	}
	if attempt <= 1 {
		return time.Duration(base) * time.Second
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if backoff > maxBackoffSeconds {
		backoff = maxBackoffSeconds
	}
	return time.Duration(backoff) * time.Second
}

// IsRetryable returns whether a failure category should be retried.
func IsRetryable(policy types.RetryPolicy, category types.FailureCategory) bool {
	if category == types.FailurePermanent {
		return false
	}
	if len(policy.RetryableFailures) == 0 {
		// Default: retry everything except permanent failures
		return category == types.FailureTransient ||
			category == types.FailureTimeout ||
			category == types.FailureRateLimited ||
			category == ""
	}
	for _, fc := range policy.RetryableFailures {
		if fc == category {
			return true
		}
	}
	return category == ""
}

// MaxAttempts returns the configured attempt ceiling, defaulting to 3.
func MaxAttempts(policy types.RetryPolicy) int {
	if policy.MaxAttempts > 0 {
		return policy.MaxAttempts
	}
	return 3
}
