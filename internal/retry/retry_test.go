package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flightstudio/podscribe/pkg/types"
)

func TestBackoff(t *testing.T) {
	policy := types.RetryPolicy{
		BackoffSeconds:    30,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
	}

	for _, tc := range tests {
		result := Backoff(policy, tc.attempt)
		assert.Equal(t, tc.expected, result, "attempt %d", tc.attempt)
	}
}

func TestBackoff_CapsAtOneHour(t *testing.T) {
	policy := types.RetryPolicy{
		BackoffSeconds:    1800,
		BackoffMultiplier: 4.0,
	}

	result := Backoff(policy, 3)
	assert.Equal(t, 3600*time.Second, result)
}

func TestBackoff_Defaults(t *testing.T) {
	result := Backoff(types.RetryPolicy{}, 2)
	assert.Equal(t, 60*time.Second, result)
}

func TestIsRetryable(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		category types.FailureCategory
		expected bool
	}{
		{types.FailureTransient, true},
		{types.FailureTimeout, true},
		{types.FailureRateLimited, true},
		{types.FailurePermanent, false},
	}

	for _, tc := range tests {
		result := IsRetryable(policy, tc.category)
		assert.Equal(t, tc.expected, result, "category %s", tc.category)
	}
}

func TestIsRetryable_EmptyCategory(t *testing.T) {
	assert.True(t, IsRetryable(DefaultPolicy(), ""))
	assert.True(t, IsRetryable(types.RetryPolicy{RetryableFailures: []types.FailureCategory{types.FailureTransient}}, ""))
}

func TestIsRetryable_CustomCategories(t *testing.T) {
	policy := types.RetryPolicy{
		RetryableFailures: []types.FailureCategory{types.FailureTransient},
	}

	assert.True(t, IsRetryable(policy, types.FailureTransient))
	assert.False(t, IsRetryable(policy, types.FailureTimeout))
	assert.False(t, IsRetryable(policy, types.FailurePermanent))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 30, p.BackoffSeconds)
	assert.Equal(t, 2.0, p.BackoffMultiplier)
	assert.Contains(t, p.RetryableFailures, types.FailureTransient)
	assert.Contains(t, p.RetryableFailures, types.FailureRateLimited)
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 3, MaxAttempts(types.RetryPolicy{}))
	assert.Equal(t, 5, MaxAttempts(types.RetryPolicy{MaxAttempts: 5}))
}
