package service

import (
	"testing"
	"time"

	"github.com/timmy/syncq/internal/domain"
)

// TestRetryDelay verifies the exact backoff schedule per category.
func TestRetryDelay(t *testing.T) {
	testCases := []struct {
		name     string
		category domain.ErrorCategory
		attempt  int
		want     time.Duration
	}{
		{"rate limit first", domain.ErrorCategoryRateLimit, 1, 5000 * time.Millisecond},
		{"rate limit second", domain.ErrorCategoryRateLimit, 2, 15000 * time.Millisecond},
		{"rate limit third", domain.ErrorCategoryRateLimit, 3, 45000 * time.Millisecond},
		{"rate limit capped", domain.ErrorCategoryRateLimit, 7, 45000 * time.Millisecond},

		{"network first", domain.ErrorCategoryNetwork, 1, 2000 * time.Millisecond},
		{"network second", domain.ErrorCategoryNetwork, 2, 4000 * time.Millisecond},
		{"network third", domain.ErrorCategoryNetwork, 3, 8000 * time.Millisecond},
		{"network capped", domain.ErrorCategoryNetwork, 9, 8000 * time.Millisecond},

		{"transient server first", domain.ErrorCategoryTransientServer, 1, 2000 * time.Millisecond},
		{"transient server second", domain.ErrorCategoryTransientServer, 2, 4000 * time.Millisecond},

		{"timeout first", domain.ErrorCategoryTimeout, 1, 3000 * time.Millisecond},
		{"timeout second", domain.ErrorCategoryTimeout, 2, 6000 * time.Millisecond},
		{"timeout third", domain.ErrorCategoryTimeout, 3, 9000 * time.Millisecond},
		{"timeout capped", domain.ErrorCategoryTimeout, 5, 9000 * time.Millisecond},

		{"auth first", domain.ErrorCategoryAuth, 1, 2000 * time.Millisecond},
		{"auth second", domain.ErrorCategoryAuth, 2, 5000 * time.Millisecond},

		{"processing first", domain.ErrorCategoryProcessing, 1, 1000 * time.Millisecond},
		{"processing second", domain.ErrorCategoryProcessing, 2, 2000 * time.Millisecond},
		{"processing third", domain.ErrorCategoryProcessing, 3, 4000 * time.Millisecond},
		{"unknown first", domain.ErrorCategoryUnknown, 1, 1000 * time.Millisecond},

		{"attempt below one is clamped", domain.ErrorCategoryNetwork, 0, 2000 * time.Millisecond},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := RetryDelay(tc.category, tc.attempt)
			if got != tc.want {
				t.Errorf("RetryDelay(%s, %d) = %s, want %s", tc.category, tc.attempt, got, tc.want)
			}
		})
	}
}

// TestNextActionNonRetryable verifies that request-shaped failures are never
// retried, even on the first attempt.
func TestNextActionNonRetryable(t *testing.T) {
	categories := []domain.ErrorCategory{
		domain.ErrorCategoryPermission,
		domain.ErrorCategoryNotFound,
		domain.ErrorCategoryConflict,
	}
	for _, category := range categories {
		t.Run(string(category), func(t *testing.T) {
			decision := NextAction(category, 1, 3)
			if decision.Retryable {
				t.Errorf("NextAction(%s, 1, 3).Retryable = true, want false", category)
			}
		})
	}
}

// TestNextActionCeilings verifies the global and per-category attempt ceilings.
func TestNextActionCeilings(t *testing.T) {
	testCases := []struct {
		name        string
		category    domain.ErrorCategory
		attempt     int
		maxAttempts int
		retryable   bool
	}{
		{"network under ceiling", domain.ErrorCategoryNetwork, 1, 3, true},
		{"network second attempt", domain.ErrorCategoryNetwork, 2, 3, true},
		{"network at ceiling", domain.ErrorCategoryNetwork, 3, 3, false},
		{"network past ceiling", domain.ErrorCategoryNetwork, 4, 3, false},

		{"rate limit first retry allowed", domain.ErrorCategoryRateLimit, 1, 5, true},
		{"rate limit second retry allowed", domain.ErrorCategoryRateLimit, 2, 5, true},
		{"rate limit budget spent", domain.ErrorCategoryRateLimit, 3, 5, false},

		{"auth one retry allowed", domain.ErrorCategoryAuth, 1, 5, true},
		{"auth budget spent", domain.ErrorCategoryAuth, 2, 5, false},

		{"timeout bounded by max attempts", domain.ErrorCategoryTimeout, 2, 2, false},
		{"zero max attempts falls back to default", domain.ErrorCategoryTimeout, 2, 0, true},
		{"default ceiling reached", domain.ErrorCategoryTimeout, 3, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision := NextAction(tc.category, tc.attempt, tc.maxAttempts)
			if decision.Retryable != tc.retryable {
				t.Errorf("NextAction(%s, %d, %d).Retryable = %v, want %v",
					tc.category, tc.attempt, tc.maxAttempts, decision.Retryable, tc.retryable)
			}
			if decision.Retryable && decision.Delay <= 0 {
				t.Errorf("retryable decision has non-positive delay %s", decision.Delay)
			}
			if !decision.Retryable && decision.Delay != 0 {
				t.Errorf("non-retryable decision has delay %s, want 0", decision.Delay)
			}
		})
	}
}

// TestNextActionDelayMatchesSchedule verifies that the decision carries the
// schedule delay for the attempt that failed.
func TestNextActionDelayMatchesSchedule(t *testing.T) {
	decision := NextAction(domain.ErrorCategoryRateLimit, 2, 5)
	if !decision.Retryable {
		t.Fatal("second rate limit attempt should be retryable")
	}
	if decision.Delay != 15*time.Second {
		t.Errorf("delay = %s, want 15s", decision.Delay)
	}
}
