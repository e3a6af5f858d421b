package service

import (
	"time"

	"github.com/timmy/syncq/internal/domain"
)

// DefaultMaxAttempts is the attempt ceiling applied when a chunk does not
// carry its own.
const DefaultMaxAttempts = 3

// Extra attempts allowed beyond the first for ceiling-limited categories.
const (
	rateLimitExtraAttempts = 2
	authExtraAttempts      = 1
)

// RetryDecision is the outcome of the backoff policy for one failed attempt.
type RetryDecision struct {
	Retryable bool
	Delay     time.Duration
}

// NextAction decides whether a chunk that just failed its attempt-th attempt
// may be retried, and after what delay. Permission, not_found and conflict
// are never retryable: the request itself is wrong and retrying cannot help.
// Rate limit and auth failures have tighter ceilings than maxAttempts.
func NextAction(category domain.ErrorCategory, attempt, maxAttempts int) RetryDecision {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if attempt < 1 {
		attempt = 1
	}

	switch category {
	case domain.ErrorCategoryPermission,
		domain.ErrorCategoryNotFound,
		domain.ErrorCategoryConflict:
		return RetryDecision{Retryable: false}
	}

	if attempt >= maxAttempts {
		return RetryDecision{Retryable: false}
	}

	switch category {
	case domain.ErrorCategoryRateLimit:
		if attempt-1 >= rateLimitExtraAttempts {
			return RetryDecision{Retryable: false}
		}
	case domain.ErrorCategoryAuth:
		if attempt-1 >= authExtraAttempts {
			return RetryDecision{Retryable: false}
		}
	}

	return RetryDecision{Retryable: true, Delay: RetryDelay(category, attempt)}
}

// RetryDelay returns the backoff delay before retry number attempt.
// The schedule per category, for attempts 1/2/3:
//
//	rate_limit        5s / 15s / 45s
//	network           2s /  4s /  8s
//	transient_server  2s /  4s /  8s
//	timeout           3s /  6s /  9s
//	auth              2s /  5s /  5s
//	anything else     1s /  2s /  4s
func RetryDelay(category domain.ErrorCategory, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var ms int
	switch category {
	case domain.ErrorCategoryRateLimit:
		ms = 5000 * pow(3, minInt(attempt-1, 2))
	case domain.ErrorCategoryNetwork, domain.ErrorCategoryTransientServer:
		ms = 2000 * pow(2, minInt(attempt-1, 2))
	case domain.ErrorCategoryTimeout:
		ms = 3000 * minInt(attempt, 3)
	case domain.ErrorCategoryAuth:
		if attempt == 1 {
			ms = 2000
		} else {
			ms = 5000
		}
	default:
		ms = 1000 * pow(2, minInt(attempt-1, 2))
	}
	return time.Duration(ms) * time.Millisecond
}

func pow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
