package service

import (
	"strings"

	"github.com/timmy/syncq/internal/domain"
)

// classificationRule maps substrings of normalized error text to a category.
type classificationRule struct {
	category domain.ErrorCategory
	patterns []string
}

// classificationRules is evaluated in order; the first matching rule wins.
// Keep the ordering stable: timeout before rate limit before network before
// transient server before auth before permission before not found before
// conflict. More specific patterns must precede the generic ones they would
// otherwise shadow.
var classificationRules = []classificationRule{
	{domain.ErrorCategoryTimeout, []string{
		"timeout", "timed out", "deadline exceeded",
	}},
	{domain.ErrorCategoryRateLimit, []string{
		"rate limit", "too many requests", "429",
	}},
	{domain.ErrorCategoryNetwork, []string{
		"connection refused", "connection reset", "no such host",
		"dns", "broken pipe", "network", "unexpected eof",
	}},
	{domain.ErrorCategoryTransientServer, []string{
		"bad gateway", "service unavailable", "502", "503", "server error",
	}},
	{domain.ErrorCategoryAuth, []string{
		"unauthorized", "401", "token expired", "invalid token", "authentication",
	}},
	{domain.ErrorCategoryPermission, []string{
		"forbidden", "403", "permission denied", "access denied",
	}},
	{domain.ErrorCategoryNotFound, []string{
		"not found", "404",
	}},
	{domain.ErrorCategoryConflict, []string{
		"conflict", "409",
	}},
}

// Classify maps raw error text to an error category. It is deterministic
// and purely textual; a message matching no rule falls back to
// processing_error, and empty text is unknown.
func Classify(raw string) domain.ErrorCategory {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return domain.ErrorCategoryUnknown
	}

	for _, rule := range classificationRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(normalized, pattern) {
				return rule.category
			}
		}
	}
	return domain.ErrorCategoryProcessing
}
