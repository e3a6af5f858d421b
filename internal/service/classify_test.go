package service

import (
	"testing"

	"github.com/timmy/syncq/internal/domain"
)

// TestClassify verifies that representative error messages map to the
// expected categories.
func TestClassify(t *testing.T) {
	testCases := []struct {
		name    string
		message string
		want    domain.ErrorCategory
	}{
		{
			name:    "client timeout",
			message: "Get \"https://api.example.com/items\": context deadline exceeded",
			want:    domain.ErrorCategoryTimeout,
		},
		{
			name:    "explicit timed out",
			message: "request timed out after 30s",
			want:    domain.ErrorCategoryTimeout,
		},
		{
			name:    "rate limit text",
			message: "rate limit exceeded, retry later",
			want:    domain.ErrorCategoryRateLimit,
		},
		{
			name:    "429 status",
			message: "request failed with status 429 Too Many Requests",
			want:    domain.ErrorCategoryRateLimit,
		},
		{
			name:    "connection refused",
			message: "dial tcp 10.0.0.5:443: connect: connection refused",
			want:    domain.ErrorCategoryNetwork,
		},
		{
			name:    "dns failure",
			message: "lookup api.example.com: no such host",
			want:    domain.ErrorCategoryNetwork,
		},
		{
			name:    "bad gateway",
			message: "502 Bad Gateway",
			want:    domain.ErrorCategoryTransientServer,
		},
		{
			name:    "service unavailable",
			message: "upstream returned 503 Service Unavailable",
			want:    domain.ErrorCategoryTransientServer,
		},
		{
			name:    "expired token",
			message: "unauthorized (401): token expired",
			want:    domain.ErrorCategoryAuth,
		},
		{
			name:    "forbidden",
			message: "forbidden (403): insufficient scope",
			want:    domain.ErrorCategoryPermission,
		},
		{
			name:    "missing resource",
			message: "not found (404): collection does not exist",
			want:    domain.ErrorCategoryNotFound,
		},
		{
			name:    "version conflict",
			message: "conflict (409): resource version mismatch",
			want:    domain.ErrorCategoryConflict,
		},
		{
			name:    "unrecognized failure",
			message: "json: cannot unmarshal string into Go value of type int",
			want:    domain.ErrorCategoryProcessing,
		},
		{
			name:    "empty message",
			message: "",
			want:    domain.ErrorCategoryUnknown,
		},
		{
			name:    "whitespace only",
			message: "   ",
			want:    domain.ErrorCategoryUnknown,
		},
		{
			name:    "mixed case",
			message: "Connection Reset by peer",
			want:    domain.ErrorCategoryNetwork,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.message)
			if got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.message, got, tc.want)
			}
		})
	}
}

// TestClassifyDeterministic verifies that classification of the same message
// is stable across calls.
func TestClassifyDeterministic(t *testing.T) {
	message := "dial tcp: connection timeout while waiting for rate limit"
	first := Classify(message)
	for i := 0; i < 10; i++ {
		if got := Classify(message); got != first {
			t.Fatalf("Classify is not deterministic: first=%s, got=%s", first, got)
		}
	}
	// Timeout precedes rate limit in the rule order, so the timeout rule wins.
	if first != domain.ErrorCategoryTimeout {
		t.Errorf("Classify(%q) = %s, want %s", message, first, domain.ErrorCategoryTimeout)
	}
}
