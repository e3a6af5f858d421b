package domain

// ErrorCategory classifies a chunk failure for retry decisions.
// Categories are assigned by the error classifier from raw error text.
type ErrorCategory string

const (
	ErrorCategoryTimeout         ErrorCategory = "timeout"
	ErrorCategoryRateLimit       ErrorCategory = "rate_limit"
	ErrorCategoryNetwork         ErrorCategory = "network"
	ErrorCategoryTransientServer ErrorCategory = "transient_server"
	ErrorCategoryAuth            ErrorCategory = "auth"
	ErrorCategoryPermission      ErrorCategory = "permission"
	ErrorCategoryNotFound        ErrorCategory = "not_found"
	ErrorCategoryConflict        ErrorCategory = "conflict"
	ErrorCategoryProcessing      ErrorCategory = "processing_error"
	ErrorCategoryUnknown         ErrorCategory = "unknown"
)
