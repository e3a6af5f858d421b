package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the sync job ID
	FieldJobID = "job_id"

	// FieldChunkID is the sync chunk ID
	FieldChunkID = "chunk_id"

	// FieldWorkerID is the claiming worker ID
	FieldWorkerID = "worker_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldScope is the sync scope identifier
	FieldScope = "scope"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
