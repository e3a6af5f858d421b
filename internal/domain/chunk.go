package domain

import "time"

// ChunkStatus represents the processing status of a single chunk.
// Values include ChunkStatusPending, ChunkStatusProcessing,
// ChunkStatusCompleted, and ChunkStatusFailed.
type ChunkStatus string

const (
	ChunkStatusPending    ChunkStatus = "pending"
	ChunkStatusProcessing ChunkStatus = "processing"
	ChunkStatusCompleted  ChunkStatus = "completed"
	ChunkStatusFailed     ChunkStatus = "failed"
)

// SyncChunk represents one bounded, independently processable slice of a
// sync job. StartOffset and EndOffset are inclusive positions within the
// job's filtered item range.
type SyncChunk struct {
	ID               string        `gorm:"type:text;primaryKey" json:"id"`
	JobID            string        `gorm:"type:text;not null;index:idx_sync_chunks_job,unique" json:"job_id"`
	ChunkIndex       int           `gorm:"not null;index:idx_sync_chunks_job,unique" json:"chunk_index"`
	TotalChunks      int           `gorm:"default:0" json:"total_chunks"`
	StartOffset      int           `gorm:"default:0" json:"start_offset"`
	EndOffset        int           `gorm:"default:0" json:"end_offset"`
	EstimatedItems   int           `gorm:"default:0" json:"estimated_items"`
	Status           ChunkStatus   `gorm:"type:text;index:idx_sync_chunks_status;default:pending" json:"status"`
	Attempts         int           `gorm:"default:0" json:"attempts"`
	MaxAttempts      int           `gorm:"default:3" json:"max_attempts"`
	ErrorCategory    ErrorCategory `gorm:"type:text" json:"error_category,omitempty"`
	ErrorMessage     string        `gorm:"type:text" json:"error_message,omitempty"`
	WorkerID         string        `gorm:"type:text" json:"worker_id,omitempty"`
	AvailableAt      time.Time     `gorm:"index" json:"available_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	ProcessingTimeMs int64         `gorm:"default:0" json:"processing_time_ms"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName returns the database table name for SyncChunk.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SyncChunk) TableName() string {
	return "sync_chunks"
}

// IsTerminal reports whether the chunk has reached a terminal status.
// Parameters: none.
// Returns:
//   - bool: true for completed or failed.
func (c *SyncChunk) IsTerminal() bool {
	return c.Status == ChunkStatusCompleted || c.Status == ChunkStatusFailed
}

// RangeSize returns the number of item positions covered by the chunk.
// Parameters: none.
// Returns:
//   - int: inclusive range size (EndOffset - StartOffset + 1).
func (c *SyncChunk) RangeSize() int {
	return c.EndOffset - c.StartOffset + 1
}
