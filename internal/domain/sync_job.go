package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the aggregate status of a sync job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted,
// and JobStatusPartialFailure.
type JobStatus string

const (
	JobStatusPending        JobStatus = "pending"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusPartialFailure JobStatus = "partial_failure"
)

// JobType represents how a sync job was initiated.
type JobType string

const (
	JobTypeInitial     JobType = "initial"
	JobTypeIncremental JobType = "incremental"
	JobTypeManual      JobType = "manual"
)

// JSONMap is a custom type for storing arbitrary metadata as JSON in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// SyncJob represents one full synchronization request before splitting.
// A job owns a set of chunks that partition the estimated item range.
type SyncJob struct {
	ID                 string     `gorm:"type:text;primaryKey" json:"id"`
	ScopeType          string     `gorm:"type:text;not null;index:idx_sync_jobs_scope" json:"scope_type"`
	ScopeID            string     `gorm:"type:text;not null;index:idx_sync_jobs_scope" json:"scope_id"`
	JobType            JobType    `gorm:"type:text;not null" json:"job_type"`
	Status             JobStatus  `gorm:"type:text;index:idx_sync_jobs_status;default:pending" json:"status"`
	WindowStart        *time.Time `json:"window_start,omitempty"`
	WindowEnd          *time.Time `json:"window_end,omitempty"`
	TotalChunks        int        `gorm:"default:0" json:"total_chunks"`
	EstimatedItemCount int        `gorm:"default:0" json:"estimated_item_count"`
	Metadata           JSONMap    `gorm:"type:text" json:"metadata,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SyncJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// IsTerminal reports whether the job has reached a terminal status.
// Parameters: none.
// Returns:
//   - bool: true for completed or partial_failure.
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusPartialFailure
}
