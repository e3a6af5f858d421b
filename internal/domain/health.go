package domain

import "time"

// ChunkHealthRecord is an append-only record of one chunk processing
// attempt. Records are written once per attempt and never mutated.
type ChunkHealthRecord struct {
	ID               string        `gorm:"type:text;primaryKey" json:"id"`
	ChunkID          string        `gorm:"type:text;not null;index:idx_chunk_health_chunk" json:"chunk_id"`
	JobID            string        `gorm:"type:text;not null;index:idx_chunk_health_job" json:"job_id"`
	WorkerID         string        `gorm:"type:text" json:"worker_id"`
	ProcessingTimeMs int64         `gorm:"default:0" json:"processing_time_ms"`
	ItemCount        int           `gorm:"default:0" json:"item_count"`
	Status           ChunkStatus   `gorm:"type:text" json:"status"`
	ErrorCategory    ErrorCategory `gorm:"type:text" json:"error_category,omitempty"`
	CreatedAt        time.Time     `gorm:"index" json:"created_at"`
}

// TableName returns the database table name for ChunkHealthRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ChunkHealthRecord) TableName() string {
	return "chunk_health_records"
}
