package repository

import (
	"context"
	"time"

	"github.com/timmy/syncq/internal/domain"
	"gorm.io/gorm"
)

// ChunkHealthRepository handles append-only chunk attempt records.
type ChunkHealthRepository struct {
	db *gorm.DB
}

// NewChunkHealthRepository creates a new ChunkHealthRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ChunkHealthRepository: repository instance bound to db.
func NewChunkHealthRepository(db *gorm.DB) *ChunkHealthRepository {
	return &ChunkHealthRepository{db: db}
}

// Insert appends one attempt record. Records are never updated or deleted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - record: attempt record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ChunkHealthRepository) Insert(ctx context.Context, record *domain.ChunkHealthRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByChunk retrieves all attempt records for a chunk, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - chunkID: chunk ID.
// Returns:
//   - []domain.ChunkHealthRecord: attempt records.
//   - error: non-nil if the query fails.
func (r *ChunkHealthRepository) ListByChunk(ctx context.Context, chunkID string) ([]domain.ChunkHealthRecord, error) {
	var records []domain.ChunkHealthRecord
	if err := r.db.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// AttemptStats summarizes a job's attempt records over a window.
type AttemptStats struct {
	Total     int64 `json:"total"`
	Failed    int64 `json:"failed"`
	ItemCount int64 `json:"item_count"`
}

// StatsSince aggregates attempt counts and items processed for a job since
// the given time. Used by the status API's health summary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: parent job ID.
//   - since: earliest record time to include.
// Returns:
//   - *AttemptStats: aggregated counts.
//   - error: non-nil if the query fails.
func (r *ChunkHealthRepository) StatsSince(ctx context.Context, jobID string, since time.Time) (*AttemptStats, error) {
	var stats AttemptStats

	base := r.db.WithContext(ctx).Model(&domain.ChunkHealthRecord{}).
		Where("job_id = ? AND created_at >= ?", jobID, since)

	if err := base.Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&domain.ChunkHealthRecord{}).
		Where("job_id = ? AND created_at >= ? AND status = ?", jobID, since, domain.ChunkStatusFailed).
		Count(&stats.Failed).Error; err != nil {
		return nil, err
	}

	var itemCount *int64
	if err := r.db.WithContext(ctx).Model(&domain.ChunkHealthRecord{}).
		Select("SUM(item_count)").
		Where("job_id = ? AND created_at >= ? AND status = ?", jobID, since, domain.ChunkStatusCompleted).
		Scan(&itemCount).Error; err != nil {
		return nil, err
	}
	if itemCount != nil {
		stats.ItemCount = *itemCount
	}
	return &stats, nil
}
