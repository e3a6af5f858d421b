package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/syncq/internal/domain"
	"gorm.io/gorm"
)

// SyncJobRepository handles sync job data operations.
type SyncJobRepository struct {
	db *gorm.DB
}

// NewSyncJobRepository creates a new SyncJobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SyncJobRepository: repository instance bound to db.
func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// CreateWithChunks inserts a job and all of its chunks in one transaction.
// A failure on any row rolls back everything, so a job row never exists
// without its full chunk set.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
//   - chunks: chunk rows partitioning the job's item range; may be empty.
// Returns:
//   - error: non-nil if any insert fails.
func (r *SyncJobRepository) CreateWithChunks(ctx context.Context, job *domain.SyncJob, chunks []domain.SyncChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create sync job: %w", err)
		}
		if len(chunks) > 0 {
			if err := tx.Create(&chunks).Error; err != nil {
				return fmt.Errorf("failed to create chunks: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.SyncJob: job record if found.
//   - error: non-nil if lookup fails.
func (r *SyncJobRepository) GetByID(ctx context.Context, id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs ordered by creation time, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.SyncJob: matching job records.
//   - error: non-nil if the query fails.
func (r *SyncJobRepository) List(ctx context.Context, limit, offset int) ([]domain.SyncJob, error) {
	var jobs []domain.SyncJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkProcessing moves a pending job to processing. Safe to call from every
// completion: the status guard makes all calls after the first no-ops.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *SyncJobRepository) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"started_at": now,
			"updated_at": now,
		}).Error
}

// Finalize writes a terminal status with a compare-and-set guard: the update
// only applies while the job is still non-terminal, so exactly one of any
// number of concurrent finalization attempts wins.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - status: terminal status to write (completed or partial_failure).
// Returns:
//   - bool: true when this call performed the finalization.
//   - error: non-nil if the update fails.
func (r *SyncJobRepository) Finalize(ctx context.Context, id string, status domain.JobStatus) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ? AND status NOT IN ?", id, []domain.JobStatus{
			domain.JobStatusCompleted,
			domain.JobStatusPartialFailure,
		}).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
