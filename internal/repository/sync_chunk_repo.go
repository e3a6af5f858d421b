package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/syncq/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncChunkRepository handles chunk data operations, including the atomic
// claim that is the only synchronization primitive between workers.
type SyncChunkRepository struct {
	db *gorm.DB
}

// NewSyncChunkRepository creates a new SyncChunkRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SyncChunkRepository: repository instance bound to db.
func NewSyncChunkRepository(db *gorm.DB) *SyncChunkRepository {
	return &SyncChunkRepository{db: db}
}

// ClaimNext atomically selects and locks the next eligible chunk for a
// worker. Eligible means pending, under the attempt ceiling, and past its
// retry eligibility time; the lowest chunk_index wins, oldest job first.
// On Postgres the select takes a row lock that skips rows locked by
// concurrent claims; everywhere the final update is guarded on the pending
// status, so two claims can never both own the same chunk.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - workerID: identifier of the claiming worker.
// Returns:
//   - *domain.SyncChunk: claimed chunk, or nil when nothing is eligible.
//     A nil chunk does not mean the job is complete; only the aggregate
//     terminal check decides that.
//   - error: non-nil if the transaction fails.
func (r *SyncChunkRepository) ClaimNext(ctx context.Context, workerID string) (*domain.SyncChunk, error) {
	var claimed *domain.SyncChunk

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		query := tx.Where(
			"status = ? AND attempts < max_attempts AND available_at <= ?",
			domain.ChunkStatusPending, now,
		).Order("created_at ASC, chunk_index ASC")

		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{
				Strength: clause.LockingStrengthUpdate,
				Options:  clause.LockingOptionsSkipLocked,
			})
		}

		var chunk domain.SyncChunk
		if err := query.First(&chunk).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		res := tx.Model(&domain.SyncChunk{}).
			Where("id = ? AND status = ?", chunk.ID, domain.ChunkStatusPending).
			Updates(map[string]interface{}{
				"status":     domain.ChunkStatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"worker_id":  workerID,
				"started_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent claim; report nothing eligible
			// and let the caller's next invocation pick up remaining work.
			return nil
		}

		chunk.Status = domain.ChunkStatusProcessing
		chunk.Attempts++
		chunk.WorkerID = workerID
		chunk.StartedAt = &now
		claimed = &chunk
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkCompleted moves a processing chunk to completed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: chunk ID.
//   - processingTimeMs: wall-clock duration of the attempt.
// Returns:
//   - error: non-nil if the update fails or the chunk was not processing.
func (r *SyncChunkRepository) MarkCompleted(ctx context.Context, id string, processingTimeMs int64) error {
	now := time.Now()
	return r.transition(ctx, id, map[string]interface{}{
		"status":             domain.ChunkStatusCompleted,
		"completed_at":       now,
		"processing_time_ms": processingTimeMs,
		"error_category":     "",
		"error_message":      "",
		"updated_at":         now,
	})
}

// MarkFailed moves a processing chunk to the terminal failed status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: chunk ID.
//   - category: classified error category.
//   - message: raw error message for the reporting collaborator.
//   - processingTimeMs: wall-clock duration of the attempt.
// Returns:
//   - error: non-nil if the update fails or the chunk was not processing.
func (r *SyncChunkRepository) MarkFailed(ctx context.Context, id string, category domain.ErrorCategory, message string, processingTimeMs int64) error {
	now := time.Now()
	return r.transition(ctx, id, map[string]interface{}{
		"status":             domain.ChunkStatusFailed,
		"completed_at":       now,
		"processing_time_ms": processingTimeMs,
		"error_category":     category,
		"error_message":      message,
		"updated_at":         now,
	})
}

// Requeue returns a processing chunk to pending with a retry eligibility
// time. The claim query respects available_at, so the chunk stays invisible
// until the backoff delay has elapsed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: chunk ID.
//   - category: classified error category of the failed attempt.
//   - message: raw error message of the failed attempt.
//   - availableAt: earliest time the chunk may be claimed again.
// Returns:
//   - error: non-nil if the update fails or the chunk was not processing.
func (r *SyncChunkRepository) Requeue(ctx context.Context, id string, category domain.ErrorCategory, message string, availableAt time.Time) error {
	return r.transition(ctx, id, map[string]interface{}{
		"status":         domain.ChunkStatusPending,
		"available_at":   availableAt,
		"error_category": category,
		"error_message":  message,
		"worker_id":      "",
		"started_at":     nil,
		"updated_at":     time.Now(),
	})
}

// ErrStaleTransition is returned when a terminal/retry transition targets a
// chunk that is no longer in processing, e.g. after the reaper reset it.
var ErrStaleTransition = errors.New("chunk is no longer processing")

// transition applies updates guarded on the processing status.
func (r *SyncChunkRepository) transition(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.SyncChunk{}).
		Where("id = ? AND status = ?", id, domain.ChunkStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// RecoverStuck resets chunks abandoned mid-processing back to pending.
// Attempts are not decremented or incremented here: the attempt was counted
// at claim time, so a recovered chunk re-enters the queue with its claim
// already spent. Only chunks with attempts remaining are reset; a chunk
// abandoned on its final attempt would be unclaimable as pending, so those
// go through FailExhausted instead.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - olderThan: minimum age of started_at for a chunk to count as stuck.
// Returns:
//   - int64: number of chunks reset.
//   - error: non-nil if the update fails.
func (r *SyncChunkRepository) RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).Model(&domain.SyncChunk{}).
		Where("status = ? AND started_at < ? AND attempts < max_attempts",
			domain.ChunkStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     domain.ChunkStatusPending,
			"worker_id":  "",
			"started_at": nil,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// FailExhausted terminally fails stuck processing chunks that have no
// attempts left. Resetting such a chunk to pending would strand it: the
// claim query requires attempts < max_attempts, so it could never be picked
// up again and its parent job could never finalize.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - olderThan: minimum age of started_at for a chunk to count as stuck.
// Returns:
//   - int64: number of chunks failed.
//   - []string: distinct parent job IDs of the failed chunks, for
//     finalization by the caller.
//   - error: non-nil if the transaction fails.
func (r *SyncChunkRepository) FailExhausted(ctx context.Context, olderThan time.Duration) (int64, []string, error) {
	cutoff := time.Now().Add(-olderThan)
	var failed int64
	var jobIDs []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chunks []domain.SyncChunk
		if err := tx.Model(&domain.SyncChunk{}).
			Select("id", "job_id").
			Where("status = ? AND started_at < ? AND attempts >= max_attempts",
				domain.ChunkStatusProcessing, cutoff).
			Find(&chunks).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		ids := make([]string, 0, len(chunks))
		seen := make(map[string]struct{}, len(chunks))
		for _, chunk := range chunks {
			ids = append(ids, chunk.ID)
			if _, dup := seen[chunk.JobID]; !dup {
				seen[chunk.JobID] = struct{}{}
				jobIDs = append(jobIDs, chunk.JobID)
			}
		}

		now := time.Now()
		res := tx.Model(&domain.SyncChunk{}).
			Where("id IN ? AND status = ?", ids, domain.ChunkStatusProcessing).
			Updates(map[string]interface{}{
				"status":         domain.ChunkStatusFailed,
				"error_category": domain.ErrorCategoryTimeout,
				"error_message":  "abandoned in processing past the stuck timeout with no attempts remaining",
				"completed_at":   now,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		failed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return failed, jobIDs, nil
}

// GetByID retrieves a chunk by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: chunk ID.
// Returns:
//   - *domain.SyncChunk: chunk record if found.
//   - error: non-nil if lookup fails.
func (r *SyncChunkRepository) GetByID(ctx context.Context, id string) (*domain.SyncChunk, error) {
	var chunk domain.SyncChunk
	if err := r.db.WithContext(ctx).First(&chunk, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &chunk, nil
}

// ListByJob retrieves all chunks of a job ordered by chunk index.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: parent job ID.
// Returns:
//   - []domain.SyncChunk: chunk records.
//   - error: non-nil if the query fails.
func (r *SyncChunkRepository) ListByJob(ctx context.Context, jobID string) ([]domain.SyncChunk, error) {
	var chunks []domain.SyncChunk
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// CountByStatus counts a job's chunks grouped by status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: parent job ID.
// Returns:
//   - map[domain.ChunkStatus]int64: count per status; absent statuses are zero.
//   - error: non-nil if the query fails.
func (r *SyncChunkRepository) CountByStatus(ctx context.Context, jobID string) (map[domain.ChunkStatus]int64, error) {
	type statusCount struct {
		Status domain.ChunkStatus
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).Model(&domain.SyncChunk{}).
		Select("status, COUNT(*) as count").
		Where("job_id = ?", jobID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.ChunkStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// HasEligible reports whether any chunk is currently claimable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - bool: true when at least one pending chunk is past its eligibility time.
//   - error: non-nil if the query fails.
func (r *SyncChunkRepository) HasEligible(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.SyncChunk{}).
		Where("status = ? AND attempts < max_attempts AND available_at <= ?",
			domain.ChunkStatusPending, time.Now()).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasOutstanding reports whether any chunk of a job is pending or
// processing, counting chunks waiting out a backoff delay.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: parent job ID.
// Returns:
//   - bool: true when the job still has non-terminal chunks.
//   - error: non-nil if the query fails.
func (r *SyncChunkRepository) HasOutstanding(ctx context.Context, jobID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.SyncChunk{}).
		Where("job_id = ? AND status IN ?", jobID, []domain.ChunkStatus{
			domain.ChunkStatusPending,
			domain.ChunkStatusProcessing,
		}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
