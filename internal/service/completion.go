package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/syncq/internal/domain"
	"github.com/timmy/syncq/internal/logger"
	"github.com/timmy/syncq/internal/repository"
)

// CompletionService applies terminal and retry transitions to chunks and
// finalizes the parent job exactly once when the last chunk lands.
type CompletionService struct {
	jobRepo    *repository.SyncJobRepository
	chunkRepo  *repository.SyncChunkRepository
	trigger    WorkerTrigger
	logger     *logger.Logger
	onFinalize func(job *domain.SyncJob) // downstream side effect, fired once per job
}

// NewCompletionService creates a new completion service.
func NewCompletionService(
	jobRepo *repository.SyncJobRepository,
	chunkRepo *repository.SyncChunkRepository,
	trigger WorkerTrigger,
	log *logger.Logger,
) *CompletionService {
	return &CompletionService{
		jobRepo:   jobRepo,
		chunkRepo: chunkRepo,
		trigger:   trigger,
		logger:    log,
	}
}

// OnFinalize registers a callback invoked exactly once per job, by whichever
// completion wins the finalization compare-and-set.
func (s *CompletionService) OnFinalize(fn func(job *domain.SyncJob)) {
	s.onFinalize = fn
}

// log returns the context logger when one is attached, otherwise the
// service's own logger.
func (s *CompletionService) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return s.logger
}

// Outcome is the classified-free result of one chunk processing attempt.
// Err carries the raw failure; classification happens here, not in the
// processor.
type Outcome struct {
	Err       error
	ItemCount int
	Duration  time.Duration
}

// CompletionResult reports the parent job state after a chunk completion.
type CompletionResult struct {
	ParentStatus    domain.JobStatus
	RemainingChunks int64
}

// CompleteChunk applies the outcome of one attempt to the chunk and then
// re-evaluates the parent. Success completes the chunk; failure consults the
// classifier and backoff policy to either requeue with a delay or fail
// terminally. The parent check runs regardless, so completions arriving in
// any interleaving converge on exactly one finalization.
func (s *CompletionService) CompleteChunk(ctx context.Context, chunk *domain.SyncChunk, outcome Outcome) (*CompletionResult, error) {
	durationMs := outcome.Duration.Milliseconds()

	if outcome.Err == nil {
		if err := s.chunkRepo.MarkCompleted(ctx, chunk.ID, durationMs); err != nil {
			if !errors.Is(err, repository.ErrStaleTransition) {
				return nil, fmt.Errorf("failed to complete chunk: %w", err)
			}
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldChunkID: chunk.ID,
			}).Warn("Chunk completion arrived after reaper reset, dropping transition")
		}
		return s.finalize(ctx, chunk.JobID)
	}

	category := Classify(outcome.Err.Error())
	decision := NextAction(category, chunk.Attempts, chunk.MaxAttempts)

	var transitionErr error
	if decision.Retryable {
		availableAt := time.Now().Add(decision.Delay)
		transitionErr = s.chunkRepo.Requeue(ctx, chunk.ID, category, outcome.Err.Error(), availableAt)
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldChunkID: chunk.ID,
			"category":          category,
			"attempt":           chunk.Attempts,
			"delay_ms":          decision.Delay.Milliseconds(),
		}).Warn("Chunk attempt failed, requeued with backoff")
	} else {
		transitionErr = s.chunkRepo.MarkFailed(ctx, chunk.ID, category, outcome.Err.Error(), durationMs)
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldChunkID: chunk.ID,
			"category":          category,
			"attempt":           chunk.Attempts,
		}).WithError(outcome.Err).Error("Chunk failed terminally")
	}

	if transitionErr != nil {
		if !errors.Is(transitionErr, repository.ErrStaleTransition) {
			return nil, fmt.Errorf("failed to transition chunk: %w", transitionErr)
		}
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldChunkID: chunk.ID,
		}).Warn("Chunk transition arrived after reaper reset, dropping")
	}

	return s.finalize(ctx, chunk.JobID)
}

// FinalizeJob re-evaluates a job's aggregate state. Safe to call any number
// of times and from concurrent completions: the terminal write is a
// compare-and-set, so at most one caller performs it.
func (s *CompletionService) FinalizeJob(ctx context.Context, jobID string) (*CompletionResult, error) {
	return s.finalize(ctx, jobID)
}

func (s *CompletionService) finalize(ctx context.Context, jobID string) (*CompletionResult, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job for finalization: %w", err)
	}

	counts, err := s.chunkRepo.CountByStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	completed := counts[domain.ChunkStatusCompleted]
	failed := counts[domain.ChunkStatusFailed]
	terminal := completed + failed
	remaining := int64(job.TotalChunks) - terminal

	if terminal < int64(job.TotalChunks) {
		// Not done yet: make sure the aggregate reads processing and keep
		// the cascade alive so a single initial trigger drains the queue.
		if err := s.jobRepo.MarkProcessing(ctx, jobID); err != nil {
			return nil, fmt.Errorf("failed to mark job processing: %w", err)
		}
		s.trigger.TriggerNext(jobID)
		return &CompletionResult{
			ParentStatus:    domain.JobStatusProcessing,
			RemainingChunks: remaining,
		}, nil
	}

	finalStatus := domain.JobStatusCompleted
	if failed > 0 {
		finalStatus = domain.JobStatusPartialFailure
	}

	won, err := s.jobRepo.Finalize(ctx, jobID, finalStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize job: %w", err)
	}

	if won {
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldJobID: jobID,
			"status":          finalStatus,
			"completed":       completed,
			"failed":          failed,
		}).Info("Sync job finalized")
		if s.onFinalize != nil {
			job.Status = finalStatus
			s.onFinalize(job)
		}
	}

	return &CompletionResult{
		ParentStatus:    finalStatus,
		RemainingChunks: 0,
	}, nil
}
