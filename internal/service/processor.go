package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/syncq/internal/domain"
	"github.com/timmy/syncq/internal/logger"
	"github.com/timmy/syncq/internal/repository"
	"github.com/timmy/syncq/internal/sink"
	"github.com/timmy/syncq/internal/source"
)

// WorkerService is the stateless per-invocation chunk processor. Each
// InvokeWorker call claims at most one chunk, processes it, reports the
// outcome and returns; it never loops. All coordination state lives in the
// queue store, so any number of invocations may run concurrently.
type WorkerService struct {
	jobRepo    *repository.SyncJobRepository
	chunkRepo  *repository.SyncChunkRepository
	healthRepo *repository.ChunkHealthRepository
	source     source.Source
	sink       sink.ItemSink
	completion *CompletionService
	logger     *logger.Logger

	chunkBudget  time.Duration
	stuckTimeout time.Duration
}

// WorkerConfig holds configuration for the worker service.
type WorkerConfig struct {
	ChunkBudget  time.Duration // Soft wall-clock budget per chunk attempt
	StuckTimeout time.Duration // Age at which a processing chunk counts as stuck
}

// NewWorkerService creates a new worker service.
func NewWorkerService(
	jobRepo *repository.SyncJobRepository,
	chunkRepo *repository.SyncChunkRepository,
	healthRepo *repository.ChunkHealthRepository,
	src source.Source,
	itemSink sink.ItemSink,
	completion *CompletionService,
	log *logger.Logger,
	cfg *WorkerConfig,
) *WorkerService {
	chunkBudget := cfg.ChunkBudget
	if chunkBudget <= 0 {
		chunkBudget = 55 * time.Second
	}
	stuckTimeout := cfg.StuckTimeout
	if stuckTimeout <= 0 {
		stuckTimeout = 10 * time.Minute
	}
	return &WorkerService{
		jobRepo:      jobRepo,
		chunkRepo:    chunkRepo,
		healthRepo:   healthRepo,
		source:       src,
		sink:         itemSink,
		completion:   completion,
		logger:       log,
		chunkBudget:  chunkBudget,
		stuckTimeout: stuckTimeout,
	}
}

// log returns the context logger when one is attached, otherwise the
// service's own logger.
func (s *WorkerService) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return s.logger
}

// InvokeWorker claims and processes at most one chunk, then returns. A nil
// error with no claim means nothing was eligible; callers must not read
// that as job completion.
func (s *WorkerService) InvokeWorker(ctx context.Context) error {
	// Defensive sweep so a dead worker's chunk cannot block the queue
	// until the periodic reaper runs. Chunks abandoned on their final
	// attempt are failed terminally here; left pending they would be
	// unclaimable and their parent could never finalize.
	if _, err := s.chunkRepo.RecoverStuck(ctx, s.stuckTimeout); err != nil {
		s.log(ctx).WithError(err).Warn("Stuck chunk sweep failed before claim")
	}
	if _, jobIDs, err := s.chunkRepo.FailExhausted(ctx, s.stuckTimeout); err != nil {
		s.log(ctx).WithError(err).Warn("Exhausted chunk sweep failed before claim")
	} else {
		for _, jobID := range jobIDs {
			if _, err := s.completion.FinalizeJob(ctx, jobID); err != nil {
				s.log(ctx).WithError(err).WithField(logger.FieldJobID, jobID).
					Warn("Failed to finalize job after exhausted chunk sweep")
			}
		}
	}

	workerID := "worker-" + uuid.New().String()[:8]

	chunk, err := s.chunkRepo.ClaimNext(ctx, workerID)
	if err != nil {
		return fmt.Errorf("failed to claim chunk: %w", err)
	}
	if chunk == nil {
		s.log(ctx).Debug("No eligible chunk to claim")
		return nil
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:    chunk.JobID,
		logger.FieldChunkID:  chunk.ID,
		logger.FieldWorkerID: workerID,
	})

	job, err := s.jobRepo.GetByID(ctx, chunk.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", chunk.JobID, err)
	}

	outcome := s.processChunk(ctx, job, chunk)

	s.recordHealth(ctx, chunk, workerID, outcome)

	if _, err := s.completion.CompleteChunk(ctx, chunk, outcome); err != nil {
		return fmt.Errorf("failed to complete chunk: %w", err)
	}
	return nil
}

// processChunk fetches exactly the chunk's range of the filtered collection
// and persists it, under the soft wall-clock budget. Any error is captured
// in the outcome; nothing raw escapes to the completion coordinator.
func (s *WorkerService) processChunk(ctx context.Context, job *domain.SyncJob, chunk *domain.SyncChunk) Outcome {
	start := time.Now()

	budgetCtx, cancel := context.WithTimeout(ctx, s.chunkBudget)
	defer cancel()

	window := source.FilterWindow{
		Start: job.WindowStart,
		End:   job.WindowEnd,
	}

	s.log(ctx).WithFields(logger.Fields{
		"chunk_index":  chunk.ChunkIndex,
		"start_offset": chunk.StartOffset,
		"end_offset":   chunk.EndOffset,
		"attempt":      chunk.Attempts,
	}).Info("Processing chunk")

	items, err := s.source.FetchRange(budgetCtx, window, chunk.StartOffset, chunk.RangeSize())
	if err != nil {
		return Outcome{Err: s.budgetError(budgetCtx, err), Duration: time.Since(start)}
	}

	err = s.sink.Persist(budgetCtx, sink.Batch{
		ScopeType:  job.ScopeType,
		ScopeID:    job.ScopeID,
		JobID:      job.ID,
		ChunkIndex: chunk.ChunkIndex,
		Items:      items,
	})
	if err != nil {
		return Outcome{Err: s.budgetError(budgetCtx, err), Duration: time.Since(start)}
	}

	duration := time.Since(start)
	logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
		logger.FieldCount:      len(items),
	}).Info(ctx, "Chunk processed: index=%d/%d", chunk.ChunkIndex, chunk.TotalChunks)

	return Outcome{ItemCount: len(items), Duration: duration}
}

// budgetError rewrites an error caused by the expired chunk budget so it
// classifies as a timeout instead of whatever the collaborator surfaced.
func (s *WorkerService) budgetError(budgetCtx context.Context, err error) error {
	if budgetCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("chunk processing timed out after %s: %v", s.chunkBudget, err)
	}
	return err
}

// recordHealth appends the attempt record; one per attempt, success or failure.
func (s *WorkerService) recordHealth(ctx context.Context, chunk *domain.SyncChunk, workerID string, outcome Outcome) {
	status := domain.ChunkStatusCompleted
	var category domain.ErrorCategory
	if outcome.Err != nil {
		status = domain.ChunkStatusFailed
		category = Classify(outcome.Err.Error())
	}

	record := &domain.ChunkHealthRecord{
		ID:               uuid.New().String(),
		ChunkID:          chunk.ID,
		JobID:            chunk.JobID,
		WorkerID:         workerID,
		ProcessingTimeMs: outcome.Duration.Milliseconds(),
		ItemCount:        outcome.ItemCount,
		Status:           status,
		ErrorCategory:    category,
		CreatedAt:        time.Now(),
	}
	if err := s.healthRepo.Insert(ctx, record); err != nil {
		// Health records are observability, not coordination; losing one
		// must not fail the attempt.
		s.log(ctx).WithError(err).Warn("Failed to write chunk health record")
	}
}
