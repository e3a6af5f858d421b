package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/syncq/internal/domain"
	"github.com/timmy/syncq/internal/logger"
	"github.com/timmy/syncq/internal/repository"
)

// DefaultChunkSize is the number of item positions per chunk when the
// configuration does not override it.
const DefaultChunkSize = 100

// IntakeService creates sync jobs and partitions them into chunks.
type IntakeService struct {
	jobRepo     *repository.SyncJobRepository
	trigger     WorkerTrigger
	logger      *logger.Logger
	chunkSize   int
	maxAttempts int
}

// IntakeConfig holds configuration for the intake service.
type IntakeConfig struct {
	ChunkSize   int
	MaxAttempts int
}

// NewIntakeService creates a new intake service.
func NewIntakeService(
	jobRepo *repository.SyncJobRepository,
	trigger WorkerTrigger,
	log *logger.Logger,
	cfg *IntakeConfig,
) *IntakeService {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &IntakeService{
		jobRepo:     jobRepo,
		trigger:     trigger,
		logger:      log,
		chunkSize:   chunkSize,
		maxAttempts: maxAttempts,
	}
}

// log returns the context logger when one is attached, otherwise the
// service's own logger.
func (s *IntakeService) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return s.logger
}

// CreateJobParams holds the inbound parameters of a sync job request.
type CreateJobParams struct {
	ScopeType         string
	ScopeID           string
	JobType           domain.JobType
	ItemCountEstimate int
	WindowStart       *time.Time
	WindowEnd         *time.Time
	Metadata          domain.JSONMap
}

// CreateSyncJob creates a job and all of its chunks atomically and wakes up
// one worker. An estimate of zero produces a job that is already completed
// with no chunks and no worker trigger.
func (s *IntakeService) CreateSyncJob(ctx context.Context, params CreateJobParams) (*domain.SyncJob, error) {
	if params.ScopeType == "" || params.ScopeID == "" {
		return nil, fmt.Errorf("scope_type and scope_id are required")
	}
	if params.ItemCountEstimate < 0 {
		return nil, fmt.Errorf("item count estimate must not be negative, got %d", params.ItemCountEstimate)
	}
	switch params.JobType {
	case domain.JobTypeInitial, domain.JobTypeIncremental, domain.JobTypeManual:
	case "":
		params.JobType = domain.JobTypeManual
	default:
		return nil, fmt.Errorf("unknown job type %q", params.JobType)
	}

	now := time.Now()
	job := &domain.SyncJob{
		ID:                 uuid.New().String(),
		ScopeType:          params.ScopeType,
		ScopeID:            params.ScopeID,
		JobType:            params.JobType,
		Status:             domain.JobStatusPending,
		WindowStart:        params.WindowStart,
		WindowEnd:          params.WindowEnd,
		EstimatedItemCount: params.ItemCountEstimate,
		Metadata:           params.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if params.ItemCountEstimate == 0 {
		job.Status = domain.JobStatusCompleted
		job.CompletedAt = &now
		if err := s.jobRepo.CreateWithChunks(ctx, job, nil); err != nil {
			return nil, err
		}
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldJobID: job.ID,
			logger.FieldScope: params.ScopeID,
		}).Info("Created empty sync job, nothing to fetch")
		return job, nil
	}

	chunks := PartitionChunks(job.ID, params.ItemCountEstimate, s.chunkSize, s.maxAttempts)
	job.TotalChunks = len(chunks)

	if err := s.jobRepo.CreateWithChunks(ctx, job, chunks); err != nil {
		return nil, err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldScope: params.ScopeID,
		"job_type":        params.JobType,
		"estimate":        params.ItemCountEstimate,
		"total_chunks":    job.TotalChunks,
	}).Info("Created sync job")

	s.trigger.TriggerNext(job.ID)
	return job, nil
}

// PartitionChunks splits [0, estimate) into contiguous inclusive ranges of
// at most chunkSize positions each. The union of the returned ranges covers
// the full estimate with no gaps and no overlaps.
func PartitionChunks(jobID string, estimate, chunkSize, maxAttempts int) []domain.SyncChunk {
	if estimate <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	total := (estimate + chunkSize - 1) / chunkSize
	now := time.Now()

	chunks := make([]domain.SyncChunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize - 1
		if end > estimate-1 {
			end = estimate - 1
		}
		chunks = append(chunks, domain.SyncChunk{
			ID:             uuid.New().String(),
			JobID:          jobID,
			ChunkIndex:     i,
			TotalChunks:    total,
			StartOffset:    start,
			EndOffset:      end,
			EstimatedItems: end - start + 1,
			Status:         domain.ChunkStatusPending,
			MaxAttempts:    maxAttempts,
			AvailableAt:    now,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return chunks
}
