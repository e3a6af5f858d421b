package service

import (
	"context"
	"time"

	"github.com/timmy/syncq/internal/logger"
	"github.com/timmy/syncq/internal/repository"
)

// ReaperService recovers chunks whose worker died without reporting an
// outcome, and keeps the cascade alive for chunks waiting out a backoff
// delay. It is the backstop for workers killed before they could self-abort.
type ReaperService struct {
	chunkRepo  *repository.SyncChunkRepository
	completion *CompletionService
	trigger    WorkerTrigger
	logger     *logger.Logger

	stuckTimeout time.Duration
	interval     time.Duration
}

// ReaperConfig holds configuration for the reaper service.
type ReaperConfig struct {
	StuckTimeout time.Duration // Age at which a processing chunk counts as stuck
	Interval     time.Duration // Periodic sweep interval
}

// NewReaperService creates a new reaper service.
func NewReaperService(
	chunkRepo *repository.SyncChunkRepository,
	completion *CompletionService,
	trigger WorkerTrigger,
	log *logger.Logger,
	cfg *ReaperConfig,
) *ReaperService {
	stuckTimeout := cfg.StuckTimeout
	if stuckTimeout <= 0 {
		stuckTimeout = 10 * time.Minute
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReaperService{
		chunkRepo:    chunkRepo,
		completion:   completion,
		trigger:      trigger,
		logger:       log,
		stuckTimeout: stuckTimeout,
		interval:     interval,
	}
}

// RecoverStuck handles abandoned processing chunks and returns how many
// were touched. Chunks with attempts remaining go back to pending; chunks
// abandoned on their final attempt are failed terminally and their parent
// jobs re-evaluated, so a worker killed on a chunk's last attempt cannot
// strand the job short of finalization. Recovered chunks keep their attempt
// count; the attempt was consumed at claim time.
func (s *ReaperService) RecoverStuck(ctx context.Context) (int64, error) {
	reset, err := s.chunkRepo.RecoverStuck(ctx, s.stuckTimeout)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		s.logger.WithFields(logger.Fields{
			logger.FieldCount: reset,
			"stuck_timeout":   s.stuckTimeout.String(),
		}).Warn("Recovered stuck chunks")
	}

	failed, jobIDs, err := s.chunkRepo.FailExhausted(ctx, s.stuckTimeout)
	if err != nil {
		return reset, err
	}
	if failed > 0 {
		s.logger.WithFields(logger.Fields{
			logger.FieldCount: failed,
			"stuck_timeout":   s.stuckTimeout.String(),
		}).Warn("Failed stuck chunks with no attempts remaining")
	}
	for _, jobID := range jobIDs {
		if _, err := s.completion.FinalizeJob(ctx, jobID); err != nil {
			s.logger.WithError(err).WithFields(logger.Fields{
				logger.FieldJobID: jobID,
			}).Error("Failed to finalize job after exhausted chunk recovery")
		}
	}

	return reset + failed, nil
}

// Run sweeps periodically until the context is canceled: recover stuck
// chunks, then wake a worker if anything is claimable. The wake-up covers
// both recovered chunks and requeued chunks whose backoff delay has elapsed
// since the last cascade died out.
func (s *ReaperService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithFields(logger.Fields{
		"interval":      s.interval.String(),
		"stuck_timeout": s.stuckTimeout.String(),
	}).Info("Reaper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reaper stopped")
			return
		case <-ticker.C:
			if _, err := s.RecoverStuck(ctx); err != nil {
				s.logger.WithError(err).Error("Stuck chunk recovery failed")
				continue
			}
			eligible, err := s.chunkRepo.HasEligible(ctx)
			if err != nil {
				s.logger.WithError(err).Error("Eligibility check failed")
				continue
			}
			if eligible {
				s.trigger.TriggerNext("")
			}
		}
	}
}
