package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/syncq/internal/config"
	"github.com/timmy/syncq/internal/logger"
	"github.com/timmy/syncq/internal/repository"
	"github.com/timmy/syncq/internal/service"
	"github.com/timmy/syncq/internal/sink"
	"github.com/timmy/syncq/internal/source/rest"
)

// cmd/worker drives the queue from the command line: one-shot invocation
// for cron-style setups, or a polling drain loop for batch runs. Each
// iteration claims at most one chunk with the same semantics as the API's
// wake-up endpoint.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "syncq-worker",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	drain := flag.Bool("drain", false, "Keep invoking workers until no chunk is eligible")
	recoverStuck := flag.Bool("recover", false, "Recover stuck chunks before processing")
	pollInterval := flag.Duration("poll", 2*time.Second, "Delay between drain iterations that found no work")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewSyncJobRepository(db)
	chunkRepo := repository.NewSyncChunkRepository(db)
	healthRepo := repository.NewChunkHealthRepository(db)

	src := rest.NewAdapter(&rest.Config{
		SourceID: cfg.Source.ID,
		BaseURL:  cfg.Source.BaseURL,
		APIToken: cfg.Source.APIToken,
		ItemPath: cfg.Source.ItemPath,
		Timeout:  cfg.Source.Timeout,
	})

	itemSink, err := sink.NewSink(&sink.Config{
		Type: sink.SinkType(cfg.Sink.Type),
		Object: &sink.ObjectConfig{
			Endpoint:  cfg.Sink.Object.Endpoint,
			AccessKey: cfg.Sink.Object.AccessKey,
			SecretKey: cfg.Sink.Object.SecretKey,
			UseSSL:    cfg.Sink.Object.UseSSL,
			Bucket:    cfg.Sink.Object.Bucket,
			Region:    cfg.Sink.Object.Region,
			Prefix:    cfg.Sink.Object.Prefix,
		},
	}, db)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize item sink")
	}

	// The drain loop is its own cascade, so completions do not need to
	// trigger follow-up invocations here.
	completionService := service.NewCompletionService(jobRepo, chunkRepo, service.NoopTrigger{}, appLogger)

	workerService := service.NewWorkerService(
		jobRepo, chunkRepo, healthRepo,
		src, itemSink, completionService, appLogger,
		&service.WorkerConfig{
			ChunkBudget:  cfg.Scheduler.ChunkBudget,
			StuckTimeout: cfg.Scheduler.StuckTimeout,
		},
	)

	reaperService := service.NewReaperService(chunkRepo, completionService, service.NoopTrigger{}, appLogger, &service.ReaperConfig{
		StuckTimeout: cfg.Scheduler.StuckTimeout,
		Interval:     cfg.Scheduler.ReaperInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupts gracefully mid-drain
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		appLogger.Info("Interrupt received, stopping after current chunk")
		cancel()
	}()

	if *recoverStuck {
		reset, err := reaperService.RecoverStuck(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Stuck chunk recovery failed")
		}
		appLogger.WithField(logger.FieldCount, reset).Info("Stuck chunk recovery complete")
	}

	if !*drain {
		if err := workerService.InvokeWorker(ctx); err != nil {
			appLogger.WithError(err).Fatal("Worker invocation failed")
		}
		return
	}

	appLogger.Info("Draining queue")
	for ctx.Err() == nil {
		eligible, err := chunkRepo.HasEligible(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Eligibility check failed")
		}
		if !eligible {
			// Chunks waiting out a backoff delay are pending but not yet
			// claimable; keep polling until everything is terminal.
			outstanding, err := anyOutstanding(ctx, jobRepo, chunkRepo)
			if err != nil {
				appLogger.WithError(err).Fatal("Outstanding check failed")
			}
			if !outstanding {
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(*pollInterval):
			}
			continue
		}
		if err := workerService.InvokeWorker(ctx); err != nil {
			appLogger.WithError(err).Error("Worker invocation failed")
		}
	}
	appLogger.Info("Queue drained")
}

// anyOutstanding reports whether any listed job still has non-terminal chunks.
func anyOutstanding(ctx context.Context, jobRepo *repository.SyncJobRepository, chunkRepo *repository.SyncChunkRepository) (bool, error) {
	jobs, err := jobRepo.List(ctx, 100, 0)
	if err != nil {
		return false, err
	}
	for _, job := range jobs {
		if job.IsTerminal() {
			continue
		}
		outstanding, err := chunkRepo.HasOutstanding(ctx, job.ID)
		if err != nil {
			return false, err
		}
		if outstanding {
			return true, nil
		}
	}
	return false, nil
}
