package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/syncq/internal/api"
	"github.com/timmy/syncq/internal/api/handler"
	"github.com/timmy/syncq/internal/api/middleware"
	"github.com/timmy/syncq/internal/config"
	"github.com/timmy/syncq/internal/logger"
	"github.com/timmy/syncq/internal/repository"
	"github.com/timmy/syncq/internal/service"
	"github.com/timmy/syncq/internal/sink"
	"github.com/timmy/syncq/internal/source/rest"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "syncq-api",
	})
	logger.SetDefaultLogger(appLogger)

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
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

	// Initialize the external source
	src := rest.NewAdapter(&rest.Config{
		SourceID: cfg.Source.ID,
		BaseURL:  cfg.Source.BaseURL,
		APIToken: cfg.Source.APIToken,
		ItemPath: cfg.Source.ItemPath,
		Timeout:  cfg.Source.Timeout,
	})

	// Initialize the item sink
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

	if objectSink, ok := itemSink.(*sink.ObjectSink); ok {
		if err := objectSink.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure sink bucket")
		}
	}

	// Initialize scheduler services; the trigger is bound to the worker
	// after construction because completion holds the trigger and the
	// worker holds completion.
	trigger := service.NewAsyncTrigger(appLogger)

	intakeService := service.NewIntakeService(jobRepo, trigger, appLogger, &service.IntakeConfig{
		ChunkSize:   cfg.Scheduler.ChunkSize,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
	})

	completionService := service.NewCompletionService(jobRepo, chunkRepo, trigger, appLogger)

	workerService := service.NewWorkerService(
		jobRepo, chunkRepo, healthRepo,
		src, itemSink, completionService, appLogger,
		&service.WorkerConfig{
			ChunkBudget:  cfg.Scheduler.ChunkBudget,
			StuckTimeout: cfg.Scheduler.StuckTimeout,
		},
	)
	trigger.Bind(workerService)

	reaperService := service.NewReaperService(chunkRepo, completionService, trigger, appLogger, &service.ReaperConfig{
		StuckTimeout: cfg.Scheduler.StuckTimeout,
		Interval:     cfg.Scheduler.ReaperInterval,
	})

	// Run the periodic reaper until shutdown
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go reaperService.Run(reaperCtx)

	// Setup router
	jobHandler := handler.NewJobHandler(intakeService, reaperService, jobRepo, chunkRepo, healthRepo)
	workerHandler := handler.NewWorkerHandler(workerService)

	router := api.SetupRouter(api.RouterDeps{
		Job:    jobHandler,
		Worker: workerHandler,
		Logger: appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stopReaper()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
