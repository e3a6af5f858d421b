package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/syncq/internal/api/handler"
	"github.com/timmy/syncq/internal/api/middleware"
	"github.com/timmy/syncq/internal/logger"
)

// RouterDeps bundles the handlers the router wires up.
type RouterDeps struct {
	Job    *handler.JobHandler
	Worker *handler.WorkerHandler
	CORS   middleware.CORSConfig
	Logger *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler("syncq")

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Jobs
		v1.POST("/jobs", deps.Job.CreateJob)
		v1.GET("/jobs", deps.Job.ListJobs)
		v1.GET("/jobs/:id", deps.Job.GetJob)
		v1.GET("/jobs/:id/chunks", deps.Job.ListJobChunks)
		v1.POST("/jobs/recover", deps.Job.RecoverStuck)

		// Worker wake-up
		v1.POST("/workers/invoke", deps.Worker.Invoke)
	}

	return r
}
