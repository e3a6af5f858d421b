package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/syncq/internal/service"
)

// WorkerHandler handles the worker wake-up endpoint.
type WorkerHandler struct {
	worker *service.WorkerService
}

// NewWorkerHandler creates a new worker handler.
// Parameters:
//   - worker: worker service invoked by the wake-up endpoint.
// Returns:
//   - *WorkerHandler: initialized handler.
func NewWorkerHandler(worker *service.WorkerService) *WorkerHandler {
	return &WorkerHandler{worker: worker}
}

// Invoke handles POST /api/v1/workers/invoke. One call claims and processes
// at most one chunk; a call that finds nothing eligible is a no-op. The
// response never implies job completion.
func (h *WorkerHandler) Invoke(c *gin.Context) {
	if err := h.worker.InvokeWorker(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Worker invocation failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
