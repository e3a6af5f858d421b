package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler answers liveness probes for the scheduler API.
type HealthHandler struct {
	service string
}

// NewHealthHandler creates a health handler reporting under the given
// service name.
func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service}
}

// Health reports liveness. It deliberately touches no collaborators; a
// wedged queue store must not make the process look dead.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.service,
	})
}
