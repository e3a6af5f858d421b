package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/syncq/internal/domain"
	"github.com/timmy/syncq/internal/repository"
	"github.com/timmy/syncq/internal/service"
	"gorm.io/gorm"
)

// JobHandler handles sync job endpoints.
type JobHandler struct {
	intake     *service.IntakeService
	reaper     *service.ReaperService
	jobRepo    *repository.SyncJobRepository
	chunkRepo  *repository.SyncChunkRepository
	healthRepo *repository.ChunkHealthRepository
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - intake: intake service for job creation.
//   - reaper: reaper service for manual recovery.
//   - jobRepo: job repository for reads.
//   - chunkRepo: chunk repository for reads.
//   - healthRepo: health repository for attempt stats.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(
	intake *service.IntakeService,
	reaper *service.ReaperService,
	jobRepo *repository.SyncJobRepository,
	chunkRepo *repository.SyncChunkRepository,
	healthRepo *repository.ChunkHealthRepository,
) *JobHandler {
	return &JobHandler{
		intake:     intake,
		reaper:     reaper,
		jobRepo:    jobRepo,
		chunkRepo:  chunkRepo,
		healthRepo: healthRepo,
	}
}

// createJobRequest is the JSON body of POST /api/v1/jobs.
type createJobRequest struct {
	ScopeType         string                 `json:"scope_type" binding:"required"`
	ScopeID           string                 `json:"scope_id" binding:"required"`
	JobType           string                 `json:"job_type"`
	ItemCountEstimate int                    `json:"item_count_estimate"`
	WindowStart       *time.Time             `json:"window_start"`
	WindowEnd         *time.Time             `json:"window_end"`
	Metadata          map[string]interface{} `json:"metadata"`
}

// CreateJob handles POST /api/v1/jobs.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	job, err := h.intake.CreateSyncJob(c.Request.Context(), service.CreateJobParams{
		ScopeType:         req.ScopeType,
		ScopeID:           req.ScopeID,
		JobType:           domain.JobType(req.JobType),
		ItemCountEstimate: req.ItemCountEstimate,
		WindowStart:       req.WindowStart,
		WindowEnd:         req.WindowEnd,
		Metadata:          domain.JSONMap(req.Metadata),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create job: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job": job})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job: " + err.Error()})
		return
	}

	counts, err := h.chunkRepo.CountByStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count chunks: " + err.Error()})
		return
	}

	stats, err := h.healthRepo.StatsSince(c.Request.Context(), id, time.Now().Add(-24*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load health stats: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":          job,
		"chunk_counts": counts,
		"health":       stats,
	})
}

// ListJobChunks handles GET /api/v1/jobs/:id/chunks.
func (h *JobHandler) ListJobChunks(c *gin.Context) {
	id := c.Param("id")

	chunks, err := h.chunkRepo.ListByJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list chunks: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.jobRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// RecoverStuck handles POST /api/v1/jobs/recover.
func (h *JobHandler) RecoverStuck(c *gin.Context) {
	reset, err := h.reaper.RecoverStuck(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Recovery failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": reset})
}
