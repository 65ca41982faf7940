package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumilearn/content-pipeline/internal/api/dto"
	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
	"github.com/lumilearn/content-pipeline/internal/store"
)

// GetJob handles GET /api/v1/jobs/:job_id
// Answers a status poll. An optional wait query (a duration, e.g. "2s")
// blocks up to that long for a terminal transition; past the window the
// current non-terminal state is returned rather than hanging.
func (h *PipelineHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	wait, err := h.parseWait(c.Query("wait"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		h.respondStoreError(c, jobID, err)
		return
	}

	if job.State.Terminal() || wait <= 0 {
		c.JSON(http.StatusOK, jobStatusDTO(job))
		return
	}

	// Subscribe first, then re-read, so a transition racing the subscription
	// is never missed.
	ch, cancel := h.hub.Subscribe(jobID)
	defer cancel()

	job, err = h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		h.respondStoreError(c, jobID, err)
		return
	}
	if job.State.Terminal() {
		c.JSON(http.StatusOK, jobStatusDTO(job))
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case ev := <-ch:
			if !ev.State.Terminal() {
				continue
			}
			job, err = h.store.Get(c.Request.Context(), jobID)
			if err != nil {
				h.respondStoreError(c, jobID, err)
				return
			}
			c.JSON(http.StatusOK, jobStatusDTO(job))
			return
		case <-timer.C:
			// Bounded wait elapsed: report the in-flight state.
			c.JSON(http.StatusOK, jobStatusDTO(job))
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// ListJobs handles GET /api/v1/jobs
// Lists job records with filtering and keyset pagination.
func (h *PipelineHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	jobs, err := h.store.List(c.Request.Context(), store.Filter{
		UserID:      req.UserID,
		ContentType: req.ContentType,
		State:       req.State,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobStatusResponse, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = jobStatusDTO(&jobs[i])
	}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&store.Cursor{
			EnqueuedAt: last.EnqueuedAt,
			JobID:      last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Removes a still-queued job. In-flight jobs run to a terminal state and
// cannot be canceled.
func (h *PipelineHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	job, err := h.scheduler.Cancel(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, domain.ErrNotCancelable):
			c.JSON(http.StatusConflict, gin.H{"error": "job is no longer queued and cannot be canceled"})
		default:
			h.logger.Error("Failed to cancel job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		}
		return
	}

	c.JSON(http.StatusOK, jobStatusDTO(job))
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
// Removes a terminal job's record from the result store.
func (h *PipelineHandler) DeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	ctx := c.Request.Context()
	job, err := h.store.Get(ctx, jobID)
	if err != nil {
		h.respondStoreError(c, jobID, err)
		return
	}
	if !job.State.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "only terminal jobs can be deleted"})
		return
	}

	if err := h.store.Delete(ctx, jobID); err != nil {
		h.respondStoreError(c, jobID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseWait interprets the wait query parameter and caps it at the
// configured maximum.
func (h *PipelineHandler) parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		return 0, errors.New("wait must be a non-negative duration, e.g. 2s")
	}
	if wait > h.maxStatusWait {
		wait = h.maxStatusWait
	}
	return wait, nil
}

func (h *PipelineHandler) respondStoreError(c *gin.Context, jobID string, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	h.logger.Error("Result store error",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read job"})
}

func jobStatusDTO(job *domain.Job) dto.JobStatusResponse {
	resp := dto.JobStatusResponse{
		JobID:      job.JobID,
		State:      string(job.State),
		Result:     job.Result,
		Error:      job.Error,
		EnqueuedAt: job.EnqueuedAt,
	}
	if !job.StartedAt.IsZero() {
		started := job.StartedAt
		resp.StartedAt = &started
	}
	if !job.CompletedAt.IsZero() {
		completed := job.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}
