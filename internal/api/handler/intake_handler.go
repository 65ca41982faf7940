package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumilearn/content-pipeline/internal/api/dto"
	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/fingerprint"
	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
)

// SubmitContent handles POST /api/v1/content
// Runs the single-item intake path: either an immediate terminal result
// (cache hit) or a 202 envelope pointing at the scheduled job.
func (h *PipelineHandler) SubmitContent(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.Rejected()
		h.logger.Warn("Invalid intake request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "content and contentType are required",
		})
		return
	}

	sub, err := h.buildSubmission(req, dto.MetadataRequest{})
	if err != nil {
		h.metrics.Rejected()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.scheduler.Submit(c.Request.Context(), sub)
	if err != nil {
		status, msg := classifySubmitError(err)
		h.logger.Warn("Submission not scheduled",
			slog.String("submission_id", sub.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	if outcome.Result != nil {
		c.JSON(http.StatusOK, dto.CompletedResponse{
			Status: "completed",
			Result: outcome.Result,
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.AcceptedResponse{
		JobID:               outcome.JobID,
		Status:              "processing",
		StatusURL:           statusURL(outcome.JobID),
		EstimatedCompletion: h.estimateCompletion(),
		Attached:            outcome.Attached,
	})
}

// SubmitBatch handles POST /api/v1/content/batch
// Fans each item through the same intake path; item failures never abort
// sibling items, and the response preserves input order.
func (h *PipelineHandler) SubmitBatch(c *gin.Context) {
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.Rejected()
		c.JSON(http.StatusBadRequest, gin.H{"error": "items is required"})
		return
	}

	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch contains no items"})
		return
	}
	if len(req.Items) > h.maxBatchItems {
		h.metrics.Rejected()
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("batch of %d items exceeds the maximum of %d", len(req.Items), h.maxBatchItems),
		})
		return
	}

	resp := dto.BatchResponse{
		Items:   make([]dto.BatchItemResponse, len(req.Items)),
		Summary: dto.BatchSummary{Total: len(req.Items)},
	}

	for i, itemReq := range req.Items {
		item := dto.BatchItemResponse{Index: i}

		sub, err := h.buildSubmission(itemReq, req.BatchMetadata)
		if err != nil {
			h.metrics.Rejected()
			item.Status = "rejected"
			item.Error = err.Error()
			resp.Items[i] = item
			resp.Summary.Rejected++
			continue
		}

		outcome, err := h.scheduler.Submit(c.Request.Context(), sub)
		switch {
		case err != nil:
			_, msg := classifySubmitError(err)
			item.Status = "rejected"
			item.Error = msg
			resp.Summary.Rejected++
		case outcome.Result != nil:
			item.Status = "completed"
			item.Result = outcome.Result
			resp.Summary.Completed++
		default:
			eta := h.estimateCompletion()
			item.Status = "processing"
			item.JobID = outcome.JobID
			item.StatusURL = statusURL(outcome.JobID)
			item.EstimatedCompletion = &eta
			resp.Summary.Accepted++
		}
		resp.Items[i] = item
	}

	h.logger.Info("Batch processed",
		slog.Int("total", resp.Summary.Total),
		slog.Int("accepted", resp.Summary.Accepted),
		slog.Int("completed", resp.Summary.Completed),
		slog.Int("rejected", resp.Summary.Rejected),
	)
	c.JSON(http.StatusOK, resp)
}

// buildSubmission validates intake-level fields and assembles the immutable
// submission. Batch-level metadata fills fields the item leaves blank.
func (h *PipelineHandler) buildSubmission(req dto.SubmitRequest, defaults dto.MetadataRequest) (content.Submission, error) {
	if len(req.Content) == 0 {
		return content.Submission{}, errors.New("content is required")
	}

	ct, err := content.ParseType(req.ContentType)
	if err != nil {
		return content.Submission{}, err
	}

	meta := req.Metadata
	if meta.UserID == "" {
		meta.UserID = defaults.UserID
	}
	if meta.TeamID == "" {
		meta.TeamID = defaults.TeamID
	}
	if meta.Priority == "" {
		meta.Priority = defaults.Priority
	}
	if meta.UserID == "" {
		return content.Submission{}, errors.New("metadata.userId is required")
	}

	priority, err := content.ParsePriority(meta.Priority)
	if err != nil {
		return content.Submission{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	return content.Submission{
		ID:      id,
		Type:    ct,
		Payload: req.Content,
		Meta: content.Metadata{
			UserID:   meta.UserID,
			TeamID:   meta.TeamID,
			Priority: priority,
			Target:   meta.TargetDeployment,
		},
	}, nil
}

// classifySubmitError maps scheduler errors to HTTP semantics: malformed
// payloads are deterministic rejections, a full queue is a retry-worthy
// overload signal.
func classifySubmitError(err error) (int, string) {
	switch {
	case errors.Is(err, fingerprint.ErrMalformedPayload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable, "pipeline is at capacity, retry shortly"
	case errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable, "pipeline is shutting down, retry shortly"
	default:
		return http.StatusInternalServerError, "failed to schedule submission"
	}
}

func statusURL(jobID string) string {
	return "/api/v1/jobs/" + jobID
}

// estimateCompletion projects when a newly queued job should finish, from
// the queue depth and the observed mean processing time.
func (h *PipelineHandler) estimateCompletion() time.Time {
	snap := h.metrics.Snapshot()
	perJob := time.Duration(snap.AvgProcessingMs) * time.Millisecond
	if perJob <= 0 {
		perJob = 2 * time.Second
	}
	depth := time.Duration(h.scheduler.QueueDepth() + 1)
	return time.Now().Add(depth * perJob)
}
