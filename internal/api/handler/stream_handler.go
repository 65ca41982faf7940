package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumilearn/content-pipeline/internal/events"
)

// StreamJobEvents handles GET /api/v1/jobs/:job_id/events
// Pushes every state transition of one job as server-sent events and closes
// the stream after the terminal transition. Editors use this for live
// feedback instead of polling.
func (h *PipelineHandler) StreamJobEvents(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	// Subscribe before the snapshot read so no transition falls between them.
	ch, cancel := h.hub.Subscribe(jobID)
	defer cancel()

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		h.respondStoreError(c, jobID, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Current state first, so late subscribers start from a known point.
	c.SSEvent("snapshot", jobStatusDTO(job))
	c.Writer.Flush()

	if job.State.Terminal() {
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("transition", transitionDTO(ev))
			return !ev.State.Terminal()
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// transitionDTO is the SSE body for one state change.
func transitionDTO(ev events.Event) gin.H {
	body := gin.H{
		"jobId": ev.JobID,
		"state": string(ev.State),
		"at":    ev.At,
	}
	if ev.Result != nil {
		body["result"] = ev.Result
	}
	if ev.Error != "" {
		body["error"] = ev.Error
	}
	return body
}
