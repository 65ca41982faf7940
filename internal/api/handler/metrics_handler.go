package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumilearn/content-pipeline/internal/metrics"
)

// GetMetrics handles GET /api/v1/metrics
// Reports aggregate pipeline counters.
func (h *PipelineHandler) GetMetrics(c *gin.Context) {
	snap := h.metrics.Snapshot()
	snap.QueueDepth = int64(h.scheduler.QueueDepth())
	c.JSON(http.StatusOK, snap)
}

// GetHealth handles GET /health
// Derives the binary health verdict from the current counters and the
// configured thresholds.
func (h *PipelineHandler) GetHealth(c *gin.Context) {
	snap := h.metrics.Snapshot()
	snap.QueueDepth = int64(h.scheduler.QueueDepth())

	verdict := metrics.Evaluate(snap, h.health)
	status := http.StatusOK
	if !verdict.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy": verdict.Healthy,
		"reasons": verdict.Reasons,
		"service": "content-pipeline",
	})
}
