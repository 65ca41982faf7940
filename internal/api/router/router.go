package router

import (
	"github.com/gin-gonic/gin"

	"github.com/lumilearn/content-pipeline/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	pipelineHandler := handler.NewPipelineHandler(deps)

	// Health verdict for load balancers and orchestration probes
	r.GET("/health", pipelineHandler.GetHealth)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		contentGroup := v1.Group("/content")
		{
			// POST /api/v1/content - Submit a single content item
			contentGroup.POST("", pipelineHandler.SubmitContent)

			// POST /api/v1/content/batch - Submit an ordered batch
			contentGroup.POST("/batch", pipelineHandler.SubmitBatch)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List job records with filtering and pagination
			jobs.GET("", pipelineHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job status (bounded wait via ?wait=)
			jobs.GET("/:job_id", pipelineHandler.GetJob)

			// GET /api/v1/jobs/:job_id/events - Stream state transitions over SSE
			jobs.GET("/:job_id/events", pipelineHandler.StreamJobEvents)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a still-queued job
			jobs.POST("/:job_id/cancel", pipelineHandler.CancelJob)

			// DELETE /api/v1/jobs/:job_id - Delete a terminal job record
			jobs.DELETE("/:job_id", pipelineHandler.DeleteJob)
		}

		// GET /api/v1/metrics - Aggregate pipeline counters
		v1.GET("/metrics", pipelineHandler.GetMetrics)
	}

	return r
}
