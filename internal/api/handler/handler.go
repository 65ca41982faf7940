package handler

import (
	"log/slog"
	"time"

	"github.com/lumilearn/content-pipeline/internal/events"
	"github.com/lumilearn/content-pipeline/internal/metrics"
	"github.com/lumilearn/content-pipeline/internal/scheduler"
	"github.com/lumilearn/content-pipeline/internal/store"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger    *slog.Logger
	Scheduler *scheduler.Scheduler
	Store     store.Store
	Hub       *events.Hub
	Metrics   *metrics.Registry
	Health    metrics.Thresholds

	// MaxBatchItems bounds one batch request; MaxStatusWait caps the
	// bounded-wait window a status poll may request.
	MaxBatchItems int
	MaxStatusWait time.Duration
}

// PipelineHandler handles content intake, job status, and reporting routes.
type PipelineHandler struct {
	logger        *slog.Logger
	scheduler     *scheduler.Scheduler
	store         store.Store
	hub           *events.Hub
	metrics       *metrics.Registry
	health        metrics.Thresholds
	maxBatchItems int
	maxStatusWait time.Duration
}

// NewPipelineHandler creates a PipelineHandler instance.
func NewPipelineHandler(deps *Dependencies) *PipelineHandler {
	h := &PipelineHandler{
		logger:        deps.Logger,
		scheduler:     deps.Scheduler,
		store:         deps.Store,
		hub:           deps.Hub,
		metrics:       deps.Metrics,
		health:        deps.Health,
		maxBatchItems: deps.MaxBatchItems,
		maxStatusWait: deps.MaxStatusWait,
	}
	if h.maxBatchItems <= 0 {
		h.maxBatchItems = 100
	}
	if h.maxStatusWait <= 0 {
		h.maxStatusWait = 30 * time.Second
	}
	return h
}
