package dto

import (
	"encoding/json"
	"time"

	"github.com/lumilearn/content-pipeline/internal/validation"
)

// SubmitRequest is the single-item intake body.
type SubmitRequest struct {
	ID          string          `json:"id"`
	Content     json.RawMessage `json:"content" binding:"required"`
	ContentType string          `json:"contentType" binding:"required"`
	Metadata    MetadataRequest `json:"metadata"`
}

// MetadataRequest carries submitter context.
type MetadataRequest struct {
	UserID           string `json:"userId"`
	TeamID           string `json:"teamId"`
	Priority         string `json:"priority"`
	TargetDeployment string `json:"targetDeployment"`
}

// AcceptedResponse is the 202 envelope for a scheduled job.
type AcceptedResponse struct {
	JobID               string    `json:"jobId"`
	Status              string    `json:"status"`
	StatusURL           string    `json:"statusUrl"`
	EstimatedCompletion time.Time `json:"estimatedCompletion"`
	Attached            bool      `json:"attached,omitempty"`
}

// CompletedResponse is the immediate 200 body for a cache hit.
type CompletedResponse struct {
	Status string             `json:"status"`
	Result *validation.Result `json:"result"`
}

// BatchRequest is the batch intake body.
type BatchRequest struct {
	Items         []SubmitRequest `json:"items" binding:"required"`
	BatchMetadata MetadataRequest `json:"batchMetadata"`
}

// BatchItemResponse is the outcome of one batch item, at the same index as
// its request.
type BatchItemResponse struct {
	Index               int                `json:"index"`
	Status              string             `json:"status"` // completed | processing | rejected
	JobID               string             `json:"jobId,omitempty"`
	StatusURL           string             `json:"statusUrl,omitempty"`
	EstimatedCompletion *time.Time         `json:"estimatedCompletion,omitempty"`
	Result              *validation.Result `json:"result,omitempty"`
	Error               string             `json:"error,omitempty"`
}

// BatchResponse is the batch envelope: per-item detail plus aggregate counts.
type BatchResponse struct {
	Items   []BatchItemResponse `json:"items"`
	Summary BatchSummary        `json:"summary"`
}

// BatchSummary aggregates one batch.
type BatchSummary struct {
	Total     int `json:"total"`
	Accepted  int `json:"accepted"`
	Completed int `json:"completed"`
	Rejected  int `json:"rejected"`
}

// JobStatusResponse answers a status poll.
type JobStatusResponse struct {
	JobID       string             `json:"jobId"`
	State       string             `json:"state"`
	Result      *validation.Result `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	EnqueuedAt  time.Time          `json:"enqueuedAt"`
	StartedAt   *time.Time         `json:"startedAt,omitempty"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// ListJobsRequest narrows and pages a job listing.
type ListJobsRequest struct {
	UserID      string `form:"user_id"`
	ContentType string `form:"content_type"`
	State       string `form:"state"`
	PageSize    int    `form:"page_size"`
	Cursor      string `form:"cursor"`
}

// ListJobsResponse is a page of job records.
type ListJobsResponse struct {
	Jobs       []JobStatusResponse `json:"jobs"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
