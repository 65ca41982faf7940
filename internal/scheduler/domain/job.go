package domain

import (
	"time"

	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/fingerprint"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

// State is a validation job's position in the pipeline state machine.
type State string

const (
	StateReceived   State = "received"
	StateQueued     State = "queued"
	StateValidating State = "validating"
	StateOptimizing State = "optimizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateRejected   State = "rejected"
)

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateRejected:
		return true
	}
	return false
}

// Job is a single submission's trip through the pipeline. A job is owned by
// exactly one worker while in flight; after the terminal transition it is a
// read-only record in the result store.
type Job struct {
	JobID       string                  `json:"job_id"`
	Submission  content.Submission      `json:"submission"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	State       State                   `json:"state"`
	Priority    content.Priority        `json:"priority"`
	Attempts    int                     `json:"attempts"`
	Result      *validation.Result      `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`

	EnqueuedAt  time.Time `json:"enqueued_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Deadline    time.Time `json:"deadline"`
}

// Clone returns a snapshot safe to hand to readers while the worker keeps
// mutating the original.
func (j *Job) Clone() *Job {
	cp := *j
	return &cp
}
