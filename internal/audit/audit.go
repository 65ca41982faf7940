// Package audit emits structured events for every job state transition and
// pipeline error to the observability sink.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is one audit record. Fields are flat strings so any sink can ship it
// without knowing pipeline types.
type Event struct {
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id,omitempty"`
	TeamID      string    `json:"team_id,omitempty"`
	ContentType string    `json:"content_type"`
	Fingerprint string    `json:"fingerprint"`
	State       string    `json:"state"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives audit events. Record must never fail the pipeline: sinks
// handle their own delivery problems.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// SlogSink writes audit events to the structured log. It is the default sink
// when no message broker is configured.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a logging sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Record(_ context.Context, ev Event) {
	attrs := []any{
		slog.String("job_id", ev.JobID),
		slog.String("content_type", ev.ContentType),
		slog.String("state", ev.State),
		slog.Time("at", ev.At),
	}
	if ev.UserID != "" {
		attrs = append(attrs, slog.String("user_id", ev.UserID))
	}
	if ev.Error != "" {
		attrs = append(attrs, slog.String("error", ev.Error))
		s.logger.Warn("Audit event", attrs...)
		return
	}
	s.logger.Info("Audit event", attrs...)
}

// Recording is a test sink that captures every event.
type Recording struct {
	mu     sync.Mutex
	events []Event
}

// NewRecording creates an empty recording sink.
func NewRecording() *Recording {
	return &Recording{}
}

func (r *Recording) Record(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recording) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// StatesFor returns the recorded state sequence of one job, in order.
func (r *Recording) StatesFor(jobID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []string
	for _, ev := range r.events {
		if ev.JobID == jobID {
			states = append(states, ev.State)
		}
	}
	return states
}
