// Package events fans job state transitions out to interested subscribers.
// The status endpoint uses it for block-until-ready-or-timeout waits and the
// event-stream endpoint for push feedback, so nothing in the pipeline ever
// busy-polls the result store.
package events

import (
	"sync"
	"time"

	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

// Event is one state transition of one job.
type Event struct {
	JobID  string             `json:"job_id"`
	State  domain.State       `json:"state"`
	Result *validation.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	At     time.Time          `json:"at"`
}

// subscriberBuffer bounds each subscription channel. A subscriber that falls
// this far behind loses events rather than stalling the pipeline.
const subscriberBuffer = 8

// Hub multiplexes per-job subscriptions. Publishing never blocks.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for a job's transitions. The returned cancel function
// must be called exactly once; it closes the channel.
func (h *Hub) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[jobID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[jobID]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(h.subs, jobID)
				}
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its job. Slow subscribers
// are skipped, not waited on.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the subscription count for a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
