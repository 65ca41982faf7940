package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
)

// Memory is the in-process Store. Records are bounded two ways: terminal
// jobs older than the retention window are purged, and when the map grows
// past capacity the oldest terminal records are dropped first.
type Memory struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.Job
	capacity int
}

// NewMemory creates an in-memory store bounded to capacity records.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Memory{
		jobs:     make(map[string]*domain.Job),
		capacity: capacity,
	}
}

func (m *Memory) Put(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.JobID]; !exists && len(m.jobs) >= m.capacity {
		m.evictOldestTerminalLocked()
	}
	m.jobs[job.JobID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) List(_ context.Context, filter Filter) ([]domain.Job, error) {
	m.mu.RLock()
	matched := make([]domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if filter.UserID != "" && job.Submission.Meta.UserID != filter.UserID {
			continue
		}
		if filter.ContentType != "" && string(job.Submission.Type) != filter.ContentType {
			continue
		}
		if filter.State != "" && string(job.State) != filter.State {
			continue
		}
		matched = append(matched, *job.Clone())
	}
	m.mu.RUnlock()

	// Newest first, job id as tiebreaker, matching the keyset cursor order.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].EnqueuedAt.Equal(matched[j].EnqueuedAt) {
			return matched[i].EnqueuedAt.After(matched[j].EnqueuedAt)
		}
		return matched[i].JobID > matched[j].JobID
	})

	if filter.Cursor != nil {
		cut := 0
		for cut < len(matched) {
			j := matched[cut]
			if j.EnqueuedAt.Before(filter.Cursor.EnqueuedAt) ||
				(j.EnqueuedAt.Equal(filter.Cursor.EnqueuedAt) && j.JobID < filter.Cursor.JobID) {
				break
			}
			cut++
		}
		matched = matched[cut:]
	}

	if filter.PageSize > 0 && len(matched) > filter.PageSize+1 {
		matched = matched[:filter.PageSize+1]
	}
	return matched, nil
}

func (m *Memory) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; !ok {
		return domain.ErrJobNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

// PurgeBefore removes terminal jobs whose terminal transition happened before
// cutoff. In-flight jobs are never purged.
func (m *Memory) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, job := range m.jobs {
		if job.State.Terminal() && !job.CompletedAt.IsZero() && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

// evictOldestTerminalLocked drops the terminal record with the oldest
// completion time. If every record is in flight, nothing is evicted; the
// map briefly exceeds capacity rather than losing a live job.
func (m *Memory) evictOldestTerminalLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, job := range m.jobs {
		if !job.State.Terminal() {
			continue
		}
		if oldestID == "" || job.CompletedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = job.CompletedAt
		}
	}
	if oldestID != "" {
		delete(m.jobs, oldestID)
	}
}
