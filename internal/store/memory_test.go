package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
)

func newJob(id string, state domain.State, enqueuedAt time.Time) *domain.Job {
	job := &domain.Job{
		JobID: id,
		Submission: content.Submission{
			ID:   id,
			Type: content.TypeQuiz,
			Meta: content.Metadata{UserID: "user-1", Priority: content.PriorityNormal},
		},
		State:      state,
		Priority:   content.PriorityNormal,
		EnqueuedAt: enqueuedAt,
		Deadline:   enqueuedAt.Add(30 * time.Second),
	}
	if state.Terminal() {
		job.CompletedAt = enqueuedAt.Add(time.Second)
	}
	return job
}

func TestMemory_PutGetDelete(t *testing.T) {
	m := NewMemory(16)
	ctx := context.Background()

	job := newJob("job-1", domain.StateQueued, time.Now())
	require.NoError(t, m.Put(ctx, job))

	got, err := m.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, got.State)

	// Mutating the returned snapshot must not leak into the store.
	got.State = domain.StateFailed
	again, err := m.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, again.State)

	require.NoError(t, m.Delete(ctx, "job-1"))
	_, err = m.Get(ctx, "job-1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	assert.ErrorIs(t, m.Delete(ctx, "job-1"), domain.ErrJobNotFound)
}

func TestMemory_ListFilterAndOrder(t *testing.T) {
	m := NewMemory(16)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		job := newJob(fmt.Sprintf("job-%d", i), domain.StateCompleted, base.Add(time.Duration(i)*time.Minute))
		if i == 3 {
			job.Submission.Meta.UserID = "user-2"
		}
		require.NoError(t, m.Put(ctx, job))
	}

	jobs, err := m.List(ctx, Filter{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, jobs, 5)
	assert.Equal(t, "job-4", jobs[0].JobID, "newest first")
	assert.Equal(t, "job-0", jobs[4].JobID)

	jobs, err = m.List(ctx, Filter{UserID: "user-2", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-3", jobs[0].JobID)

	jobs, err = m.List(ctx, Filter{State: string(domain.StateFailed), PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestMemory_ListCursor(t *testing.T) {
	m := NewMemory(16)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.Put(ctx, newJob(fmt.Sprintf("job-%d", i), domain.StateCompleted, base.Add(time.Duration(i)*time.Minute))))
	}

	first, err := m.List(ctx, Filter{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 3, "page size plus one signals another page")

	cursor := &Cursor{EnqueuedAt: first[1].EnqueuedAt, JobID: first[1].JobID}
	second, err := m.List(ctx, Filter{PageSize: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "job-1", second[0].JobID)
	assert.Equal(t, "job-0", second[1].JobID)
}

func TestMemory_PurgeBefore(t *testing.T) {
	m := NewMemory(16)
	ctx := context.Background()
	now := time.Now()

	old := newJob("old", domain.StateCompleted, now.Add(-2*time.Hour))
	fresh := newJob("fresh", domain.StateCompleted, now.Add(-time.Minute))
	inflight := newJob("inflight", domain.StateValidating, now.Add(-2*time.Hour))
	require.NoError(t, m.Put(ctx, old))
	require.NoError(t, m.Put(ctx, fresh))
	require.NoError(t, m.Put(ctx, inflight))

	purged, err := m.PurgeBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = m.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = m.Get(ctx, "fresh")
	assert.NoError(t, err)

	_, err = m.Get(ctx, "inflight")
	assert.NoError(t, err, "in-flight jobs are never purged")
}

func TestMemory_CapacityEvictsTerminalOnly(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, m.Put(ctx, newJob("t-old", domain.StateCompleted, base)))
	require.NoError(t, m.Put(ctx, newJob("t-new", domain.StateCompleted, base.Add(time.Minute))))
	require.NoError(t, m.Put(ctx, newJob("live", domain.StateValidating, base.Add(2*time.Minute))))

	// Over capacity: the oldest terminal record gives way.
	require.NoError(t, m.Put(ctx, newJob("incoming", domain.StateQueued, base.Add(3*time.Minute))))

	_, err := m.Get(ctx, "t-old")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	for _, id := range []string{"t-new", "live", "incoming"} {
		_, err := m.Get(ctx, id)
		assert.NoError(t, err, "job %s should survive eviction", id)
	}
}
