package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumilearn/content-pipeline/internal/audit"
	"github.com/lumilearn/content-pipeline/internal/cache"
	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/events"
	"github.com/lumilearn/content-pipeline/internal/metrics"
	"github.com/lumilearn/content-pipeline/internal/optimize"
	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
	"github.com/lumilearn/content-pipeline/internal/store"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

type testEnv struct {
	sched *Scheduler
	cache *cache.Memory
	store *store.Memory
	hub   *events.Hub
	sink  *audit.Recording
	reg   *metrics.Registry
}

func newEnv(t *testing.T, cfg Config, packager Packager) *testEnv {
	t.Helper()

	env := &testEnv{
		cache: cache.NewMemory(64, 0),
		store: store.NewMemory(256),
		hub:   events.NewHub(),
		sink:  audit.NewRecording(),
		reg:   metrics.NewRegistry(),
	}
	if packager == nil {
		packager = optimize.NewPackager(0)
	}
	env.sched = New(cfg, Options{
		Logger:   slog.New(slog.DiscardHandler),
		Engine:   validation.NewEngine(validation.Budgets{}, validation.NewPolicy(validation.ModeStrict, nil)),
		Packager: packager,
		Cache:    env.cache,
		Store:    env.store,
		Hub:      env.hub,
		Audit:    env.sink,
		Metrics:  env.reg,
	})
	t.Cleanup(env.sched.Stop)
	return env
}

func quizSubmission(title string, priority content.Priority) content.Submission {
	payload := fmt.Sprintf(`{
		"title": %q,
		"questions": [{"id": "q1", "prompt": "What is 1/2 + 1/4?", "options": [
			{"id": "a", "text": "3/4", "correct": true},
			{"id": "b", "text": "2/6", "correct": false}
		]}]
	}`, title)
	return content.Submission{
		ID:      "sub-" + title,
		Type:    content.TypeQuiz,
		Payload: json.RawMessage(payload),
		Meta:    content.Metadata{UserID: "user-1", Priority: priority},
	}
}

func waitTerminal(t *testing.T, env *testEnv, jobID string) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		got, err := env.store.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = got
		return job.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached a terminal state", jobID)
	return job
}

func TestConfig_WithDefaults(t *testing.T) {
	def := Config{}.withDefaults()
	assert.Equal(t, 10, def.Workers)
	assert.Equal(t, 500, def.QueueCapacity)
	assert.Equal(t, 30*time.Second, def.JobTimeout)
	assert.Equal(t, 2, def.MaxRetries)

	t.Run("negative max retries disables retries", func(t *testing.T) {
		assert.Equal(t, 0, Config{MaxRetries: -1}.withDefaults().MaxRetries)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		cfg := Config{Workers: 3, MaxRetries: 5}.withDefaults()
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, 5, cfg.MaxRetries)
	})
}

func TestScheduler_ValidSubmissionCompletes(t *testing.T) {
	env := newEnv(t, Config{Workers: 2}, nil)
	ctx := context.Background()
	env.sched.Start(ctx)

	out, err := env.sched.Submit(ctx, quizSubmission("fractions", content.PriorityNormal))
	require.NoError(t, err)
	require.NotEmpty(t, out.JobID)
	assert.Equal(t, domain.StateQueued, out.State)

	job := waitTerminal(t, env, out.JobID)
	assert.Equal(t, domain.StateCompleted, job.State)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Valid)
	require.NotNil(t, job.Result.Assets, "valid content must be packaged")
	assert.Equal(t, "gzip", job.Result.Assets.Encoding)
	assert.GreaterOrEqual(t, job.Result.Timings.TotalMs, int64(0))

	n, err := env.cache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "terminal result must be cached")

	assert.Equal(t,
		[]string{"queued", "validating", "optimizing", "completed"},
		env.sink.StatesFor(out.JobID))
}

func TestScheduler_ResubmitServedFromCache(t *testing.T) {
	env := newEnv(t, Config{Workers: 2}, nil)
	ctx := context.Background()
	env.sched.Start(ctx)

	first, err := env.sched.Submit(ctx, quizSubmission("fractions", content.PriorityNormal))
	require.NoError(t, err)
	waitTerminal(t, env, first.JobID)

	second, err := env.sched.Submit(ctx, quizSubmission("fractions", content.PriorityNormal))
	require.NoError(t, err)
	assert.Empty(t, second.JobID, "a cache hit creates no job")
	assert.Equal(t, domain.StateCompleted, second.State)
	require.NotNil(t, second.Result)
	assert.True(t, second.Result.FromCache)
	assert.True(t, second.Result.Valid)

	snap := env.reg.Snapshot()
	assert.EqualValues(t, 1, snap.CacheHits)
}

func TestScheduler_InvalidContentIsCompletedNotFailed(t *testing.T) {
	env := newEnv(t, Config{Workers: 1}, nil)
	ctx := context.Background()
	env.sched.Start(ctx)

	sub := content.Submission{
		ID:      "sub-bad",
		Type:    content.TypeQuiz,
		Payload: json.RawMessage(`{"title": "Broken", "questions": [{"id": "q1", "prompt": "Pick", "options": []}]}`),
		Meta:    content.Metadata{UserID: "user-1", Priority: content.PriorityNormal},
	}
	out, err := env.sched.Submit(ctx, sub)
	require.NoError(t, err)

	job := waitTerminal(t, env, out.JobID)
	assert.Equal(t, domain.StateCompleted, job.State, "invalid content is a correct terminal outcome")
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Valid)
	assert.Nil(t, job.Result.Assets, "optimization is gated on valid content")
	assert.Equal(t, validation.KindMissing, job.Result.Errors[0].Kind)

	// Known-bad content is cached too.
	n, err := env.cache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t,
		[]string{"queued", "validating", "completed"},
		env.sink.StatesFor(out.JobID), "no optimizing transition for invalid content")
}

func TestScheduler_ConcurrentSubmissionAttaches(t *testing.T) {
	// Workers are never started: the first job stays queued, so the second
	// identical submission must attach instead of creating a new job.
	env := newEnv(t, Config{Workers: 1}, nil)
	ctx := context.Background()

	first, err := env.sched.Submit(ctx, quizSubmission("fractions", content.PriorityNormal))
	require.NoError(t, err)
	require.False(t, first.Attached)

	second, err := env.sched.Submit(ctx, quizSubmission("fractions", content.PriorityNormal))
	require.NoError(t, err)
	assert.True(t, second.Attached)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, 1, env.sched.QueueDepth())
}

func TestScheduler_PriorityDrainOrder(t *testing.T) {
	env := newEnv(t, Config{Workers: 1}, nil)
	ctx := context.Background()

	// Enqueue before starting the single worker so the drain order is exact.
	ids := make(map[string]string)
	for _, tc := range []struct {
		title    string
		priority content.Priority
	}{
		{"n1", content.PriorityNormal},
		{"u1", content.PriorityUrgent},
		{"n2", content.PriorityNormal},
		{"h1", content.PriorityHigh},
	} {
		out, err := env.sched.Submit(ctx, quizSubmission(tc.title, tc.priority))
		require.NoError(t, err)
		ids[out.JobID] = tc.title
	}

	env.sched.Start(ctx)
	for jobID := range ids {
		waitTerminal(t, env, jobID)
	}

	var completed []string
	for _, ev := range env.sink.Events() {
		if ev.State == string(domain.StateCompleted) {
			completed = append(completed, ids[ev.JobID])
		}
	}
	assert.Equal(t, []string{"u1", "h1", "n1", "n2"}, completed)
}

func TestScheduler_DeadlineExpiryFails(t *testing.T) {
	env := newEnv(t, Config{Workers: 1, JobTimeout: 20 * time.Millisecond}, nil)
	ctx := context.Background()

	out, err := env.sched.Submit(ctx, quizSubmission("slow", content.PriorityNormal))
	require.NoError(t, err)

	// Let the deadline lapse while the job sits in the queue.
	time.Sleep(50 * time.Millisecond)
	env.sched.Start(ctx)

	job := waitTerminal(t, env, out.JobID)
	assert.Equal(t, domain.StateFailed, job.State)
	assert.Contains(t, job.Error, "deadline")
	assert.Nil(t, job.Result)

	n, err := env.cache.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed jobs are never cached")
}

// flakyPackager fails a fixed number of times before succeeding.
type flakyPackager struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyPackager) Package(ctx context.Context, sanitized []byte) (*optimize.Assets, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()

	if calls <= f.failures {
		return nil, errors.New("transient packaging error")
	}
	return optimize.NewPackager(0).Package(ctx, sanitized)
}

func TestScheduler_TransientOptimizeErrorIsRetried(t *testing.T) {
	packager := &flakyPackager{failures: 2}
	env := newEnv(t, Config{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond}, packager)
	ctx := context.Background()
	env.sched.Start(ctx)

	out, err := env.sched.Submit(ctx, quizSubmission("retry", content.PriorityNormal))
	require.NoError(t, err)

	job := waitTerminal(t, env, out.JobID)
	assert.Equal(t, domain.StateCompleted, job.State)
	assert.Equal(t, 3, job.Attempts)
	require.NotNil(t, job.Result)
	assert.NotNil(t, job.Result.Assets)
}

func TestScheduler_RetryExhaustionFails(t *testing.T) {
	packager := &flakyPackager{failures: 100}
	env := newEnv(t, Config{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond}, packager)
	ctx := context.Background()
	env.sched.Start(ctx)

	out, err := env.sched.Submit(ctx, quizSubmission("doomed", content.PriorityNormal))
	require.NoError(t, err)

	job := waitTerminal(t, env, out.JobID)
	assert.Equal(t, domain.StateFailed, job.State)
	assert.Equal(t, 3, job.Attempts)
	assert.Contains(t, job.Error, "after 3 attempts")
	assert.EqualValues(t, 1, env.reg.Snapshot().Failed)
}

func TestScheduler_QueueFullRejects(t *testing.T) {
	env := newEnv(t, Config{Workers: 1, QueueCapacity: 1}, nil)
	ctx := context.Background()

	_, err := env.sched.Submit(ctx, quizSubmission("first", content.PriorityNormal))
	require.NoError(t, err)

	_, err = env.sched.Submit(ctx, quizSubmission("second", content.PriorityNormal))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.EqualValues(t, 1, env.reg.Snapshot().Rejected)

	// The refused submission still leaves a terminal record behind.
	rejected, err := env.store.List(ctx, store.Filter{State: "rejected", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Error, "queue is full")
}

func TestScheduler_QueuedSnapshotPrecedesDispatch(t *testing.T) {
	env := newEnv(t, Config{Workers: 1}, nil)
	ctx := context.Background()

	// Pop straight off the queue instead of starting the pool: the moment a
	// job can be claimed, its queued snapshot must already be in the store.
	for i := 0; i < 50; i++ {
		done := make(chan struct{})
		go func() {
			defer close(done)
			job, ok := env.sched.queue.pop()
			if !ok {
				return
			}
			got, err := env.store.Get(context.Background(), job.JobID)
			if assert.NoError(t, err, "claimed job %s has no stored snapshot", job.JobID) {
				assert.Equal(t, domain.StateQueued, got.State)
			}
		}()

		_, err := env.sched.Submit(ctx, quizSubmission(fmt.Sprintf("dispatch-%d", i), content.PriorityNormal))
		require.NoError(t, err)
		<-done
	}
}

func TestScheduler_CancelQueuedJob(t *testing.T) {
	env := newEnv(t, Config{Workers: 1}, nil)
	ctx := context.Background()

	out, err := env.sched.Submit(ctx, quizSubmission("doomed", content.PriorityNormal))
	require.NoError(t, err)

	job, err := env.sched.Cancel(ctx, out.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejected, job.State)
	assert.Equal(t, "canceled by caller", job.Error)
	assert.Zero(t, env.sched.QueueDepth())

	stored, err := env.store.Get(ctx, out.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejected, stored.State)

	// Canceling makes the fingerprint submittable again.
	again, err := env.sched.Submit(ctx, quizSubmission("doomed", content.PriorityNormal))
	require.NoError(t, err)
	assert.False(t, again.Attached)
	assert.NotEqual(t, out.JobID, again.JobID)
}

func TestScheduler_CancelTerminalOrUnknown(t *testing.T) {
	env := newEnv(t, Config{Workers: 1}, nil)
	ctx := context.Background()
	env.sched.Start(ctx)

	out, err := env.sched.Submit(ctx, quizSubmission("done", content.PriorityNormal))
	require.NoError(t, err)
	waitTerminal(t, env, out.JobID)

	_, err = env.sched.Cancel(ctx, out.JobID)
	assert.ErrorIs(t, err, domain.ErrNotCancelable)

	_, err = env.sched.Cancel(ctx, "no-such-job")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestScheduler_MalformedPayloadRejectedAtIntake(t *testing.T) {
	env := newEnv(t, Config{Workers: 1}, nil)
	ctx := context.Background()

	sub := content.Submission{
		ID:      "sub-garbage",
		Type:    content.TypeQuiz,
		Payload: json.RawMessage(`{"title": `),
		Meta:    content.Metadata{UserID: "user-1"},
	}
	_, err := env.sched.Submit(ctx, sub)
	require.Error(t, err)
	assert.Zero(t, env.sched.QueueDepth(), "malformed input never becomes a job")
	assert.EqualValues(t, 1, env.reg.Snapshot().Rejected)
}

func TestScheduler_EveryJobReachesTerminalState(t *testing.T) {
	env := newEnv(t, Config{Workers: 4}, nil)
	ctx := context.Background()
	env.sched.Start(ctx)

	var jobIDs []string
	for i := 0; i < 20; i++ {
		out, err := env.sched.Submit(ctx, quizSubmission(fmt.Sprintf("bulk-%d", i), content.PriorityNormal))
		require.NoError(t, err)
		if out.JobID != "" {
			jobIDs = append(jobIDs, out.JobID)
		}
	}

	for _, id := range jobIDs {
		job := waitTerminal(t, env, id)
		assert.True(t, job.State.Terminal())
	}
}
