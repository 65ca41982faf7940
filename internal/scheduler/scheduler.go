// Package scheduler drives submissions through the pipeline: cache probe on
// intake, priority queueing, a bounded worker pool, and the job state
// machine through to its terminal result.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumilearn/content-pipeline/internal/audit"
	"github.com/lumilearn/content-pipeline/internal/cache"
	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/events"
	"github.com/lumilearn/content-pipeline/internal/fingerprint"
	"github.com/lumilearn/content-pipeline/internal/metrics"
	"github.com/lumilearn/content-pipeline/internal/optimize"
	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
	"github.com/lumilearn/content-pipeline/internal/store"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

// Config holds scheduler tuning.
type Config struct {
	Workers       int           `yaml:"workers"`
	QueueCapacity int           `yaml:"queue_capacity"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	// MaxRetries bounds optimize retries after the first attempt. Zero
	// means unset and takes the default of 2; a negative value disables
	// retries entirely.
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 500
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	return c
}

// Packager turns sanitized content into deployable assets. Satisfied by
// optimize.Packager.
type Packager interface {
	Package(ctx context.Context, sanitized []byte) (*optimize.Assets, error)
}

// Options holds scheduler dependencies.
type Options struct {
	Logger   *slog.Logger
	Engine   *validation.Engine
	Packager Packager
	Cache    cache.Cache
	Store    store.Store
	Hub      *events.Hub
	Audit    audit.Sink
	Metrics  *metrics.Registry
}

// Scheduler owns the queue, the worker pool, and the in-flight index that
// deduplicates concurrent submissions of the same content.
type Scheduler struct {
	logger   *slog.Logger
	engine   *validation.Engine
	packager Packager
	cache    cache.Cache
	store    store.Store
	hub      *events.Hub
	audit    audit.Sink
	metrics  *metrics.Registry
	cfg      Config

	queue *jobQueue

	mu       sync.Mutex
	inflight map[string]string // cache key -> job id

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a scheduler. Call Start before submitting.
func New(cfg Config, opts Options) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		logger:   opts.Logger,
		engine:   opts.Engine,
		packager: opts.Packager,
		cache:    opts.Cache,
		store:    opts.Store,
		hub:      opts.Hub,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		cfg:      cfg,
		queue:    newJobQueue(cfg.QueueCapacity),
		inflight: make(map[string]string),
	}
}

// Start spawns the worker pool. Workers run until Stop is called or ctx is
// canceled; either way every claimed job still reaches a terminal state.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Spawning worker pool",
		slog.Int("concurrency", s.cfg.Workers),
		slog.Duration("job_timeout", s.cfg.JobTimeout),
	)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i)
	}

	go func() {
		<-ctx.Done()
		s.queue.close()
	}()
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler...")
		s.queue.close()
		s.wg.Wait()
		s.logger.Info("Scheduler stopped")
	})
}

// Outcome is what intake returns: either an immediate result served from the
// cache, or the job the submission was scheduled (or attached) to.
type Outcome struct {
	JobID    string
	State    domain.State
	Result   *validation.Result
	Attached bool
}

// Submit runs the intake path for one submission: fingerprint, cache probe,
// concurrent-submission dedup, then enqueue.
func (s *Scheduler) Submit(ctx context.Context, sub content.Submission) (*Outcome, error) {
	s.metrics.Submission()

	fp, err := fingerprint.Compute(sub.Payload)
	if err != nil {
		s.metrics.Rejected()
		return nil, err
	}

	if res, ok, cerr := s.cache.Get(ctx, fp, sub.Type); cerr != nil {
		// Cache trouble is an infrastructure concern; the pipeline degrades
		// to recomputing rather than refusing the submission.
		s.logger.Warn("Cache lookup failed, treating as miss",
			slog.String("fingerprint", fp.String()),
			slog.Any("error", cerr),
		)
		s.metrics.CacheMiss()
	} else if ok {
		s.metrics.CacheHit()
		res.FromCache = true
		return &Outcome{State: domain.StateCompleted, Result: res}, nil
	} else {
		s.metrics.CacheMiss()
	}

	key := cache.Key(fp, sub.Type)

	s.mu.Lock()
	if jobID, running := s.inflight[key]; running {
		s.mu.Unlock()
		s.logger.Debug("Submission attached to in-flight job",
			slog.String("job_id", jobID),
			slog.String("fingerprint", fp.String()),
		)
		return &Outcome{JobID: jobID, State: domain.StateQueued, Attached: true}, nil
	}

	now := time.Now()
	job := &domain.Job{
		JobID:       uuid.New().String(),
		Submission:  sub,
		Fingerprint: fp,
		State:       domain.StateReceived,
		Priority:    sub.Meta.Priority,
		EnqueuedAt:  now,
		Deadline:    now.Add(s.cfg.JobTimeout),
	}
	s.inflight[key] = job.JobID
	s.mu.Unlock()

	// Snapshot the queued state before the job is visible to the worker
	// pool. Once push hands the job over, a worker owns it exclusively, so
	// intake must not touch it afterwards.
	s.transition(ctx, job, domain.StateQueued)

	if err := s.queue.push(job); err != nil {
		s.forgetInFlight(job)
		job.CompletedAt = time.Now()
		job.Error = err.Error()
		s.transition(ctx, job, domain.StateRejected)
		s.metrics.Rejected()
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.metrics.SetQueueDepth(s.queue.depth())

	s.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("content_type", string(sub.Type)),
		slog.String("priority", string(job.Priority)),
		slog.String("fingerprint", fp.String()),
	)
	return &Outcome{JobID: job.JobID, State: domain.StateQueued}, nil
}

// Cancel removes a still-queued job. Jobs already claimed by a worker run to
// their terminal state.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (*domain.Job, error) {
	job, ok := s.queue.remove(jobID)
	if !ok {
		if _, err := s.store.Get(ctx, jobID); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotCancelable
	}

	job.CompletedAt = time.Now()
	job.Error = "canceled by caller"
	s.forgetInFlight(job)
	s.transition(ctx, job, domain.StateRejected)
	s.metrics.Rejected()
	s.metrics.SetQueueDepth(s.queue.depth())

	s.logger.Info("Queued job canceled", slog.String("job_id", jobID))
	return job.Clone(), nil
}

// QueueDepth reports how many jobs are waiting for a worker.
func (s *Scheduler) QueueDepth() int {
	return s.queue.depth()
}

// transition moves a job to the next state and publishes the change to the
// result store, the event hub, and the audit sink. Snapshots are written
// before events fire so wait-then-recheck readers never miss the state.
func (s *Scheduler) transition(ctx context.Context, job *domain.Job, state domain.State) {
	job.State = state

	if err := s.store.Put(ctx, job); err != nil {
		s.logger.Error("Failed to store job snapshot",
			slog.String("job_id", job.JobID),
			slog.String("state", string(state)),
			slog.Any("error", err),
		)
	}

	s.hub.Publish(events.Event{
		JobID:  job.JobID,
		State:  state,
		Result: job.Result,
		Error:  job.Error,
		At:     time.Now(),
	})

	s.audit.Record(ctx, audit.Event{
		JobID:       job.JobID,
		UserID:      job.Submission.Meta.UserID,
		TeamID:      job.Submission.Meta.TeamID,
		ContentType: string(job.Submission.Type),
		Fingerprint: job.Fingerprint.String(),
		State:       string(state),
		Error:       job.Error,
		At:          time.Now(),
	})
}

// forgetInFlight drops the dedup entry once a job stops representing its
// fingerprint.
func (s *Scheduler) forgetInFlight(job *domain.Job) {
	key := cache.Key(job.Fingerprint, job.Submission.Type)
	s.mu.Lock()
	if s.inflight[key] == job.JobID {
		delete(s.inflight, key)
	}
	s.mu.Unlock()
}
