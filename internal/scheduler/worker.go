package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumilearn/content-pipeline/internal/optimize"
	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

// workerLoop is the processing loop of one worker goroutine. It pops jobs
// until the queue closes; each popped job is owned by this worker until it
// reaches a terminal state.
func (s *Scheduler) workerLoop(ctx context.Context, workerNum int) {
	defer s.wg.Done()

	workerName := fmt.Sprintf("worker-%d", workerNum)
	s.logger.Debug("Worker goroutine started", slog.String("worker_name", workerName))

	for {
		job, ok := s.queue.pop()
		if !ok {
			s.logger.Debug("Worker goroutine stopping - queue closed",
				slog.String("worker_name", workerName),
			)
			return
		}

		s.metrics.SetQueueDepth(s.queue.depth())
		s.processJob(ctx, job, workerName)
	}
}

// processJob sequences one job through its stages and guarantees a terminal
// transition: completed on any validation outcome, failed on infrastructure
// trouble or deadline expiry.
func (s *Scheduler) processJob(ctx context.Context, job *domain.Job, workerName string) {
	s.metrics.JobStarted()
	defer s.metrics.JobFinished()

	s.logger.Info("Worker picked up job",
		slog.String("worker_name", workerName),
		slog.String("job_id", job.JobID),
		slog.String("content_type", string(job.Submission.Type)),
	)

	jobCtx, cancel := context.WithDeadline(ctx, job.Deadline)
	defer cancel()

	job.StartedAt = time.Now()
	queueWait := job.StartedAt.Sub(job.EnqueuedAt)

	if time.Now().After(job.Deadline) {
		s.failJob(ctx, job, fmt.Errorf("%w: spent %s queued", domain.ErrDeadlineExceeded, queueWait.Round(time.Millisecond)))
		return
	}

	// Stage 1: validation. Pure and deterministic; it cannot fail, it can
	// only find the content invalid.
	s.transition(ctx, job, domain.StateValidating)

	validateStart := time.Now()
	result := s.engine.Validate(job.Submission)
	validateElapsed := time.Since(validateStart)

	// Stage 2: optimization, gated strictly on valid content.
	var optimizeElapsed time.Duration
	if result.Valid {
		s.transition(ctx, job, domain.StateOptimizing)

		optimizeStart := time.Now()
		assets, err := s.packageWithRetry(jobCtx, job, result.Sanitized)
		optimizeElapsed = time.Since(optimizeStart)
		if err != nil {
			s.failJob(ctx, job, err)
			return
		}
		result.Assets = assets
	}

	job.CompletedAt = time.Now()
	total := job.CompletedAt.Sub(job.EnqueuedAt)
	result.Timings = validation.Timings{
		QueueMs:    queueWait.Milliseconds(),
		ValidateMs: validateElapsed.Milliseconds(),
		OptimizeMs: optimizeElapsed.Milliseconds(),
		TotalMs:    total.Milliseconds(),
	}
	job.Result = &result

	// Terminal bookkeeping: cache first, then the visible transition. An
	// invalid outcome is cached too, so immediate resubmission of known-bad
	// content is a cache hit.
	if err := s.cache.Put(ctx, job.Fingerprint, job.Submission.Type, &result, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("Failed to cache result",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
	}

	s.forgetInFlight(job)
	s.transition(ctx, job, domain.StateCompleted)
	s.metrics.Completed(result.Valid, total)

	s.logger.Info("Job completed",
		slog.String("worker_name", workerName),
		slog.String("job_id", job.JobID),
		slog.Bool("valid", result.Valid),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("total", total),
	)
}

// packageWithRetry runs the optimization stage, retrying transient failures
// with exponential backoff inside the job's deadline.
func (s *Scheduler) packageWithRetry(ctx context.Context, job *domain.Job, sanitized []byte) (*optimize.Assets, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		job.Attempts = attempt + 1

		assets, err := s.packager.Package(ctx, sanitized)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("Optimization succeeded after retry",
					slog.String("job_id", job.JobID),
					slog.Int("attempt", attempt+1),
				)
			}
			return assets, nil
		}

		// Deadline expiry is terminal; retrying cannot recover the budget.
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeadlineExceeded, err)
		}

		lastErr = domain.NewRetryableError(err)
		if attempt < s.cfg.MaxRetries {
			backoff := time.Duration(float64(s.cfg.RetryBackoff) * float64(uint(1)<<uint(attempt)))
			s.logger.Warn("Optimization stage failed, retrying...",
				slog.String("job_id", job.JobID),
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", s.cfg.MaxRetries),
				slog.Duration("retry_after", backoff),
				slog.Any("error", err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrDeadlineExceeded, ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("optimization failed after %d attempts: %w", s.cfg.MaxRetries+1, lastErr)
}

// failJob marks a job failed: the pipeline could not determine validity.
// Nothing is cached; resubmitting the same content starts fresh.
func (s *Scheduler) failJob(ctx context.Context, job *domain.Job, cause error) {
	job.CompletedAt = time.Now()
	job.Error = cause.Error()

	s.forgetInFlight(job)
	s.transition(ctx, job, domain.StateFailed)
	s.metrics.Failed()

	s.logger.Error("Job failed",
		slog.String("job_id", job.JobID),
		slog.String("content_type", string(job.Submission.Type)),
		slog.Int("attempts", job.Attempts),
		slog.Any("error", cause),
	)
}
