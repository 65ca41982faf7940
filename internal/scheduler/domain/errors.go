package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id is unknown or already purged
	// from the result store.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueFull is returned when the scheduler queue is at capacity and
	// cannot accept another submission.
	ErrQueueFull = errors.New("scheduler queue is full")

	// ErrNotCancelable is returned when cancellation is requested for a job
	// that already left the queue. In-flight jobs always run to a terminal
	// state so the cache and store never hold a partial result.
	ErrNotCancelable = errors.New("job is no longer queued and cannot be canceled")

	// ErrNotTerminal is returned when an operation requires a finished job,
	// such as deleting its record.
	ErrNotTerminal = errors.New("job has not reached a terminal state")

	// ErrShuttingDown is returned when the scheduler no longer accepts work.
	ErrShuttingDown = errors.New("scheduler is shutting down")

	// ErrDeadlineExceeded marks a job that ran past its pipeline-wide budget.
	ErrDeadlineExceeded = errors.New("job deadline exceeded")
)

// RetryableError wraps transient infrastructure failures that warrant another
// attempt. Deterministic rejections must never be wrapped.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as retryable.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped as a RetryableError.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}
