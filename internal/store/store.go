// Package store implements the result store: in-flight and completed job
// records addressable by job id, with bounded retention. The pipeline writes
// a snapshot on every state transition; status queries, listing, and the
// audit trail all read from here.
package store

import (
	"context"
	"time"

	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
)

// Store holds job records. Implementations must be safe for concurrent use;
// Put is an upsert keyed by job id.
type Store interface {
	Put(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter Filter) ([]domain.Job, error)
	Delete(ctx context.Context, jobID string) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	Ping(ctx context.Context) error
}

// Filter narrows a listing. PageSize is the caller's page; implementations
// return up to PageSize+1 records so callers can detect another page.
type Filter struct {
	UserID      string
	ContentType string
	State       string
	PageSize    int
	Cursor      *Cursor
}

// Cursor is a keyset position: records strictly older than
// (EnqueuedAt, JobID) in descending order.
type Cursor struct {
	EnqueuedAt time.Time
	JobID      string
}
