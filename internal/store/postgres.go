package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/fingerprint"
	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
	"github.com/lumilearn/content-pipeline/internal/validation"
	"github.com/lumilearn/content-pipeline/shared/postgresql"
)

// Postgres is the durable Store, used when pipeline replicas must share job
// records or survive restarts.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS validation_jobs (
	job_id        TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	team_id       TEXT NOT NULL DEFAULT '',
	content_type  TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	priority      TEXT NOT NULL,
	state         TEXT NOT NULL,
	attempts      INT NOT NULL DEFAULT 0,
	payload       JSONB,
	target        TEXT NOT NULL DEFAULT '',
	result        JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	enqueued_at   TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	deadline      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_validation_jobs_listing
	ON validation_jobs (enqueued_at DESC, job_id DESC);
CREATE INDEX IF NOT EXISTS idx_validation_jobs_completed
	ON validation_jobs (completed_at) WHERE completed_at IS NOT NULL;
`

// NewPostgres creates the durable store and bootstraps its schema.
func NewPostgres(ctx context.Context, pg *postgresql.Client, logger *slog.Logger) (*Postgres, error) {
	s := &Postgres{db: pg.GetDB(), logger: logger}
	if _, err := s.db.ExecContext(ctx, jobsSchema); err != nil {
		return nil, fmt.Errorf("bootstrap jobs schema: %w", err)
	}
	return s, nil
}

// jobRow is the database shape of a job record.
type jobRow struct {
	JobID        string         `db:"job_id"`
	UserID       string         `db:"user_id"`
	TeamID       string         `db:"team_id"`
	ContentType  string         `db:"content_type"`
	Fingerprint  string         `db:"fingerprint"`
	Priority     string         `db:"priority"`
	State        string         `db:"state"`
	Attempts     int            `db:"attempts"`
	Payload      []byte         `db:"payload"`
	Target       string         `db:"target"`
	Result       []byte         `db:"result"`
	ErrorMessage string         `db:"error_message"`
	EnqueuedAt   time.Time      `db:"enqueued_at"`
	StartedAt    sql.NullTime   `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	Deadline     time.Time      `db:"deadline"`
}

func toRow(job *domain.Job) (*jobRow, error) {
	row := &jobRow{
		JobID:        job.JobID,
		UserID:       job.Submission.Meta.UserID,
		TeamID:       job.Submission.Meta.TeamID,
		ContentType:  string(job.Submission.Type),
		Fingerprint:  string(job.Fingerprint),
		Priority:     string(job.Priority),
		State:        string(job.State),
		Attempts:     job.Attempts,
		Payload:      []byte(job.Submission.Payload),
		Target:       job.Submission.Meta.Target,
		ErrorMessage: job.Error,
		EnqueuedAt:   job.EnqueuedAt,
		Deadline:     job.Deadline,
	}
	if !job.StartedAt.IsZero() {
		row.StartedAt = sql.NullTime{Time: job.StartedAt, Valid: true}
	}
	if !job.CompletedAt.IsZero() {
		row.CompletedAt = sql.NullTime{Time: job.CompletedAt, Valid: true}
	}
	if job.Result != nil {
		body, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		row.Result = body
	}
	return row, nil
}

func (r *jobRow) toJob() (*domain.Job, error) {
	job := &domain.Job{
		JobID: r.JobID,
		Submission: content.Submission{
			ID:      r.JobID,
			Type:    content.Type(r.ContentType),
			Payload: json.RawMessage(r.Payload),
			Meta: content.Metadata{
				UserID:   r.UserID,
				TeamID:   r.TeamID,
				Priority: content.Priority(r.Priority),
				Target:   r.Target,
			},
		},
		Fingerprint: fingerprint.Fingerprint(r.Fingerprint),
		State:       domain.State(r.State),
		Priority:    content.Priority(r.Priority),
		Attempts:    r.Attempts,
		Error:       r.ErrorMessage,
		EnqueuedAt:  r.EnqueuedAt,
		Deadline:    r.Deadline,
	}
	if r.StartedAt.Valid {
		job.StartedAt = r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		job.CompletedAt = r.CompletedAt.Time
	}
	if len(r.Result) > 0 {
		var result validation.Result
		if err := json.Unmarshal(r.Result, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}

func (s *Postgres) Put(ctx context.Context, job *domain.Job) error {
	row, err := toRow(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO validation_jobs (
			job_id, user_id, team_id, content_type, fingerprint, priority,
			state, attempts, payload, target, result, error_message,
			enqueued_at, started_at, completed_at, deadline
		) VALUES (
			:job_id, :user_id, :team_id, :content_type, :fingerprint, :priority,
			:state, :attempts, :payload, :target, :result, :error_message,
			:enqueued_at, :started_at, :completed_at, :deadline
		)
		ON CONFLICT (job_id) DO UPDATE SET
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT * FROM validation_jobs WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return row.toJob()
}

func (s *Postgres) List(ctx context.Context, filter Filter) ([]domain.Job, error) {
	query := `SELECT * FROM validation_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.ContentType != "" {
		query += fmt.Sprintf(" AND content_type = $%d", argIdx)
		args = append(args, filter.ContentType)
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	}
	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (enqueued_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.EnqueuedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY enqueued_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (s *Postgres) Delete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM validation_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Postgres) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM validation_jobs
		WHERE completed_at IS NOT NULL AND completed_at < $1
	`
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	if affected > 0 {
		s.logger.Info("Purged expired job records",
			slog.Int64("purged", affected),
			slog.Time("cutoff", cutoff),
		)
	}
	return int(affected), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
