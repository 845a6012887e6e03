// Package postgres provides the durable Postgres-backed resolution queue.
// Scheduling state lives in the resolver_jobs table, so queued work survives
// restarts and delayed retries need no in-process timers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/queue"
)

// dbPool is the slice of pgxpool.Pool the queue uses; pgxmock satisfies it.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Queue implements queue.Queue on the resolver_jobs table.
type Queue struct {
	pool   dbPool
	clock  catalog.Clock
	policy queue.RetryPolicy
}

// NewQueue constructs a Queue on the shared pool.
func NewQueue(pool dbPool, clock catalog.Clock, policy queue.RetryPolicy) *Queue {
	return &Queue{pool: pool, clock: clock, policy: policy}
}

// Enqueue inserts a pending job under the entry's deterministic ID. An
// existing pending or running job absorbs the call; a dead job is revived
// with fresh attempts.
func (q *Queue) Enqueue(ctx context.Context, entryID string, runAt time.Time) error {
	query := `
		INSERT INTO resolver_jobs (job_id, entry_id, status, attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, $3, $4, $4)
		ON CONFLICT (job_id) DO UPDATE
		SET status = 'pending', attempts = 0, run_at = EXCLUDED.run_at,
			last_error = NULL, updated_at = EXCLUDED.updated_at
		WHERE resolver_jobs.status = 'dead';
	`
	if _, err := q.pool.Exec(ctx, query, queue.JobID(entryID), entryID, runAt, q.clock.Now()); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue claims the earliest due pending job with SKIP LOCKED so concurrent
// workers never double-claim.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Job, error) {
	query := `
		UPDATE resolver_jobs
		SET status = 'running', updated_at = $1
		WHERE job_id = (
			SELECT job_id FROM resolver_jobs
			WHERE status = 'pending' AND run_at <= $1
			ORDER BY run_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id, entry_id, attempts, run_at, COALESCE(last_error, '');
	`
	var job queue.Job
	err := q.pool.QueryRow(ctx, query, q.clock.Now()).Scan(
		&job.ID, &job.EntryID, &job.Attempts, &job.RunAt, &job.LastError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return &job, nil
}

// Complete deletes the finished job.
func (q *Queue) Complete(ctx context.Context, job *queue.Job) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM resolver_jobs WHERE job_id = $1;`, job.ID); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail reschedules with backoff or marks the job dead when exhausted.
func (q *Queue) Fail(ctx context.Context, job *queue.Job, cause string) error {
	attempts := job.Attempts + 1
	if q.policy.Exhausted(attempts) {
		query := `
			UPDATE resolver_jobs
			SET status = 'dead', attempts = $2, last_error = $3, updated_at = $4
			WHERE job_id = $1;
		`
		if _, err := q.pool.Exec(ctx, query, job.ID, attempts, cause, q.clock.Now()); err != nil {
			return fmt.Errorf("mark job dead: %w", err)
		}
		return nil
	}

	now := q.clock.Now()
	query := `
		UPDATE resolver_jobs
		SET status = 'pending', attempts = $2, run_at = $3, last_error = $4, updated_at = $5
		WHERE job_id = $1;
	`
	runAt := now.Add(q.policy.Backoff(attempts - 1))
	if _, err := q.pool.Exec(ctx, query, job.ID, attempts, runAt, cause, now); err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return nil
}

// Stats counts jobs by status.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	rows, err := q.pool.Query(ctx, `SELECT status, count(*) FROM resolver_jobs GROUP BY status;`)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var s queue.Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return queue.Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		switch status {
		case queue.StatusPending:
			s.Pending = count
		case queue.StatusRunning:
			s.Running = count
		case queue.StatusDead:
			s.Dead = count
		}
	}
	return s, rows.Err()
}

// Close releases the underlying pool.
func (q *Queue) Close() {
	if q.pool != nil {
		q.pool.Close()
	}
}
