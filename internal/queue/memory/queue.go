// Package memory provides an in-memory queue for local development and tests.
// It honors the same dedup, delay, and retry semantics as the Postgres queue
// but survives nothing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/queue"
)

// Queue is an in-memory implementation of queue.Queue.
type Queue struct {
	mu     sync.Mutex
	jobs   map[string]*jobState
	clock  catalog.Clock
	policy queue.RetryPolicy
}

type jobState struct {
	job    queue.Job
	status string
}

// NewQueue constructs an empty queue.
func NewQueue(clock catalog.Clock, policy queue.RetryPolicy) *Queue {
	return &Queue{
		jobs:   make(map[string]*jobState),
		clock:  clock,
		policy: policy,
	}
}

// Enqueue schedules a resolution, deduplicating on the deterministic job ID.
func (q *Queue) Enqueue(_ context.Context, entryID string, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := queue.JobID(entryID)
	if existing, ok := q.jobs[id]; ok {
		if existing.status != queue.StatusDead {
			return nil
		}
		// Revive a dead job from scratch.
	}
	q.jobs[id] = &jobState{
		job:    queue.Job{ID: id, EntryID: entryID, RunAt: runAt},
		status: queue.StatusPending,
	}
	return nil
}

// Dequeue claims the earliest due pending job, or returns (nil, nil).
func (q *Queue) Dequeue(_ context.Context) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var best *jobState
	for _, st := range q.jobs {
		if st.status != queue.StatusPending || st.job.RunAt.After(now) {
			continue
		}
		if best == nil || st.job.RunAt.Before(best.job.RunAt) {
			best = st
		}
	}
	if best == nil {
		return nil, nil
	}
	best.status = queue.StatusRunning
	job := best.job
	return &job, nil
}

// Complete removes a finished job.
func (q *Queue) Complete(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, job.ID)
	return nil
}

// Fail reschedules the job with backoff, or marks it dead when exhausted.
func (q *Queue) Fail(_ context.Context, job *queue.Job, cause string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.jobs[job.ID]
	if !ok {
		return nil
	}
	st.job.Attempts++
	st.job.LastError = cause
	if q.policy.Exhausted(st.job.Attempts) {
		st.status = queue.StatusDead
		return nil
	}
	st.job.RunAt = q.clock.Now().Add(q.policy.Backoff(st.job.Attempts - 1))
	st.status = queue.StatusPending
	return nil
}

// Stats counts jobs by status.
func (q *Queue) Stats(_ context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s queue.Stats
	for _, st := range q.jobs {
		switch st.status {
		case queue.StatusPending:
			s.Pending++
		case queue.StatusRunning:
			s.Running++
		case queue.StatusDead:
			s.Dead++
		}
	}
	return s, nil
}

// Close is a no-op for the in-memory queue.
func (q *Queue) Close() {}
