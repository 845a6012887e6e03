// Package queue defines the durable resolution job queue. Jobs carry
// deterministic IDs derived from the library entry they resolve, so enqueueing
// the same entry twice while a job is outstanding is a no-op.
package queue

import (
	"context"
	"time"
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDead    = "dead"
)

// Job is one scheduled metadata resolution.
type Job struct {
	ID        string
	EntryID   string
	Attempts  int
	RunAt     time.Time
	LastError string
}

// Stats is a point-in-time queue depth snapshot.
type Stats struct {
	Pending int
	Running int
	Dead    int
}

// Queue is the durable job queue contract.
type Queue interface {
	// Enqueue schedules a resolution for the entry no earlier than runAt.
	// While a pending or running job for the entry exists the call is a
	// no-op; a dead job is revived instead of duplicated.
	Enqueue(ctx context.Context, entryID string, runAt time.Time) error
	// Dequeue claims the next due job, or returns (nil, nil) when none is
	// due. A claimed job stays invisible to other workers until completed
	// or failed.
	Dequeue(ctx context.Context) (*Job, error)
	// Complete removes a finished job.
	Complete(ctx context.Context, job *Job) error
	// Fail records a transient failure: the job is rescheduled with
	// backoff, or marked dead once its attempts are exhausted.
	Fail(ctx context.Context, job *Job, cause string) error
	Stats(ctx context.Context) (Stats, error)
	Close()
}

// JobID derives the deterministic job ID for an entry.
func JobID(entryID string) string {
	return "resolve-metadata-" + entryID
}
