// Package worker implements the resolution job execution loop.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/metrics"
	"github.com/calyptra/serialhub/internal/queue"
	"github.com/calyptra/serialhub/internal/resolver"
)

// EntryResolver runs the metadata resolution state machine for one entry.
type EntryResolver interface {
	Resolve(ctx context.Context, entryID string) error
}

// Config controls Worker behavior.
type Config struct {
	PollInterval time.Duration
}

// Worker consumes resolution jobs from the queue.
type Worker struct {
	queue    queue.Queue
	resolver EntryResolver
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(q queue.Queue, r EntryResolver, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    q,
		resolver: r,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, claiming and processing jobs until the context finishes. An
// idle or erroring queue is polled on the configured interval.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	w.logger.Debug("claimed job", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts))

	err := w.resolver.Resolve(ctx, job.EntryID)
	if err == nil {
		if err := w.queue.Complete(ctx, job); err != nil {
			w.logger.Error("complete job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	if resolver.IsTransient(err) {
		// The queue owns the retry schedule for transient faults; the entry's
		// own failure bookkeeping was already written by the resolver.
		if failErr := w.queue.Fail(ctx, job, resolver.SanitizeError(err.Error())); failErr != nil {
			w.logger.Error("fail job failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		w.logger.Warn("resolution failed transiently",
			zap.String("job_id", job.ID),
			zap.String("entry_id", job.EntryID),
			zap.Error(err),
		)
		return
	}

	// Permanent failures are terminal for the job; the entry carries the
	// error and its own recovery schedule.
	if err := w.queue.Complete(ctx, job); err != nil {
		w.logger.Error("complete job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	w.logger.Warn("resolution failed permanently",
		zap.String("job_id", job.ID),
		zap.String("entry_id", job.EntryID),
		zap.Error(err),
	)
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
