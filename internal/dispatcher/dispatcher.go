// Package dispatcher manages worker fan-out over the resolution queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/metrics"
	"github.com/calyptra/serialhub/internal/queue"
	"github.com/calyptra/serialhub/internal/worker"
)

// statsInterval is how often queue depth is exported as gauges.
const statsInterval = 15 * time.Second

// Dispatcher fans out queue work to a pool of workers and exports queue
// depth while they run.
type Dispatcher struct {
	queue   queue.Queue
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(q queue.Queue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   q,
		workers: workers,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.exportStats(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, entryID string, runAt time.Time) error {
	if err := d.queue.Enqueue(ctx, entryID, runAt); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

func (d *Dispatcher) exportStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := d.queue.Stats(ctx)
			if err != nil {
				d.logger.Warn("queue stats failed", zap.Error(err))
				continue
			}
			metrics.SetQueueJobs(queue.StatusPending, stats.Pending)
			metrics.SetQueueJobs(queue.StatusRunning, stats.Running)
			metrics.SetQueueJobs(queue.StatusDead, stats.Dead)
		}
	}
}
