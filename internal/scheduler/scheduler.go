// Package scheduler runs the periodic background sweeps: re-enqueueing
// unavailable library entries whose recovery time has arrived, and demoting
// stale tier-A series.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/queue"
)

// demotionSweeper is the slice of the activity engine the scheduler drives.
type demotionSweeper interface {
	SweepDemotions(ctx context.Context, limit int) (int, error)
}

// Config controls sweep cadence and batch size.
type Config struct {
	RecoveryInterval time.Duration
	DemotionInterval time.Duration
	BatchSize        int
}

// Scheduler owns the background sweep loops.
type Scheduler struct {
	library catalog.LibraryStore
	queue   queue.Queue
	sweeper demotionSweeper
	clock   catalog.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Scheduler.
func New(library catalog.LibraryStore, q queue.Queue, sweeper demotionSweeper, clock catalog.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = 15 * time.Minute
	}
	if cfg.DemotionInterval <= 0 {
		cfg.DemotionInterval = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		library: library,
		queue:   q,
		sweeper: sweeper,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// RunRecoverySweep moves entries whose scheduled retry time has passed back
// to pending and enqueues a resolution job for each. It returns how many
// entries were requeued.
func (s *Scheduler) RunRecoverySweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.library.ListDueForRecovery(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due entries: %w", err)
	}

	requeued := 0
	for _, entry := range due {
		if err := s.library.MarkPending(ctx, entry.ID); err != nil {
			return requeued, fmt.Errorf("mark entry %s pending: %w", entry.ID, err)
		}
		if err := s.queue.Enqueue(ctx, entry.ID, now); err != nil {
			return requeued, fmt.Errorf("enqueue entry %s: %w", entry.ID, err)
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("recovery sweep requeued entries", zap.Int("count", requeued))
	}
	return requeued, nil
}

// RunDemotionSweep delegates to the activity engine's sweep.
func (s *Scheduler) RunDemotionSweep(ctx context.Context) (int, error) {
	return s.sweeper.SweepDemotions(ctx, s.cfg.BatchSize)
}

// Run blocks, executing both sweeps on their intervals until the context
// finishes. Sweep failures are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	recovery := time.NewTicker(s.cfg.RecoveryInterval)
	defer recovery.Stop()
	demotion := time.NewTicker(s.cfg.DemotionInterval)
	defer demotion.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-recovery.C:
			if _, err := s.RunRecoverySweep(ctx); err != nil {
				s.logger.Error("recovery sweep failed", zap.Error(err))
			}
		case <-demotion.C:
			if _, err := s.RunDemotionSweep(ctx); err != nil {
				s.logger.Error("demotion sweep failed", zap.Error(err))
			}
		}
	}
}
