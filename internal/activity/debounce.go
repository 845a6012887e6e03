package activity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/metrics"
)

// ImpressionBuffer debounces high-frequency search impressions. Counts are
// buffered per series in memory and flushed on a fixed interval as one batch
// insert plus one score refresh per affected series. The buffer is
// process-local; duplicate buffering across workers is fine because the
// destination weights are additive.
type ImpressionBuffer struct {
	mu     sync.Mutex
	counts map[string]int

	engine   *Engine
	clock    catalog.Clock
	interval time.Duration
	logger   *zap.Logger
}

// NewImpressionBuffer constructs a buffer flushing every interval.
func NewImpressionBuffer(engine *Engine, clock catalog.Clock, interval time.Duration, logger *zap.Logger) *ImpressionBuffer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImpressionBuffer{
		counts:   make(map[string]int),
		engine:   engine,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Enqueue buffers one impression for the series.
func (b *ImpressionBuffer) Enqueue(seriesID string) {
	b.mu.Lock()
	b.counts[seriesID]++
	size := len(b.counts)
	b.mu.Unlock()
	metrics.SetImpressionBufferSize(size)
}

// Flush drains the buffer into the event log. Each series gets one
// aggregated impression event carrying the summed weight, so the recomputed
// score equals what individual rows would have produced. On failure the
// drained counts are merged back into the live buffer instead of being
// dropped.
func (b *ImpressionBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.counts
	b.counts = make(map[string]int)
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	now := b.clock.Now()
	events := make([]catalog.ActivityEvent, 0, len(batch))
	for seriesID, count := range batch {
		events = append(events, catalog.ActivityEvent{
			SeriesID:   seriesID,
			Type:       catalog.EventSearchImpression,
			Weight:     count * catalog.EventSearchImpression.Weight(),
			OccurredAt: now,
		})
	}

	if err := b.engine.RecordEvents(ctx, events); err != nil {
		b.mu.Lock()
		for seriesID, count := range batch {
			b.counts[seriesID] += count
		}
		size := len(b.counts)
		b.mu.Unlock()
		metrics.SetImpressionBufferSize(size)
		metrics.ObserveImpressionFlush("error")
		b.logger.Error("impression flush failed, batch re-merged", zap.Error(err))
		return err
	}

	metrics.SetImpressionBufferSize(0)
	metrics.ObserveImpressionFlush("ok")
	b.logger.Debug("impressions flushed", zap.Int("series", len(batch)))
	return nil
}

// Run flushes on the fixed interval until the context finishes, then makes
// one final flush attempt.
func (b *ImpressionBuffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = b.Flush(flushCtx) // failures are logged and re-merged inside Flush
			cancel()
			return
		case <-ticker.C:
			_ = b.Flush(ctx)
		}
	}
}
