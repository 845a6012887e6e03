// Package metrics exposes Prometheus collectors for the catalog service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolutionOutcomesTotal  *prometheus.CounterVec
	syncChaptersTotal        *prometheus.CounterVec
	syncBatchDurationSeconds *prometheus.HistogramVec
	impressionFlushesTotal   *prometheus.CounterVec
	impressionBufferSize     prometheus.Gauge
	queueJobsGauge           *prometheus.GaugeVec
	activeWorkers            prometheus.Gauge
	tierTransitionsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolutionOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serialhub_resolution_outcomes_total",
				Help: "Total metadata resolution attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		syncChaptersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serialhub_sync_chapters_total",
				Help: "Total chapters processed by the synchronizer, labeled by source and result.",
			},
			[]string{"source", "result"},
		)

		syncBatchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serialhub_sync_batch_duration_seconds",
				Help:    "Histogram of chapter sync batch durations, labeled by source.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"source"},
		)

		impressionFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serialhub_impression_flushes_total",
				Help: "Total impression buffer flushes, labeled by result.",
			},
			[]string{"result"},
		)

		impressionBufferSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "serialhub_impression_buffer_series",
				Help: "Number of series currently buffered for impression flushing.",
			},
		)

		queueJobsGauge = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "serialhub_queue_jobs",
				Help: "Resolver queue depth, labeled by job status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "serialhub_active_workers",
				Help: "Number of workers currently processing a resolution job.",
			},
		)

		tierTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serialhub_tier_transitions_total",
				Help: "Total catalog tier transitions, labeled by tier and reason.",
			},
			[]string{"tier", "reason"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution increments the resolution outcome counter.
func ObserveResolution(outcome string) {
	if resolutionOutcomesTotal == nil {
		return
	}
	resolutionOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSyncChapter increments the per-chapter sync counter.
func ObserveSyncChapter(source, result string) {
	if syncChaptersTotal == nil {
		return
	}
	syncChaptersTotal.WithLabelValues(source, result).Inc()
}

// ObserveSyncBatch records the duration of one sync batch.
func ObserveSyncBatch(source string, duration time.Duration) {
	if syncBatchDurationSeconds == nil {
		return
	}
	syncBatchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveImpressionFlush increments the flush counter.
func ObserveImpressionFlush(result string) {
	if impressionFlushesTotal == nil {
		return
	}
	impressionFlushesTotal.WithLabelValues(result).Inc()
}

// SetImpressionBufferSize records the number of buffered series.
func SetImpressionBufferSize(n int) {
	if impressionBufferSize == nil {
		return
	}
	impressionBufferSize.Set(float64(n))
}

// SetQueueJobs records the queue depth for one job status.
func SetQueueJobs(status string, n int) {
	if queueJobsGauge == nil {
		return
	}
	queueJobsGauge.WithLabelValues(status).Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveTierTransition increments the tier transition counter.
func ObserveTierTransition(tier, reason string) {
	if tierTransitionsTotal == nil {
		return
	}
	tierTransitionsTotal.WithLabelValues(tier, reason).Inc()
}
