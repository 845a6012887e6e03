// Package api exposes the read-only ops HTTP interface for the catalog
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/metrics"
	"github.com/calyptra/serialhub/internal/queue"
)

// Server wires HTTP handlers to the series store and the resolution queue.
type Server struct {
	router chi.Router
	series catalog.SeriesStore
	queue  queue.Queue
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(series catalog.SeriesStore, q queue.Queue, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		series: series,
		queue:  q,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/series/{series_id}", s.getSeries)
	r.Get("/queue/stats", s.queueStats)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The queue shares the database pool, so a stats round-trip doubles as a
	// readiness probe for both.
	if _, err := s.queue.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// seriesResponse is the introspection snapshot of one series.
type seriesResponse struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	CatalogTier      string     `json:"catalog_tier"`
	TierReason       string     `json:"tier_reason"`
	ActivityScore    float64    `json:"activity_score"`
	MetadataStatus   string     `json:"metadata_status"`
	MetadataSource   string     `json:"metadata_source"`
	MaxChapterNumber *float64   `json:"max_chapter_number,omitempty"`
	LastChapterAt    *time.Time `json:"last_chapter_at,omitempty"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
	Follows          int        `json:"follows"`
	WeeklyReaders    int        `json:"weekly_readers"`
	Curated          bool       `json:"curated"`
}

func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := chi.URLParam(r, "series_id")
	series, err := s.series.GetSeries(r.Context(), seriesID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "series not found")
			return
		}
		s.logger.Error("series lookup failed", zap.String("series_id", seriesID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "series lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, seriesResponse{
		ID:               series.ID,
		Title:            series.Title,
		CatalogTier:      string(series.CatalogTier),
		TierReason:       series.TierReason,
		ActivityScore:    series.ActivityScore,
		MetadataStatus:   string(series.MetadataStatus),
		MetadataSource:   string(series.MetadataSource),
		MaxChapterNumber: series.MaxChapterNumber,
		LastChapterAt:    series.LastChapterAt,
		LastActivityAt:   series.LastActivityAt,
		Follows:          series.Follows,
		WeeklyReaders:    series.WeeklyReaders,
		Curated:          series.Curated,
	})
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("queue stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "queue stats failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{
		"pending": stats.Pending,
		"running": stats.Running,
		"dead":    stats.Dead,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
