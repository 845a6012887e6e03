package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/metrics"
)

// Engine records activity events and keeps series scores and tiers current.
// Scores are always recomputed from the full event log, never incremented in
// place, so any score is reproducible from the events alone.
type Engine struct {
	series   catalog.SeriesStore
	activity catalog.ActivityStore
	clock    catalog.Clock
	logger   *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(series catalog.SeriesStore, activity catalog.ActivityStore, clock catalog.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		series:   series,
		activity: activity,
		clock:    clock,
		logger:   logger,
	}
}

// RecordEvent appends one weighted event and refreshes the series score.
func (e *Engine) RecordEvent(ctx context.Context, seriesID string, typ catalog.EventType) error {
	now := e.clock.Now()
	return e.RecordEvents(ctx, []catalog.ActivityEvent{{
		SeriesID:   seriesID,
		Type:       typ,
		Weight:     typ.Weight(),
		OccurredAt: now,
	}})
}

// RecordEvents appends a batch of events in one insert and refreshes each
// affected series once.
func (e *Engine) RecordEvents(ctx context.Context, events []catalog.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := e.activity.InsertEvents(ctx, events); err != nil {
		return fmt.Errorf("insert activity events: %w", err)
	}

	latest := map[string]time.Time{}
	for _, ev := range events {
		if ev.OccurredAt.After(latest[ev.SeriesID]) {
			latest[ev.SeriesID] = ev.OccurredAt
		}
	}
	for seriesID, at := range latest {
		if err := e.series.TouchActivity(ctx, seriesID, at); err != nil {
			return fmt.Errorf("touch activity for %s: %w", seriesID, err)
		}
		if err := e.RefreshScore(ctx, seriesID); err != nil {
			return err
		}
	}
	return nil
}

// RefreshScore recomputes the score from the full event history and applies
// tier promotion. Refreshes never demote; only the periodic sweep does.
func (e *Engine) RefreshScore(ctx context.Context, seriesID string) error {
	now := e.clock.Now()
	s, err := e.series.GetSeries(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("load series %s: %w", seriesID, err)
	}
	events, err := e.activity.ListEvents(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("list events for %s: %w", seriesID, err)
	}

	score := Score(events, s, now)
	decision := DecideTier(s, score, now)

	tier, reason := decision.Tier, decision.Reason
	if tierRank(tier) < tierRank(s.CatalogTier) {
		tier, reason = s.CatalogTier, s.TierReason
	}
	if err := e.series.UpdateScoring(ctx, seriesID, score, tier, reason, now); err != nil {
		return fmt.Errorf("update scoring for %s: %w", seriesID, err)
	}

	if tier != s.CatalogTier {
		metrics.ObserveTierTransition(string(tier), reason)
		e.logger.Info("series tier promoted",
			zap.String("series_id", seriesID),
			zap.String("from", string(s.CatalogTier)),
			zap.String("to", string(tier)),
			zap.String("reason", reason),
			zap.Float64("score", score),
		)
	}
	return nil
}

// SweepDemotions recomputes stale tier-A series and forces them down to B
// after the demotion window without activity, unless they sit on a curated
// list. It returns how many series were demoted.
func (e *Engine) SweepDemotions(ctx context.Context, limit int) (int, error) {
	now := e.clock.Now()
	cutoff := now.Add(-demotionWindow)
	stale, err := e.series.ListDemotionCandidates(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list demotion candidates: %w", err)
	}

	demoted := 0
	for _, s := range stale {
		if s.Curated {
			continue
		}
		events, err := e.activity.ListEvents(ctx, s.ID)
		if err != nil {
			return demoted, fmt.Errorf("list events for %s: %w", s.ID, err)
		}
		score := Score(events, s, now)
		if err := e.series.UpdateScoring(ctx, s.ID, score, catalog.TierB, ReasonDemotedInactive, now); err != nil {
			return demoted, fmt.Errorf("demote %s: %w", s.ID, err)
		}
		demoted++
		metrics.ObserveTierTransition(string(catalog.TierB), ReasonDemotedInactive)
		e.logger.Info("series tier demoted",
			zap.String("series_id", s.ID),
			zap.Float64("score", score),
		)
	}
	return demoted, nil
}
