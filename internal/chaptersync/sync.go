// Package chaptersync folds scraped chapter batches into the canonical
// chapter catalog.
package chaptersync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/metrics"
	"github.com/calyptra/serialhub/internal/normalize"
)

// eventRecorder is the slice of the activity engine the synchronizer needs.
type eventRecorder interface {
	RecordEvents(ctx context.Context, events []catalog.ActivityEvent) error
}

// SyncSummary reports what one batch did.
type SyncSummary struct {
	ChaptersCreated int
	LinksCreated    int
	Failed          int
}

// Synchronizer deduplicates scraped chapters across sources. Each chapter is
// upserted in its own bounded transaction so one bad row never poisons the
// rest of the batch; series-level rollups happen once after the loop.
type Synchronizer struct {
	chapters catalog.ChapterStore
	series   catalog.SeriesStore
	events   eventRecorder
	clock    catalog.Clock
	logger   *zap.Logger
}

// NewSynchronizer constructs a Synchronizer. events may be nil when activity
// tracking is disabled.
func NewSynchronizer(chapters catalog.ChapterStore, series catalog.SeriesStore, events eventRecorder, clock catalog.Clock, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		chapters: chapters,
		series:   series,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// SyncChapters folds one scraped batch from one source into the catalog.
// Chapters whose normalized identity already exists gain a source link at
// most; genuinely new identities create a logical chapter. Per-chapter
// failures are counted and skipped. The returned summary reflects what was
// actually persisted even when the function also returns an error.
func (s *Synchronizer) SyncChapters(ctx context.Context, seriesID, sourceID, sourceName string, result catalog.ScrapeResult) (SyncSummary, error) {
	start := s.clock.Now()
	defer func() {
		metrics.ObserveSyncBatch(sourceName, s.clock.Now().Sub(start))
	}()

	var (
		summary   SyncSummary
		firstErr  error
		maxNumber *float64
		latestPub *time.Time
		batch     []catalog.ActivityEvent
	)

	for _, raw := range result.Chapters {
		norm := normalize.Normalize(raw.ChapterLabel, raw.ChapterTitle)

		key := norm.Slug
		if norm.Number != nil {
			key = normalize.CanonicalString(norm.Number)
		}

		res, err := s.chapters.UpsertChapter(ctx, catalog.ChapterUpsert{
			SeriesID:      seriesID,
			ChapterNumber: key,
			Slug:          norm.Slug,
			Title:         raw.ChapterTitle,
			PublishedAt:   raw.PublishedAt,
			SourceID:      sourceID,
			SourceName:    sourceName,
			SourceURL:     raw.ChapterURL,
		})
		if err != nil {
			summary.Failed++
			metrics.ObserveSyncChapter(sourceName, "error")
			if firstErr == nil {
				firstErr = fmt.Errorf("upsert chapter %q: %w", raw.ChapterLabel, err)
			}
			s.logger.Warn("chapter upsert failed",
				zap.String("series_id", seriesID),
				zap.String("source", sourceName),
				zap.String("label", raw.ChapterLabel),
				zap.Error(err),
			)
			continue
		}

		switch {
		case res.ChapterCreated:
			summary.ChaptersCreated++
			summary.LinksCreated++
			metrics.ObserveSyncChapter(sourceName, "created")
			batch = append(batch, s.event(seriesID, catalog.EventChapterDetected, raw.PublishedAt))
		case res.LinkCreated:
			summary.LinksCreated++
			metrics.ObserveSyncChapter(sourceName, "linked")
			batch = append(batch, s.event(seriesID, catalog.EventChapterSourceAdded, raw.PublishedAt))
		default:
			metrics.ObserveSyncChapter(sourceName, "unchanged")
		}

		if norm.Number != nil && norm.Type == catalog.ChapterNormal {
			if maxNumber == nil || *norm.Number > *maxNumber {
				n := *norm.Number
				maxNumber = &n
			}
		}
		if raw.PublishedAt != nil && (latestPub == nil || raw.PublishedAt.After(*latestPub)) {
			latestPub = raw.PublishedAt
		}
	}

	if maxNumber != nil {
		at := s.clock.Now()
		if latestPub != nil {
			at = *latestPub
		}
		if err := s.series.AdvanceMaxChapter(ctx, seriesID, *maxNumber, at); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("advance max chapter: %w", err)
		}
	}
	if result.CoverURL != "" {
		if err := s.series.SetCoverIfEmpty(ctx, seriesID, result.CoverURL); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("set cover: %w", err)
		}
	}

	// Activity is a derived signal; losing a batch of events must not fail
	// the sync that already committed its chapters.
	if s.events != nil && len(batch) > 0 {
		if err := s.events.RecordEvents(ctx, batch); err != nil {
			s.logger.Warn("activity events dropped",
				zap.String("series_id", seriesID),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
	}

	return summary, firstErr
}

func (s *Synchronizer) event(seriesID string, typ catalog.EventType, occurredAt *time.Time) catalog.ActivityEvent {
	at := s.clock.Now()
	if occurredAt != nil {
		at = *occurredAt
	}
	return catalog.ActivityEvent{
		SeriesID:   seriesID,
		Type:       typ,
		Weight:     typ.Weight(),
		OccurredAt: at,
	}
}
