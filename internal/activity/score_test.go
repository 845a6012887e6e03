package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calyptra/serialhub/internal/catalog"
)

func tptr(t time.Time) *time.Time { return &t }

func TestEngagement(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, Engagement(0, 0, 0))
	require.Equal(t, 1.0, Engagement(1, 0, 0))
	require.Equal(t, 2.0, Engagement(0, 1, 0))
	require.Equal(t, 0.5, Engagement(0, 0, 1))
	require.Equal(t, 125.0, Engagement(50, 30, 30))
}

func TestDecayFactor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, DecayFactor(0, 0))
	require.Equal(t, 1.0, DecayFactor(11.9, 100))
	require.Equal(t, 0.5, DecayFactor(12, 0))
	require.Equal(t, 0.5, DecayFactor(23.9, 5.9))
	require.Equal(t, 0.1, DecayFactor(24, 0))
	require.Equal(t, 0.1, DecayFactor(36, 5.9))
	require.Equal(t, 0.0, DecayFactor(24, 6))
	require.Equal(t, 0.0, DecayFactor(48, 48))
}

func TestScore_SumsWeightsPlusEngagement(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	s := catalog.Series{
		ID:             "series-1",
		Follows:        10,
		LibraryCount:   5,
		WeeklyReaders:  4,
		LastChapterAt:  tptr(now.Add(-24 * time.Hour)),
		LastActivityAt: tptr(now.Add(-time.Hour)),
	}
	events := []catalog.ActivityEvent{
		{SeriesID: "series-1", Type: catalog.EventChapterDetected, Weight: 1, OccurredAt: now},
		{SeriesID: "series-1", Type: catalog.EventChapterRead, Weight: 50, OccurredAt: now},
		{SeriesID: "series-1", Type: catalog.EventSeriesFollowed, Weight: 100, OccurredAt: now},
	}

	// 151 event weight + (10 + 10 + 2) engagement, no decay.
	require.Equal(t, 173.0, Score(events, s, now))
}

func TestScore_DeterministicWithUnchangedClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	s := catalog.Series{
		ID:             "series-1",
		Follows:        3,
		LastChapterAt:  tptr(now.Add(-400 * 24 * time.Hour)),
		LastActivityAt: tptr(now.Add(-10 * 24 * time.Hour)),
	}
	events := []catalog.ActivityEvent{
		{SeriesID: "series-1", Weight: 50, OccurredAt: now.Add(-time.Hour)},
	}

	first := Score(events, s, now)
	require.Equal(t, first, Score(events, s, now), "no new events, same clock, same score")
	require.Equal(t, 26.5, first, "13 months without a chapter halves the score")
}

func TestScore_NewSeriesDoesNotDecay(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := catalog.Series{ID: "series-1", Follows: 2}
	require.Equal(t, 2.0, Score(nil, s, now))
}

func TestEventTypeWeights(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, catalog.EventChapterDetected.Weight())
	require.Equal(t, 2, catalog.EventChapterSourceAdded.Weight())
	require.Equal(t, 5, catalog.EventSearchImpression.Weight())
	require.Equal(t, 50, catalog.EventChapterRead.Weight())
	require.Equal(t, 100, catalog.EventSeriesFollowed.Weight())
	require.Equal(t, 0, catalog.EventType("bogus").Weight())
}
