// Package activity implements the activity-scoring and catalog-tier engine:
// an append-only weighted event log, full-history score recomputation with
// age decay, tier promotion/demotion, and a debounced impression buffer.
package activity

import (
	"time"

	"github.com/calyptra/serialhub/internal/catalog"
)

// daysPerMonth converts event/chapter ages into fractional months.
const daysPerMonth = 30.4375

// Engagement combines the series' audience counters into the engagement
// component of the score.
func Engagement(follows, libraryCount, weeklyReaders int) float64 {
	return float64(follows)*1.0 + float64(libraryCount)*2.0 + float64(weeklyReaders)*0.5
}

// DecayFactor dampens the score of series that stopped releasing. A series
// without a new chapter for a year halves; past two years it drops to a
// tenth, or to zero outright when the audience has also been gone for six
// months.
func DecayFactor(monthsSinceChapter, monthsSinceActivity float64) float64 {
	switch {
	case monthsSinceChapter >= 24 && monthsSinceActivity >= 6:
		return 0.0
	case monthsSinceChapter >= 24:
		return 0.1
	case monthsSinceChapter >= 12:
		return 0.5
	default:
		return 1.0
	}
}

// Score recomputes the activity score from the full event history plus the
// engagement counters, decayed by release/audience age. It is deterministic:
// the same events, series counters, and clock always yield the same score.
// Series that never saw a chapter or activity yet do not decay.
func Score(events []catalog.ActivityEvent, s catalog.Series, now time.Time) float64 {
	var sum float64
	for _, ev := range events {
		sum += float64(ev.Weight)
	}
	sum += Engagement(s.Follows, s.LibraryCount, s.WeeklyReaders)
	return sum * DecayFactor(monthsSince(s.LastChapterAt, now), monthsSince(s.LastActivityAt, now))
}

func monthsSince(t *time.Time, now time.Time) float64 {
	if t == nil {
		return 0
	}
	d := now.Sub(*t)
	if d < 0 {
		return 0
	}
	return d.Hours() / (24 * daysPerMonth)
}
