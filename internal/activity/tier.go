package activity

import (
	"time"

	"github.com/calyptra/serialhub/internal/catalog"
)

// Tier thresholds and windows.
const (
	tierAScore   = 5000.0
	tierBScore   = 500.0
	tierAReaders = 1000
	tierAFollows = 500

	recentChapterWindow  = 30 * 24 * time.Hour
	chapterWindowB       = 180 * 24 * time.Hour
	recentActivityWindow = 90 * 24 * time.Hour
	// demotionWindow is how long a tier-A series may sit without activity
	// before the sweep forces it down to B.
	demotionWindow = 90 * 24 * time.Hour
)

// Tier transition reasons persisted for observability.
const (
	ReasonRecentChapter      = "recent_chapter"
	ReasonHighEngagement     = "high_engagement"
	ReasonReaderThreshold    = "reader_threshold"
	ReasonCuratedList        = "curated_list"
	ReasonModerateEngagement = "moderate_engagement"
	ReasonRecentActivity     = "recent_activity"
	ReasonLowActivity        = "low_activity"
	ReasonDemotedInactive    = "demoted_inactive"
)

// TierDecision is a computed tier plus the condition that produced it.
type TierDecision struct {
	Tier   catalog.CatalogTier
	Reason string
}

// DecideTier classifies a series from its refreshed score. Any single A
// condition suffices; conditions are checked in a fixed order so the
// recorded reason is deterministic.
func DecideTier(s catalog.Series, score float64, now time.Time) TierDecision {
	switch {
	case within(s.LastChapterAt, now, recentChapterWindow):
		return TierDecision{Tier: catalog.TierA, Reason: ReasonRecentChapter}
	case score >= tierAScore:
		return TierDecision{Tier: catalog.TierA, Reason: ReasonHighEngagement}
	case s.WeeklyReaders >= tierAReaders || s.Follows >= tierAFollows:
		return TierDecision{Tier: catalog.TierA, Reason: ReasonReaderThreshold}
	case s.Curated:
		return TierDecision{Tier: catalog.TierA, Reason: ReasonCuratedList}
	case score >= tierBScore:
		return TierDecision{Tier: catalog.TierB, Reason: ReasonModerateEngagement}
	case within(s.LastChapterAt, now, chapterWindowB) || within(s.LastActivityAt, now, recentActivityWindow):
		return TierDecision{Tier: catalog.TierB, Reason: ReasonRecentActivity}
	default:
		return TierDecision{Tier: catalog.TierC, Reason: ReasonLowActivity}
	}
}

// tierRank orders tiers for promote-only comparisons.
func tierRank(t catalog.CatalogTier) int {
	switch t {
	case catalog.TierA:
		return 3
	case catalog.TierB:
		return 2
	case catalog.TierC:
		return 1
	default:
		return 0
	}
}

func within(t *time.Time, now time.Time, window time.Duration) bool {
	return t != nil && now.Sub(*t) <= window
}
