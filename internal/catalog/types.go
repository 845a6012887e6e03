package catalog

import "time"

// MetadataStatus represents the resolution lifecycle state of a library entry.
type MetadataStatus string

// Metadata status values persisted on library entries and series.
const (
	MetadataPending     MetadataStatus = "pending"
	MetadataEnriched    MetadataStatus = "enriched"
	MetadataUnavailable MetadataStatus = "unavailable"
	MetadataFailed      MetadataStatus = "failed"
)

// CatalogTier is the coarse sync-priority classification of a series.
type CatalogTier string

// Catalog tiers, ordered from most to least aggressively synced.
const (
	TierA CatalogTier = "A"
	TierB CatalogTier = "B"
	TierC CatalogTier = "C"
)

// ChapterType classifies a chapter as a regular release or a side release.
type ChapterType string

// Chapter types recognized by the normalizer.
const (
	ChapterNormal  ChapterType = "normal"
	ChapterSpecial ChapterType = "special"
	ChapterExtra   ChapterType = "extra"
)

// EventType identifies a kind of activity attributable to a series.
type EventType string

// Activity event types and their fixed weights.
const (
	EventChapterDetected    EventType = "chapter_detected"
	EventChapterSourceAdded EventType = "chapter_source_added"
	EventSearchImpression   EventType = "search_impression"
	EventChapterRead        EventType = "chapter_read"
	EventSeriesFollowed     EventType = "series_followed"
)

// Weight returns the fixed score weight for the event type. Unknown types
// weigh zero so a bad row can never move a score.
func (t EventType) Weight() int {
	switch t {
	case EventChapterDetected:
		return 1
	case EventChapterSourceAdded:
		return 2
	case EventSearchImpression:
		return 5
	case EventChapterRead:
		return 50
	case EventSeriesFollowed:
		return 100
	default:
		return 0
	}
}

// MetadataSource identifies where a series' bibliographic fields came from.
// It is a closed set; Rank gives the fixed reconciliation priority.
type MetadataSource string

// Known metadata sources.
const (
	SourceUserOverride MetadataSource = "user_override"
	SourceAniList      MetadataSource = "anilist"
	SourceMangaDex     MetadataSource = "mangadex"
	SourceScraper      MetadataSource = "scraper"
	SourceNone         MetadataSource = ""
)

// Rank returns the reconciliation priority of the source. Higher outranks
// lower; a user override outranks every automated source.
func (s MetadataSource) Rank() int {
	switch s {
	case SourceUserOverride:
		return 100
	case SourceAniList:
		return 30
	case SourceMangaDex:
		return 20
	case SourceScraper:
		return 10
	case SourceNone:
		return 0
	default:
		return 0
	}
}

// NormalizedChapter is the derived, non-persisted canonical identity of a
// scraped chapter label.
type NormalizedChapter struct {
	Number *float64
	Type   ChapterType
	Slug   string
}

// LogicalChapter is the canonical, source-independent representation of one
// chapter of a series. Uniqueness holds on (SeriesID, ChapterNumber) among
// non-deleted rows.
type LogicalChapter struct {
	ID            string
	SeriesID      string
	ChapterNumber string
	Slug          string
	Title         string
	PublishedAt   *time.Time
	FirstSeenAt   time.Time
	DeletedAt     *time.Time
}

// ChapterSourceLink ties a logical chapter to one external provider's copy.
// Uniqueness holds on (SourceID, LogicalChapterID).
type ChapterSourceLink struct {
	ID               string
	LogicalChapterID string
	SourceID         string
	SourceName       string
	SourceURL        string
	PublishedAt      *time.Time
	DetectedAt       time.Time
}

// Series is the jointly-owned catalog row. The synchronizer writes the
// chapter-derived fields, the resolver writes the bibliographic fields, and
// the activity engine writes the scoring fields; each component issues
// field-scoped updates only.
type Series struct {
	ID                    string
	Title                 string
	CoverURL              string
	Description           string
	ExternalID            string
	MetadataSource        MetadataSource
	MetadataStatus        MetadataStatus
	MetadataSchemaVersion int
	ActivityScore         float64
	CatalogTier           CatalogTier
	TierReason            string
	LastActivityAt        *time.Time
	LastChapterAt         *time.Time
	MaxChapterNumber      *float64
	Follows               int
	LibraryCount          int
	WeeklyReaders         int
	Curated               bool
}

// LibraryEntry is a user's tracked item. It is created by user action and
// mutated only by the resolver under lock or by explicit user override.
type LibraryEntry struct {
	ID                  string
	UserID              string
	SeriesID            *string
	Title               string
	SourceURL           string
	MetadataStatus      MetadataStatus
	MetadataSource      MetadataSource
	ManuallyLinked      bool
	ManualOverrideAt    *time.Time
	MetadataRetryCount  int
	MetadataNextRetryAt *time.Time
	LastMetadataError   string
	NeedsReview         bool
	ReviewReason        string
	Progress            float64
}

// Overridden reports whether the entry carries a manual link or user-asserted
// metadata that automation must never touch.
func (e LibraryEntry) Overridden() bool {
	return e.ManuallyLinked || e.ManualOverrideAt != nil || e.MetadataSource == SourceUserOverride
}

// ActivityEvent is an immutable, weighted record of an action attributable to
// a series. Rows are append-only.
type ActivityEvent struct {
	ID         string
	SeriesID   string
	Type       EventType
	Weight     int
	OccurredAt time.Time
}

// RawChapter is one scraped chapter as produced by a ScraperAdapter.
type RawChapter struct {
	ChapterNumber string
	ChapterLabel  string
	ChapterURL    string
	ChapterTitle  string
	PublishedAt   *time.Time
}

// ScrapeResult is the batch a ScraperAdapter returns for one series/source.
type ScrapeResult struct {
	Title    string
	CoverURL string
	Chapters []RawChapter
}

// MetadataRecord is one bibliographic record returned by a MetadataProvider.
type MetadataRecord struct {
	ExternalID  string
	Source      MetadataSource
	Title       string
	AltTitles   []string
	CoverURL    string
	Description string
	Popularity  int
}

// Candidate pairs a provider record with its computed title similarity.
type Candidate struct {
	Record     MetadataRecord
	Similarity float64
}
