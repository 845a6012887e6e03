package catalog

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by store implementations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrEntryLocked indicates another worker holds the per-entry lock. The
	// caller is expected to skip, not wait.
	ErrEntryLocked = errors.New("catalog: entry locked by another worker")
	// ErrSerialization indicates a serializable-transaction conflict. The
	// whole transaction may be retried a bounded number of times.
	ErrSerialization = errors.New("catalog: serialization conflict")
)

// Clock returns the current time (injected so time-dependent behavior is
// testable).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// ScraperAdapter produces one batch of scraped chapters for a source. The
// raw HTTP/parsing machinery behind it is opaque to the core.
type ScraperAdapter interface {
	ScrapeSeries(ctx context.Context, sourceID string) (ScrapeResult, error)
}

// SearchOptions bounds a provider search.
type SearchOptions struct {
	Limit int
}

// MetadataProvider is the authoritative bibliographic source.
type MetadataProvider interface {
	Search(ctx context.Context, title string, opts SearchOptions) ([]MetadataRecord, error)
	FetchByID(ctx context.Context, id string) (MetadataRecord, error)
}

// ChapterUpsert carries everything needed to sight one chapter from one
// source. ChapterNumber is the canonical string; when the number is unknown
// the slug serves as the identity key instead.
type ChapterUpsert struct {
	SeriesID      string
	ChapterNumber string
	Slug          string
	Title         string
	PublishedAt   *time.Time
	SourceID      string
	SourceName    string
	SourceURL     string
}

// ChapterUpsertResult reports what the bounded per-chapter transaction did.
type ChapterUpsertResult struct {
	LogicalChapterID string
	ChapterCreated   bool
	LinkCreated      bool
}

// ChapterStore persists logical chapters and their source links.
type ChapterStore interface {
	// UpsertChapter runs one bounded transaction: find-or-create the logical
	// chapter by (seriesID, chapterNumber) among non-deleted rows, then
	// upsert the source link by (sourceID, logicalChapterID).
	UpsertChapter(ctx context.Context, u ChapterUpsert) (ChapterUpsertResult, error)
	ListChapters(ctx context.Context, seriesID string) ([]LogicalChapter, error)
}

// SeriesStore persists series rows. All updates are field-scoped.
type SeriesStore interface {
	GetSeries(ctx context.Context, id string) (Series, error)
	// AdvanceMaxChapter raises the series' max known chapter number and
	// last-chapter timestamp; it never lowers either.
	AdvanceMaxChapter(ctx context.Context, seriesID string, number float64, at time.Time) error
	// SetCoverIfEmpty fills the cover only when none is set.
	SetCoverIfEmpty(ctx context.Context, seriesID, coverURL string) error
	UpdateScoring(ctx context.Context, seriesID string, score float64, tier CatalogTier, reason string, at time.Time) error
	// TouchActivity raises last_activity_at; it never lowers it.
	TouchActivity(ctx context.Context, seriesID string, at time.Time) error
	// ListDemotionCandidates returns tier-A, non-curated series with no
	// activity since the cutoff.
	ListDemotionCandidates(ctx context.Context, inactiveSince time.Time, limit int) ([]Series, error)
}

// ActivityStore persists the append-only activity event log.
type ActivityStore interface {
	InsertEvents(ctx context.Context, events []ActivityEvent) error
	ListEvents(ctx context.Context, seriesID string) ([]ActivityEvent, error)
}

// LibraryStore persists library entries and brokers the per-entry resolution
// lock.
type LibraryStore interface {
	GetEntry(ctx context.Context, id string) (LibraryEntry, error)
	// RecordFailure persists a sanitized error message, increments the retry
	// count, and schedules the recovery sweep's next look at the entry. It
	// runs outside any resolution transaction.
	RecordFailure(ctx context.Context, id, sanitized string, nextRetryAt time.Time) error
	// ListDueForRecovery returns unavailable/failed entries whose scheduled
	// retry time has passed.
	ListDueForRecovery(ctx context.Context, now time.Time, limit int) ([]LibraryEntry, error)
	MarkPending(ctx context.Context, id string) error
	// Resolve opens a serializable transaction, acquires the entry's row
	// lock with skip-on-contention semantics, re-reads the entry, and runs
	// fn. It returns ErrEntryLocked when another worker holds the lock and
	// ErrSerialization on commit conflicts.
	Resolve(ctx context.Context, entryID string, fn func(tx ResolutionTx) error) error
}

// ResolutionTx is the mutation surface available while the per-entry lock is
// held. Every method operates inside the surrounding transaction.
type ResolutionTx interface {
	// Entry returns the row as re-read under the lock. The pre-lock snapshot
	// must not be trusted.
	Entry() LibraryEntry
	// EnsureSeries finds or creates the series identified by the record's
	// (source, external id) pair and returns its id.
	EnsureSeries(ctx context.Context, record MetadataRecord) (string, error)
	// ApplyMetadata reconciles bibliographic fields onto the series,
	// honoring the fixed source priority (an equal or higher-ranked existing
	// source is never overwritten by a lower-ranked one).
	ApplyMetadata(ctx context.Context, seriesID string, record MetadataRecord, schemaVersion int) error
	// MarkEnriched links the locked entry to the series and finishes the
	// resolution.
	MarkEnriched(ctx context.Context, seriesID string, source MetadataSource, needsReview bool, reviewReason string) error
	// MarkUnavailable records a failed resolution on the locked entry,
	// consuming one attempt and scheduling recovery.
	MarkUnavailable(ctx context.Context, nextRetryAt time.Time) error
	// RelinkMatchingEntries points other entries with the same source URL at
	// the series, scoped to rows that are unlinked and not manually linked.
	RelinkMatchingEntries(ctx context.Context, sourceURL, seriesID string) (int, error)
	// FindPeerEntry returns another entry of the same user already linked to
	// the series, or nil.
	FindPeerEntry(ctx context.Context, userID, seriesID string) (*LibraryEntry, error)
	SetProgress(ctx context.Context, entryID string, progress float64) error
	DeleteEntry(ctx context.Context, entryID string) error
	// MarkEntryUnavailable parks an arbitrary entry (e.g. a merge loser that
	// cannot be deleted safely) in the unavailable state.
	MarkEntryUnavailable(ctx context.Context, entryID string, nextRetryAt time.Time) error
}
