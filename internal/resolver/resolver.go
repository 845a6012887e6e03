// Package resolver implements the metadata resolution state machine:
// escalating search against the bibliographic provider, candidate scoring
// and validation, override protection, commit under a per-entry lock, and
// failure/recovery scheduling.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/metrics"
)

// Config tunes resolver behavior.
type Config struct {
	// SchemaVersion is stamped onto series rows on every successful commit.
	SchemaVersion int
	// Authoritative names the provider whose ids are required to be native.
	Authoritative catalog.MetadataSource
}

// Resolver processes one library entry at a time. It is safe for concurrent
// use; per-entry ordering is enforced by the store's skip-on-contention lock.
type Resolver struct {
	library  catalog.LibraryStore
	provider catalog.MetadataProvider
	clock    catalog.Clock
	cfg      Config
	retry    *txRetryPolicy
	logger   *zap.Logger
}

// New constructs a Resolver.
func New(
	library catalog.LibraryStore,
	provider catalog.MetadataProvider,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if cfg.SchemaVersion <= 0 {
		cfg.SchemaVersion = 1
	}
	if cfg.Authoritative == catalog.SourceNone {
		cfg.Authoritative = catalog.SourceAniList
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		library:  library,
		provider: provider,
		clock:    clock,
		cfg:      cfg,
		retry:    newTxRetryPolicy(),
		logger:   logger,
	}
}

// Resolve runs one resolution attempt for the entry. A nil return means the
// attempt reached a terminal outcome (enriched, unavailable, merged, or a
// deliberate no-op); a non-nil return is a transient failure the queue
// should retry with backoff.
func (r *Resolver) Resolve(ctx context.Context, entryID string) error {
	entry, err := r.library.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			r.logger.Debug("entry gone before resolution", zap.String("entry_id", entryID))
			return nil
		}
		return fmt.Errorf("load entry %s: %w", entryID, err)
	}

	// Cheap pre-check without the lock. The snapshot is re-verified under
	// the lock before anything is written.
	if skip, reason := precheck(entry); skip {
		r.logger.Debug("resolution skipped",
			zap.String("entry_id", entryID),
			zap.String("reason", reason),
		)
		metrics.ObserveResolution(reason)
		return nil
	}

	resolveErr := r.resolveWithTxRetry(ctx, entryID)
	switch {
	case resolveErr == nil:
		return nil
	case errors.Is(resolveErr, catalog.ErrEntryLocked):
		// Another worker owns the entry; move on rather than wait.
		r.logger.Debug("entry locked, skipping", zap.String("entry_id", entryID))
		metrics.ObserveResolution("skipped_locked")
		return nil
	}

	// Schedule recovery alongside the failure record. The queue retries
	// transient faults with its own backoff, but once its attempts run out
	// only the recovery sweep can bring the entry back, so the entry must
	// never sit in failed without a next retry time.
	sanitized := SanitizeError(resolveErr.Error())
	nextRetry := r.clock.Now().Add(RecoveryDelay(entry.MetadataRetryCount + 1))
	if err := r.library.RecordFailure(ctx, entryID, sanitized, nextRetry); err != nil {
		r.logger.Error("record failure", zap.String("entry_id", entryID), zap.Error(err))
	}
	metrics.ObserveResolution("transient_error")
	r.logger.Warn("resolution failed",
		zap.String("entry_id", entryID),
		zap.String("error", sanitized),
	)
	return resolveErr
}

// resolveWithTxRetry reruns the whole locked transaction on serialization
// conflicts, a small bounded number of times with jittered backoff.
func (r *Resolver) resolveWithTxRetry(ctx context.Context, entryID string) error {
	var err error
	for attempt := 0; attempt < r.retry.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retry.Backoff(attempt - 1)):
			}
		}
		err = r.library.Resolve(ctx, entryID, func(tx catalog.ResolutionTx) error {
			return r.resolveLocked(ctx, tx)
		})
		if !errors.Is(err, catalog.ErrSerialization) {
			return err
		}
		r.logger.Debug("serialization conflict, retrying",
			zap.String("entry_id", entryID),
			zap.Int("attempt", attempt+1),
		)
	}
	return err
}

func (r *Resolver) resolveLocked(ctx context.Context, tx catalog.ResolutionTx) error {
	entry := tx.Entry()
	if skip, _ := precheck(entry); skip {
		return nil
	}

	attempt := entry.MetadataRetryCount + 1
	strat := StrategyForAttempt(attempt)
	r.logger.Debug("resolving entry",
		zap.String("entry_id", entry.ID),
		zap.Int("attempt", attempt),
		zap.String("strategy", strat.Name),
	)

	cands, err := r.searchCandidates(ctx, entry, strat)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		return r.noMatch(ctx, tx, entry, "no candidates")
	}

	best := cands[0]
	if err := ValidateCandidate(best.Record, r.cfg.Authoritative); err != nil {
		// Validation failure degrades to "no match", never a partial commit.
		return r.noMatch(ctx, tx, entry, err.Error())
	}

	record, err := r.fetchRecord(ctx, best.Record)
	if err != nil {
		return err
	}

	exact := ExternalIDFromURL(entry.SourceURL) == best.Record.ExternalID &&
		best.Record.ExternalID != ""
	review := DecideReview(exact, best.Similarity, len(cands), strat)

	seriesID, err := tx.EnsureSeries(ctx, record)
	if err != nil {
		return fmt.Errorf("ensure series: %w", err)
	}
	if err := tx.ApplyMetadata(ctx, seriesID, record, r.cfg.SchemaVersion); err != nil {
		return fmt.Errorf("apply metadata: %w", err)
	}

	peer, err := tx.FindPeerEntry(ctx, entry.UserID, seriesID)
	if err != nil {
		return fmt.Errorf("find peer entry: %w", err)
	}
	if peer != nil && peer.ID != entry.ID {
		if err := r.mergeDuplicate(ctx, tx, entry, *peer); err != nil {
			return err
		}
	}

	if err := tx.MarkEnriched(ctx, seriesID, record.Source, review.NeedsReview, review.Reason); err != nil {
		return fmt.Errorf("mark enriched: %w", err)
	}
	relinked, err := tx.RelinkMatchingEntries(ctx, entry.SourceURL, seriesID)
	if err != nil {
		return fmt.Errorf("relink entries: %w", err)
	}

	metrics.ObserveResolution("enriched")
	r.logger.Info("entry enriched",
		zap.String("entry_id", entry.ID),
		zap.String("series_id", seriesID),
		zap.String("external_id", record.ExternalID),
		zap.Float64("similarity", best.Similarity),
		zap.Bool("needs_review", review.NeedsReview),
		zap.String("review_reason", review.Reason),
		zap.Int("relinked", relinked),
	)
	return nil
}

// fetchRecord pulls the full record by external id. The provider is cache-
// wrapped, so entries sharing an underlying series do not trigger duplicate
// lookups. A missing record falls back to the search hit.
func (r *Resolver) fetchRecord(ctx context.Context, hit catalog.MetadataRecord) (catalog.MetadataRecord, error) {
	record, err := r.provider.FetchByID(ctx, hit.ExternalID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return hit, nil
		}
		return catalog.MetadataRecord{}, fmt.Errorf("provider fetch %s: %w", hit.ExternalID, err)
	}
	return record, nil
}

func (r *Resolver) noMatch(ctx context.Context, tx catalog.ResolutionTx, entry catalog.LibraryEntry, why string) error {
	next := r.clock.Now().Add(RecoveryDelay(entry.MetadataRetryCount + 1))
	if err := tx.MarkUnavailable(ctx, next); err != nil {
		return fmt.Errorf("mark unavailable: %w", err)
	}
	metrics.ObserveResolution("unavailable")
	r.logger.Info("no metadata match",
		zap.String("entry_id", entry.ID),
		zap.String("why", why),
		zap.Time("next_retry_at", next),
	)
	return nil
}

// precheck decides whether resolution is a no-op for this entry state:
// already enriched with no review flag pending, or protected by a manual
// override.
func precheck(entry catalog.LibraryEntry) (bool, string) {
	if entry.MetadataStatus == catalog.MetadataEnriched && !entry.NeedsReview {
		return true, "already_enriched"
	}
	if entry.Overridden() {
		return true, "manual_override"
	}
	return false, ""
}
