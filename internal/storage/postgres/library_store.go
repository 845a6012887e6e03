package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/calyptra/serialhub/internal/catalog"
)

// LibraryStore implements catalog.LibraryStore. Resolution runs inside a
// serializable transaction holding the entry's row lock, acquired with SKIP
// LOCKED so contending workers skip instead of queueing.
type LibraryStore struct {
	pool  dbPool
	ids   catalog.IDGenerator
	clock catalog.Clock
}

// NewLibraryStore constructs a LibraryStore on the shared pool.
func NewLibraryStore(pool dbPool, ids catalog.IDGenerator, clock catalog.Clock) *LibraryStore {
	return &LibraryStore{pool: pool, ids: ids, clock: clock}
}

const entryColumns = `id, user_id, series_id, title, source_url, metadata_status,
	metadata_source, manually_linked, manual_override_at, metadata_retry_count,
	metadata_next_retry_at, last_metadata_error, needs_review, review_reason, progress`

// GetEntry loads one live library entry.
func (s *LibraryStore) GetEntry(ctx context.Context, id string) (catalog.LibraryEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM library_entries WHERE id = $1 AND deleted_at IS NULL;`
	entry, err := scanEntry(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err = translateErr(err); err == catalog.ErrNotFound {
			return catalog.LibraryEntry{}, catalog.ErrNotFound
		}
		return catalog.LibraryEntry{}, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// RecordFailure persists a sanitized error, consumes one attempt, and leaves
// the entry scheduled for recovery. It runs outside any resolution
// transaction so the failure survives the rollback that produced it, and it
// always sets metadata_next_retry_at: once the queue's transient-retry
// budget is exhausted and the job goes dead, the recovery sweep is the only
// path back to pending.
func (s *LibraryStore) RecordFailure(ctx context.Context, id, sanitized string, nextRetryAt time.Time) error {
	query := `
		UPDATE library_entries
		SET metadata_status = 'failed',
			last_metadata_error = $2,
			metadata_retry_count = metadata_retry_count + 1,
			metadata_next_retry_at = $3,
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL;
	`
	if _, err := s.pool.Exec(ctx, query, id, sanitized, nextRetryAt); err != nil {
		return fmt.Errorf("record failure: %w", translateErr(err))
	}
	return nil
}

// ListDueForRecovery returns entries whose scheduled retry time has passed.
func (s *LibraryStore) ListDueForRecovery(ctx context.Context, now time.Time, limit int) ([]catalog.LibraryEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM library_entries
		WHERE metadata_status IN ('unavailable', 'failed')
			AND metadata_next_retry_at IS NOT NULL
			AND metadata_next_retry_at <= $1
			AND NOT manually_linked
			AND deleted_at IS NULL
		ORDER BY metadata_next_retry_at ASC
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due for recovery: %w", translateErr(err))
	}
	defer rows.Close()

	var out []catalog.LibraryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// MarkPending returns an entry to the pending state ahead of a retry.
func (s *LibraryStore) MarkPending(ctx context.Context, id string) error {
	query := `
		UPDATE library_entries
		SET metadata_status = 'pending', metadata_next_retry_at = NULL, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL;
	`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark pending: %w", translateErr(err))
	}
	return nil
}

// Resolve opens a serializable transaction, takes the entry's row lock with
// SKIP LOCKED, re-reads the entry, and runs fn. ErrEntryLocked means another
// worker holds the lock; ErrSerialization means the commit conflicted and
// the whole call may be retried.
func (s *LibraryStore) Resolve(ctx context.Context, entryID string, fn func(tx catalog.ResolutionTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin resolution: %w", translateErr(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := `
		SELECT ` + entryColumns + `
		FROM library_entries
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE SKIP LOCKED;
	`
	entry, err := scanEntry(tx.QueryRow(ctx, lockQuery, entryID))
	if err != nil {
		if translateErr(err) != catalog.ErrNotFound {
			return fmt.Errorf("lock entry: %w", translateErr(err))
		}
		// No row under SKIP LOCKED: either the entry is gone or another
		// worker holds its lock.
		var exists bool
		probe := `SELECT EXISTS (SELECT 1 FROM library_entries WHERE id = $1 AND deleted_at IS NULL);`
		if probeErr := tx.QueryRow(ctx, probe, entryID).Scan(&exists); probeErr != nil {
			return fmt.Errorf("probe entry: %w", translateErr(probeErr))
		}
		if exists {
			return catalog.ErrEntryLocked
		}
		return catalog.ErrNotFound
	}

	rtx := &resolutionTx{store: s, tx: tx, entry: entry}
	if err := fn(rtx); err != nil {
		return translateErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit resolution: %w", translateErr(err))
	}
	return nil
}

// resolutionTx implements catalog.ResolutionTx over the open transaction.
type resolutionTx struct {
	store *LibraryStore
	tx    pgx.Tx
	entry catalog.LibraryEntry
}

func (r *resolutionTx) Entry() catalog.LibraryEntry { return r.entry }

func (r *resolutionTx) EnsureSeries(ctx context.Context, record catalog.MetadataRecord) (string, error) {
	selectQuery := `SELECT id FROM series WHERE metadata_source = $1 AND external_id = $2;`
	var id string
	err := r.tx.QueryRow(ctx, selectQuery, record.Source, record.ExternalID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if translateErr(err) != catalog.ErrNotFound {
		return "", fmt.Errorf("find series: %w", translateErr(err))
	}

	id, err = r.store.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate series id: %w", err)
	}
	insertQuery := `
		INSERT INTO series (id, title, cover_url, description, external_id, metadata_source,
			metadata_status, catalog_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'enriched', 'C', $7, $7);
	`
	if _, err := r.tx.Exec(ctx, insertQuery,
		id, record.Title, record.CoverURL, record.Description,
		record.ExternalID, record.Source, r.store.clock.Now(),
	); err != nil {
		return "", fmt.Errorf("insert series: %w", translateErr(err))
	}
	return id, nil
}

func (r *resolutionTx) ApplyMetadata(ctx context.Context, seriesID string, record catalog.MetadataRecord, schemaVersion int) error {
	var current catalog.MetadataSource
	selectQuery := `SELECT metadata_source FROM series WHERE id = $1;`
	if err := r.tx.QueryRow(ctx, selectQuery, seriesID).Scan(&current); err != nil {
		return fmt.Errorf("read metadata source: %w", translateErr(err))
	}
	// A lower-ranked source never overwrites a higher-ranked one's fields.
	if record.Source.Rank() < current.Rank() {
		return nil
	}

	updateQuery := `
		UPDATE series
		SET title = $2,
			cover_url = CASE WHEN $3 <> '' THEN $3 ELSE cover_url END,
			description = CASE WHEN $4 <> '' THEN $4 ELSE description END,
			external_id = $5,
			metadata_source = $6,
			metadata_status = 'enriched',
			metadata_schema_version = $7,
			updated_at = now()
		WHERE id = $1;
	`
	if _, err := r.tx.Exec(ctx, updateQuery,
		seriesID, record.Title, record.CoverURL, record.Description,
		record.ExternalID, record.Source, schemaVersion,
	); err != nil {
		return fmt.Errorf("apply metadata: %w", translateErr(err))
	}
	return nil
}

func (r *resolutionTx) MarkEnriched(ctx context.Context, seriesID string, source catalog.MetadataSource, needsReview bool, reviewReason string) error {
	query := `
		UPDATE library_entries
		SET series_id = $2,
			metadata_status = 'enriched',
			metadata_source = $3,
			needs_review = $4,
			review_reason = $5,
			metadata_next_retry_at = NULL,
			last_metadata_error = '',
			updated_at = now()
		WHERE id = $1;
	`
	if _, err := r.tx.Exec(ctx, query, r.entry.ID, seriesID, source, needsReview, reviewReason); err != nil {
		return fmt.Errorf("mark enriched: %w", translateErr(err))
	}
	return nil
}

func (r *resolutionTx) MarkUnavailable(ctx context.Context, nextRetryAt time.Time) error {
	return r.markUnavailable(ctx, r.entry.ID, nextRetryAt, false)
}

func (r *resolutionTx) MarkEntryUnavailable(ctx context.Context, entryID string, nextRetryAt time.Time) error {
	return r.markUnavailable(ctx, entryID, nextRetryAt, true)
}

func (r *resolutionTx) markUnavailable(ctx context.Context, entryID string, nextRetryAt time.Time, unlink bool) error {
	query := `
		UPDATE library_entries
		SET metadata_status = 'unavailable',
			metadata_retry_count = metadata_retry_count + 1,
			metadata_next_retry_at = $2,
			series_id = CASE WHEN $3 THEN NULL ELSE series_id END,
			updated_at = now()
		WHERE id = $1;
	`
	if _, err := r.tx.Exec(ctx, query, entryID, nextRetryAt, unlink); err != nil {
		return fmt.Errorf("mark unavailable: %w", translateErr(err))
	}
	return nil
}

func (r *resolutionTx) RelinkMatchingEntries(ctx context.Context, sourceURL, seriesID string) (int, error) {
	query := `
		UPDATE library_entries
		SET series_id = $2, metadata_status = 'enriched', updated_at = now()
		WHERE source_url = $1
			AND series_id IS NULL
			AND NOT manually_linked
			AND id <> $3
			AND deleted_at IS NULL;
	`
	tag, err := r.tx.Exec(ctx, query, sourceURL, seriesID, r.entry.ID)
	if err != nil {
		return 0, fmt.Errorf("relink entries: %w", translateErr(err))
	}
	return int(tag.RowsAffected()), nil
}

func (r *resolutionTx) FindPeerEntry(ctx context.Context, userID, seriesID string) (*catalog.LibraryEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM library_entries
		WHERE user_id = $1 AND series_id = $2 AND id <> $3 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1;
	`
	entry, err := scanEntry(r.tx.QueryRow(ctx, query, userID, seriesID, r.entry.ID))
	if err != nil {
		if translateErr(err) == catalog.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find peer entry: %w", translateErr(err))
	}
	return &entry, nil
}

func (r *resolutionTx) SetProgress(ctx context.Context, entryID string, progress float64) error {
	query := `UPDATE library_entries SET progress = $2, updated_at = now() WHERE id = $1;`
	if _, err := r.tx.Exec(ctx, query, entryID, progress); err != nil {
		return fmt.Errorf("set progress: %w", translateErr(err))
	}
	return nil
}

func (r *resolutionTx) DeleteEntry(ctx context.Context, entryID string) error {
	query := `UPDATE library_entries SET deleted_at = now() WHERE id = $1;`
	if _, err := r.tx.Exec(ctx, query, entryID); err != nil {
		return fmt.Errorf("delete entry: %w", translateErr(err))
	}
	return nil
}

func scanEntry(row rowScanner) (catalog.LibraryEntry, error) {
	var e catalog.LibraryEntry
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.SeriesID,
		&e.Title,
		&e.SourceURL,
		&e.MetadataStatus,
		&e.MetadataSource,
		&e.ManuallyLinked,
		&e.ManualOverrideAt,
		&e.MetadataRetryCount,
		&e.MetadataNextRetryAt,
		&e.LastMetadataError,
		&e.NeedsReview,
		&e.ReviewReason,
		&e.Progress,
	)
	return e, err
}
