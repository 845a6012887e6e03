package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/calyptra/serialhub/internal/catalog"
)

// SeriesStore implements catalog.SeriesStore. All writes are field-scoped so
// the synchronizer, resolver, and activity engine never clobber each other's
// columns.
type SeriesStore struct {
	pool dbPool
}

// NewSeriesStore constructs a SeriesStore on the shared pool.
func NewSeriesStore(pool dbPool) *SeriesStore {
	return &SeriesStore{pool: pool}
}

const seriesColumns = `id, title, cover_url, description, external_id,
	metadata_source, metadata_status, metadata_schema_version, activity_score,
	catalog_tier, tier_reason, last_activity_at, last_chapter_at,
	max_chapter_number, follows, library_count, weekly_readers, curated`

// GetSeries loads one series row.
func (s *SeriesStore) GetSeries(ctx context.Context, id string) (catalog.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series WHERE id = $1;`
	row := s.pool.QueryRow(ctx, query, id)
	series, err := scanSeries(row)
	if err != nil {
		if err = translateErr(err); err == catalog.ErrNotFound {
			return catalog.Series{}, catalog.ErrNotFound
		}
		return catalog.Series{}, fmt.Errorf("get series: %w", err)
	}
	return series, nil
}

// AdvanceMaxChapter raises max_chapter_number and last_chapter_at. GREATEST
// keeps the operation monotone under concurrent batches.
func (s *SeriesStore) AdvanceMaxChapter(ctx context.Context, seriesID string, number float64, at time.Time) error {
	query := `
		UPDATE series
		SET max_chapter_number = GREATEST(COALESCE(max_chapter_number, 0), $2),
			last_chapter_at = GREATEST(COALESCE(last_chapter_at, 'epoch'::timestamptz), $3),
			last_activity_at = GREATEST(COALESCE(last_activity_at, 'epoch'::timestamptz), $3),
			updated_at = now()
		WHERE id = $1;
	`
	if _, err := s.pool.Exec(ctx, query, seriesID, number, at); err != nil {
		return fmt.Errorf("advance max chapter: %w", translateErr(err))
	}
	return nil
}

// SetCoverIfEmpty fills the cover only when none is set.
func (s *SeriesStore) SetCoverIfEmpty(ctx context.Context, seriesID, coverURL string) error {
	query := `
		UPDATE series
		SET cover_url = $2, updated_at = now()
		WHERE id = $1 AND (cover_url IS NULL OR cover_url = '');
	`
	if _, err := s.pool.Exec(ctx, query, seriesID, coverURL); err != nil {
		return fmt.Errorf("set cover: %w", translateErr(err))
	}
	return nil
}

// UpdateScoring writes the recomputed score, tier, and reason.
func (s *SeriesStore) UpdateScoring(ctx context.Context, seriesID string, score float64, tier catalog.CatalogTier, reason string, at time.Time) error {
	query := `
		UPDATE series
		SET activity_score = $2, catalog_tier = $3, tier_reason = $4, updated_at = $5
		WHERE id = $1;
	`
	if _, err := s.pool.Exec(ctx, query, seriesID, score, tier, reason, at); err != nil {
		return fmt.Errorf("update scoring: %w", translateErr(err))
	}
	return nil
}

// TouchActivity raises last_activity_at; it never lowers it.
func (s *SeriesStore) TouchActivity(ctx context.Context, seriesID string, at time.Time) error {
	query := `
		UPDATE series
		SET last_activity_at = GREATEST(COALESCE(last_activity_at, 'epoch'::timestamptz), $2)
		WHERE id = $1;
	`
	if _, err := s.pool.Exec(ctx, query, seriesID, at); err != nil {
		return fmt.Errorf("touch activity: %w", translateErr(err))
	}
	return nil
}

// ListDemotionCandidates returns tier-A, non-curated series with no recorded
// activity since the cutoff.
func (s *SeriesStore) ListDemotionCandidates(ctx context.Context, inactiveSince time.Time, limit int) ([]catalog.Series, error) {
	query := `
		SELECT ` + seriesColumns + `
		FROM series
		WHERE catalog_tier = 'A'
			AND NOT curated
			AND (last_activity_at IS NULL OR last_activity_at < $1)
		ORDER BY last_activity_at ASC NULLS FIRST
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, query, inactiveSince, limit)
	if err != nil {
		return nil, fmt.Errorf("list demotion candidates: %w", translateErr(err))
	}
	defer rows.Close()

	var out []catalog.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		out = append(out, series)
	}
	return out, rows.Err()
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(row rowScanner) (catalog.Series, error) {
	var s catalog.Series
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.CoverURL,
		&s.Description,
		&s.ExternalID,
		&s.MetadataSource,
		&s.MetadataStatus,
		&s.MetadataSchemaVersion,
		&s.ActivityScore,
		&s.CatalogTier,
		&s.TierReason,
		&s.LastActivityAt,
		&s.LastChapterAt,
		&s.MaxChapterNumber,
		&s.Follows,
		&s.LibraryCount,
		&s.WeeklyReaders,
		&s.Curated,
	)
	return s, err
}
