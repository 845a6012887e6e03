package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/calyptra/serialhub/internal/catalog"
)

// ChapterStore implements catalog.ChapterStore. Logical chapters are unique
// on (series_id, chapter_number) among live rows; source links are unique on
// (source_id, logical_chapter_id).
type ChapterStore struct {
	pool  dbPool
	ids   catalog.IDGenerator
	clock catalog.Clock
}

// NewChapterStore constructs a ChapterStore on the shared pool.
func NewChapterStore(pool dbPool, ids catalog.IDGenerator, clock catalog.Clock) *ChapterStore {
	return &ChapterStore{pool: pool, ids: ids, clock: clock}
}

// UpsertChapter runs one bounded transaction: find-or-create the logical
// chapter, then upsert this source's link to it. A concurrent insert of the
// same identity loses the ON CONFLICT race and falls back to the winner's
// row, so two sources sighting the same chapter at once still converge on
// one logical row.
func (s *ChapterStore) UpsertChapter(ctx context.Context, u catalog.ChapterUpsert) (catalog.ChapterUpsertResult, error) {
	var res catalog.ChapterUpsertResult

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, fmt.Errorf("begin chapter upsert: %w", translateErr(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	chapterID, created, err := s.findOrCreateChapter(ctx, tx, u)
	if err != nil {
		return res, err
	}
	res.LogicalChapterID = chapterID
	res.ChapterCreated = created

	linkCreated, err := s.upsertLink(ctx, tx, chapterID, u)
	if err != nil {
		return res, err
	}
	res.LinkCreated = linkCreated

	if err := tx.Commit(ctx); err != nil {
		return catalog.ChapterUpsertResult{}, fmt.Errorf("commit chapter upsert: %w", translateErr(err))
	}
	return res, nil
}

func (s *ChapterStore) findOrCreateChapter(ctx context.Context, tx pgx.Tx, u catalog.ChapterUpsert) (string, bool, error) {
	selectQuery := `
		SELECT id FROM logical_chapters
		WHERE series_id = $1 AND chapter_number = $2 AND deleted_at IS NULL;
	`
	var id string
	err := tx.QueryRow(ctx, selectQuery, u.SeriesID, u.ChapterNumber).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if translateErr(err) != catalog.ErrNotFound {
		return "", false, fmt.Errorf("find logical chapter: %w", translateErr(err))
	}

	newID, err := s.ids.NewID()
	if err != nil {
		return "", false, fmt.Errorf("generate chapter id: %w", err)
	}
	insertQuery := `
		INSERT INTO logical_chapters (id, series_id, chapter_number, slug, title, published_at, first_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (series_id, chapter_number) WHERE deleted_at IS NULL DO NOTHING
		RETURNING id;
	`
	err = tx.QueryRow(ctx, insertQuery,
		newID, u.SeriesID, u.ChapterNumber, u.Slug, u.Title, u.PublishedAt, s.clock.Now(),
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if translateErr(err) != catalog.ErrNotFound {
		return "", false, fmt.Errorf("insert logical chapter: %w", translateErr(err))
	}

	// Lost the race; the winner's row exists now.
	if err := tx.QueryRow(ctx, selectQuery, u.SeriesID, u.ChapterNumber).Scan(&id); err != nil {
		return "", false, fmt.Errorf("refind logical chapter: %w", translateErr(err))
	}
	return id, false, nil
}

func (s *ChapterStore) upsertLink(ctx context.Context, tx pgx.Tx, chapterID string, u catalog.ChapterUpsert) (bool, error) {
	linkID, err := s.ids.NewID()
	if err != nil {
		return false, fmt.Errorf("generate link id: %w", err)
	}
	insertQuery := `
		INSERT INTO chapter_source_links (id, logical_chapter_id, source_id, source_name, source_url, published_at, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id, logical_chapter_id) DO NOTHING;
	`
	tag, err := tx.Exec(ctx, insertQuery,
		linkID, chapterID, u.SourceID, u.SourceName, u.SourceURL, u.PublishedAt, s.clock.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("insert source link: %w", translateErr(err))
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Existing link: keep its URL current, nothing else changes.
	updateQuery := `
		UPDATE chapter_source_links
		SET source_url = $3, published_at = COALESCE($4, published_at)
		WHERE source_id = $1 AND logical_chapter_id = $2;
	`
	if _, err := tx.Exec(ctx, updateQuery, u.SourceID, chapterID, u.SourceURL, u.PublishedAt); err != nil {
		return false, fmt.Errorf("refresh source link: %w", translateErr(err))
	}
	return false, nil
}

// ListChapters returns the live logical chapters of a series, ordered by
// first sighting.
func (s *ChapterStore) ListChapters(ctx context.Context, seriesID string) ([]catalog.LogicalChapter, error) {
	query := `
		SELECT id, series_id, chapter_number, slug, title, published_at, first_seen_at, deleted_at
		FROM logical_chapters
		WHERE series_id = $1 AND deleted_at IS NULL
		ORDER BY first_seen_at ASC;
	`
	rows, err := s.pool.Query(ctx, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", translateErr(err))
	}
	defer rows.Close()

	var out []catalog.LogicalChapter
	for rows.Next() {
		var c catalog.LogicalChapter
		if err := rows.Scan(&c.ID, &c.SeriesID, &c.ChapterNumber, &c.Slug, &c.Title, &c.PublishedAt, &c.FirstSeenAt, &c.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan chapter row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
