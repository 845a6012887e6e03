package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/serialhub/internal/catalog"
)

func chapterUpsert() catalog.ChapterUpsert {
	return catalog.ChapterUpsert{
		SeriesID:      "series-1",
		ChapterNumber: "10",
		Slug:          "normal-10",
		Title:         "The Tenth",
		SourceID:      "src-a",
		SourceName:    "alpha",
		SourceURL:     "https://alpha.example.com/c/10",
	}
}

func TestUpsertChapterCreatesChapterAndLink(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewChapterStore(mock, &stubIDs{}, stubClock{now: time.Unix(1700000000, 0).UTC()})
	u := chapterUpsert()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT id FROM logical_chapters").
		WithArgs(u.SeriesID, u.ChapterNumber).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO logical_chapters").
		WithArgs(pgxmock.AnyArg(), u.SeriesID, u.ChapterNumber, u.Slug, u.Title, u.PublishedAt, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("chapter-1"))
	mock.ExpectExec("INSERT INTO chapter_source_links").
		WithArgs(pgxmock.AnyArg(), "chapter-1", u.SourceID, u.SourceName, u.SourceURL, u.PublishedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := store.UpsertChapter(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, "chapter-1", res.LogicalChapterID)
	require.True(t, res.ChapterCreated)
	require.True(t, res.LinkCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChapterLinksExistingChapter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewChapterStore(mock, &stubIDs{}, stubClock{now: time.Unix(1700000000, 0).UTC()})
	u := chapterUpsert()
	u.SourceID = "src-b"

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT id FROM logical_chapters").
		WithArgs(u.SeriesID, u.ChapterNumber).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("chapter-1"))
	mock.ExpectExec("INSERT INTO chapter_source_links").
		WithArgs(pgxmock.AnyArg(), "chapter-1", u.SourceID, u.SourceName, u.SourceURL, u.PublishedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := store.UpsertChapter(context.Background(), u)
	require.NoError(t, err)
	require.False(t, res.ChapterCreated)
	require.True(t, res.LinkCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChapterRefreshesExistingLink(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewChapterStore(mock, &stubIDs{}, stubClock{now: time.Unix(1700000000, 0).UTC()})
	u := chapterUpsert()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT id FROM logical_chapters").
		WithArgs(u.SeriesID, u.ChapterNumber).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("chapter-1"))
	mock.ExpectExec("INSERT INTO chapter_source_links").
		WithArgs(pgxmock.AnyArg(), "chapter-1", u.SourceID, u.SourceName, u.SourceURL, u.PublishedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("UPDATE chapter_source_links").
		WithArgs(u.SourceID, "chapter-1", u.SourceURL, u.PublishedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := store.UpsertChapter(context.Background(), u)
	require.NoError(t, err)
	require.False(t, res.ChapterCreated)
	require.False(t, res.LinkCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChapterLosingInsertRaceFallsBackToWinner(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewChapterStore(mock, &stubIDs{}, stubClock{now: time.Unix(1700000000, 0).UTC()})
	u := chapterUpsert()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT id FROM logical_chapters").
		WithArgs(u.SeriesID, u.ChapterNumber).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO logical_chapters").
		WithArgs(pgxmock.AnyArg(), u.SeriesID, u.ChapterNumber, u.Slug, u.Title, u.PublishedAt, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id FROM logical_chapters").
		WithArgs(u.SeriesID, u.ChapterNumber).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("chapter-winner"))
	mock.ExpectExec("INSERT INTO chapter_source_links").
		WithArgs(pgxmock.AnyArg(), "chapter-winner", u.SourceID, u.SourceName, u.SourceURL, u.PublishedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := store.UpsertChapter(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, "chapter-winner", res.LogicalChapterID)
	require.False(t, res.ChapterCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}
