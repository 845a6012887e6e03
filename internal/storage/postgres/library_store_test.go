package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/serialhub/internal/catalog"
)

func entryRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "series_id", "title", "source_url", "metadata_status",
		"metadata_source", "manually_linked", "manual_override_at", "metadata_retry_count",
		"metadata_next_retry_at", "last_metadata_error", "needs_review", "review_reason", "progress",
	})
}

func addPendingEntry(rows *pgxmock.Rows, id string) *pgxmock.Rows {
	return rows.AddRow(
		id, "user-1", nil, "Berserk", "https://src.example.com/berserk", catalog.MetadataPending,
		catalog.SourceNone, false, nil, 0,
		nil, "", false, "", 0.0,
	)
}

func newLibraryStore(t *testing.T) (*LibraryStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewLibraryStore(mock, &stubIDs{}, stubClock{now: time.Unix(1700000000, 0).UTC()}), mock
}

func TestGetEntryNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)
	mock.ExpectQuery("SELECT id, user_id, series_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetEntry(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureConsumesAttemptAndSchedulesRecovery(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)
	retryAt := time.Unix(1700000000, 0).UTC().Add(72 * time.Hour)
	mock.ExpectExec("UPDATE library_entries").
		WithArgs("entry-1", "provider timeout", retryAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RecordFailure(context.Background(), "entry-1", "provider timeout", retryAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRunsCallbackUnderLock(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("entry-1").
		WillReturnRows(addPendingEntry(entryRows(), "entry-1"))
	mock.ExpectExec("UPDATE library_entries").
		WithArgs("entry-1", "series-1", catalog.SourceAniList, false, "confident_match").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.Resolve(context.Background(), "entry-1", func(tx catalog.ResolutionTx) error {
		require.Equal(t, "entry-1", tx.Entry().ID)
		require.Equal(t, catalog.MetadataPending, tx.Entry().MetadataStatus)
		return tx.MarkEnriched(context.Background(), "series-1", catalog.SourceAniList, false, "confident_match")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSkipsWhenEntryLocked(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("entry-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("entry-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.Resolve(context.Background(), "entry-1", func(catalog.ResolutionTx) error {
		t.Fatal("callback must not run without the lock")
		return nil
	})
	require.ErrorIs(t, err, catalog.ErrEntryLocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveMissingEntry(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("gone").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := store.Resolve(context.Background(), "gone", func(catalog.ResolutionTx) error { return nil })
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveTranslatesCommitConflict(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("entry-1").
		WillReturnRows(addPendingEntry(entryRows(), "entry-1"))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	err := store.Resolve(context.Background(), "entry-1", func(catalog.ResolutionTx) error { return nil })
	require.ErrorIs(t, err, catalog.ErrSerialization)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSeriesReusesExistingRow(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)
	record := catalog.MetadataRecord{ExternalID: "30002", Source: catalog.SourceAniList, Title: "Berserk"}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("entry-1").
		WillReturnRows(addPendingEntry(entryRows(), "entry-1"))
	mock.ExpectQuery("SELECT id FROM series").
		WithArgs(record.Source, record.ExternalID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("series-1"))
	mock.ExpectCommit()

	err := store.Resolve(context.Background(), "entry-1", func(tx catalog.ResolutionTx) error {
		id, err := tx.EnsureSeries(context.Background(), record)
		require.NoError(t, err)
		require.Equal(t, "series-1", id)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSeriesInsertRaceSurfacesAsSerialization(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)
	record := catalog.MetadataRecord{ExternalID: "30002", Source: catalog.SourceAniList, Title: "Berserk"}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("entry-1").
		WillReturnRows(addPendingEntry(entryRows(), "entry-1"))
	mock.ExpectQuery("SELECT id FROM series").
		WithArgs(record.Source, record.ExternalID).
		WillReturnError(pgx.ErrNoRows)
	// A concurrent resolution wins the insert race; the unique violation must
	// surface as a serialization conflict so the caller retries the whole
	// transaction and finds the winner's row.
	mock.ExpectExec("INSERT INTO series").
		WithArgs(pgxmock.AnyArg(), record.Title, record.CoverURL, record.Description,
			record.ExternalID, record.Source, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.Resolve(context.Background(), "entry-1", func(tx catalog.ResolutionTx) error {
		_, err := tx.EnsureSeries(context.Background(), record)
		return err
	})
	require.ErrorIs(t, err, catalog.ErrSerialization)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMetadataRespectsSourceRank(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)
	record := catalog.MetadataRecord{ExternalID: "x", Source: catalog.SourceScraper, Title: "Scraped Title"}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("entry-1").
		WillReturnRows(addPendingEntry(entryRows(), "entry-1"))
	// Series already carries user-override metadata; the scraper record must
	// not issue an update at all.
	mock.ExpectQuery("SELECT metadata_source FROM series").
		WithArgs("series-1").
		WillReturnRows(pgxmock.NewRows([]string{"metadata_source"}).AddRow(catalog.SourceUserOverride))
	mock.ExpectCommit()

	err := store.Resolve(context.Background(), "entry-1", func(tx catalog.ResolutionTx) error {
		return tx.ApplyMetadata(context.Background(), "series-1", record, 2)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPeerEntryReturnsNilWhenAbsent(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("entry-1").
		WillReturnRows(addPendingEntry(entryRows(), "entry-1"))
	mock.ExpectQuery("SELECT id, user_id, series_id").
		WithArgs("user-1", "series-1", "entry-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	err := store.Resolve(context.Background(), "entry-1", func(tx catalog.ResolutionTx) error {
		peer, err := tx.FindPeerEntry(context.Background(), "user-1", "series-1")
		require.NoError(t, err)
		require.Nil(t, peer)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueForRecovery(t *testing.T) {
	t.Parallel()

	store, mock := newLibraryStore(t)
	now := time.Unix(1700000000, 0).UTC()
	retryAt := now.Add(-time.Hour)

	rows := entryRows().AddRow(
		"entry-2", "user-1", nil, "Dropped", "https://src.example.com/dropped", catalog.MetadataUnavailable,
		catalog.SourceNone, false, nil, 2,
		&retryAt, "no candidates", false, "", 0.0,
	)
	mock.ExpectQuery("SELECT id, user_id, series_id").
		WithArgs(now, 100).
		WillReturnRows(rows)

	out, err := store.ListDueForRecovery(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "entry-2", out[0].ID)
	require.Equal(t, 2, out[0].MetadataRetryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
