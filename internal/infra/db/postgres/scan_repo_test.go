package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/audioscan/internal/domain/scanerrors"
	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*ScanRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewScanRepository(conn), mock
}

func TestSaveMissingRow(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audio_scan_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx domain.Tx) error {
		return tx.Save(context.Background(), &domain.ScanRecord{ID: "ghost", ScanStatus: domain.ScanCompleted, UpdatedAt: t0})
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUniqueViolation(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audio_scan_records").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx domain.Tx) error {
		return tx.Insert(context.Background(), &domain.ScanRecord{ID: "s1", ExternalJobID: "job-1", CreatedAt: t0})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFlaggedPlaceholders(t *testing.T) {
	repo, mock := newMock(t)
	cols := []string{"id"}

	reviewed := true
	mock.ExpectQuery(regexp.QuoteMeta("WHERE scan_status=$1 AND admin_reviewed = $2 ORDER BY created_at DESC, id DESC LIMIT $3;")).
		WithArgs("flagged", true, 10).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE scan_status=$1 ORDER BY created_at DESC, id DESC LIMIT $2;")).
		WithArgs("flagged", 50).
		WillReturnRows(sqlmock.NewRows(cols))

	list, err := repo.ListFlagged(context.Background(), &reviewed, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = repo.ListFlagged(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStatusNull(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT audio_scan_status FROM releases WHERE id=$1")).
		WithArgs("rel-1").
		WillReturnRows(sqlmock.NewRows([]string{"audio_scan_status"}).AddRow(nil))

	st, err := repo.ReleaseStatus(context.Background(), "rel-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReleaseStatus(""), st)
}

func TestScanErrorSaveReturningID(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	repo := NewScanErrorRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta("RETURNING id")).
		WithArgs("scan-1", "rel-1", "trk-1", "reconcile", "-", "{}", t0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	e := &scanerrors.ScanError{ScanID: "scan-1", ReleaseID: "rel-1", TrackID: "trk-1", Phase: scanerrors.PhaseReconcile, CreatedAt: t0}
	require.NoError(t, repo.Save(context.Background(), e))
	assert.Equal(t, int64(42), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
