package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	driver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/audioscan/internal/domain/scanerrors"
	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

var recordCols = []string{
	"id", "release_id", "track_id", "artist_id", "external_job_id",
	"scan_status", "ai_detected", "ai_confidence", "model_signature", "scan_passed", "flagged_reason",
	"admin_reviewed", "admin_decision", "admin_notes", "admin_reviewer_id", "admin_reviewed_at",
	"raw_result", "created_at", "updated_at",
}

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*ScanRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewScanRepository(conn), mock
}

func flaggedRow(rows *sqlmock.Rows, id string) *sqlmock.Rows {
	return rows.AddRow(id, "rel-1", "trk-"+id, "artist-1", "job-"+id,
		"flagged", true, 92.5, "suno-v3", false, "AI-generated music detected (92.5% confidence)",
		false, nil, nil, nil, nil,
		[]byte(`{"status":"completed"}`), t0, t0.Add(time.Minute))
}

func TestGet(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id=? LIMIT 1")).
		WithArgs("s1").
		WillReturnRows(flaggedRow(sqlmock.NewRows(recordCols), "s1"))

	rec, err := repo.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.ScanFlagged, rec.ScanStatus)
	require.NotNil(t, rec.AIConfidence)
	assert.Equal(t, 92.5, *rec.AIConfidence)
	assert.Equal(t, "suno-v3", *rec.ModelSignature)
	assert.False(t, rec.Passed())
	assert.Nil(t, rec.AdminDecision)
	assert.JSONEq(t, `{"status":"completed"}`, string(rec.RawResult))
	assert.Equal(t, t0.Add(time.Minute), rec.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM audio_scan_records").WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFlaggedFilter(t *testing.T) {
	repo, mock := newMock(t)
	reviewed := false
	mock.ExpectQuery(regexp.QuoteMeta("WHERE scan_status=? AND admin_reviewed = ?")).
		WithArgs("flagged", false, 50).
		WillReturnRows(flaggedRow(flaggedRow(sqlmock.NewRows(recordCols), "s2"), "s1"))

	list, err := repo.ListFlagged(context.Background(), &reviewed, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.ScanID("s2"), list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxCommit(t *testing.T) {
	repo, mock := newMock(t)
	rec := &domain.ScanRecord{
		ID: "s1", ReleaseID: "rel-1", TrackID: "trk-1", ArtistID: "artist-1", ExternalJobID: "job-1",
		ScanStatus: domain.ScanProcessing, CreatedAt: t0, UpdatedAt: t0,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT audio_scan_status FROM releases WHERE id=? FOR UPDATE")).
		WithArgs("rel-1").
		WillReturnRows(sqlmock.NewRows([]string{"audio_scan_status"}).AddRow(nil))
	mock.ExpectExec("INSERT INTO audio_scan_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE releases SET audio_scan_status=?")).
		WithArgs("scanning", "rel-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx domain.Tx) error {
		prev, err := tx.LockRelease(context.Background(), "rel-1")
		if err != nil {
			return err
		}
		assert.Equal(t, domain.ReleaseStatus(""), prev)
		if err := tx.Insert(context.Background(), rec); err != nil {
			return err
		}
		return tx.SetReleaseStatus(context.Background(), "rel-1", domain.ReleaseScanning)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxDuplicateRollsBack(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audio_scan_records").
		WillReturnError(&driver.MySQLError{Number: errDupEntry, Message: "Duplicate entry 'job-1'"})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx domain.Tx) error {
		return tx.Insert(context.Background(), &domain.ScanRecord{ID: "s1", ExternalJobID: "job-1", CreatedAt: t0})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxLockMissingRelease(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows([]string{"audio_scan_status"}))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx domain.Tx) error {
		_, err := tx.LockRelease(context.Background(), "rel-x")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxCommitFailure(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	err := repo.InTx(context.Background(), func(domain.Tx) error { return nil })
	assert.ErrorContains(t, err, "commit tx")
}

func TestReleaseOwner(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT artist_id FROM releases")).
		WithArgs("rel-1").
		WillReturnRows(sqlmock.NewRows([]string{"artist_id"}).AddRow("artist-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT artist_id FROM releases")).
		WithArgs("rel-2").
		WillReturnRows(sqlmock.NewRows([]string{"artist_id"}))

	owner, err := repo.ReleaseOwner(context.Background(), "rel-1")
	require.NoError(t, err)
	assert.Equal(t, "artist-1", owner)

	_, err = repo.ReleaseOwner(context.Background(), "rel-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScanErrorSave(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	repo := NewScanErrorRepository(conn)

	mock.ExpectExec("INSERT INTO audio_scan_errors").
		WithArgs("-", "rel-1", "trk-1", "submit", "detector 503", `{"raw":"not json"}`, t0).
		WillReturnResult(sqlmock.NewResult(7, 1))

	e := &scanerrors.ScanError{
		ReleaseID:   "rel-1",
		TrackID:     "trk-1",
		Phase:       scanerrors.PhaseSubmit,
		Message:     "detector 503",
		DetailsJSON: "not json",
		CreatedAt:   t0,
	}
	require.NoError(t, repo.Save(context.Background(), e))
	assert.Equal(t, int64(7), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
