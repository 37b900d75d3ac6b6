package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stagepass/audioscan/internal/infra/db"
	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// InTx runs fn in a READ COMMITTED transaction so reads made after
// LockRelease see every commit that happened before the lock was granted.
func (r *ScanRepository) InTx(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&scanTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get by ID
func (r *ScanRepository) Get(ctx context.Context, id domain.ScanID) (*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE id=? LIMIT 1;`
	rec, err := db.ScanRecord(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

// GetByJobID lookup by detector job id
func (r *ScanRepository) GetByJobID(ctx context.Context, jobID string) (*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE external_job_id=? LIMIT 1;`
	rec, err := db.ScanRecord(r.db.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return rec, err
}

func (r *ScanRepository) ListByRelease(ctx context.Context, releaseID string) ([]*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE release_id=?
ORDER BY created_at ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q, releaseID)
	if err != nil {
		return nil, fmt.Errorf("querying release scans: %w", err)
	}
	return db.ScanRecords(rows)
}

// ListFlagged antrian review admin, terbaru dulu
func (r *ScanRepository) ListFlagged(ctx context.Context, reviewed *bool, limit int) ([]*domain.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE scan_status=?`
	args := []any{string(domain.ScanFlagged)}
	if reviewed != nil {
		query += " AND admin_reviewed = ?"
		args = append(args, *reviewed)
	}
	query += "\nORDER BY created_at DESC, id DESC\nLIMIT ?;"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying flagged scans: %w", err)
	}
	return db.ScanRecords(rows)
}

func (r *ScanRepository) ListInFlight(ctx context.Context, limit int) ([]*domain.ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE scan_status IN (?, ?)
ORDER BY created_at ASC, id ASC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, string(domain.ScanPending), string(domain.ScanProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("querying in-flight scans: %w", err)
	}
	return db.ScanRecords(rows)
}

func (r *ScanRepository) ReleaseStatus(ctx context.Context, releaseID string) (domain.ReleaseStatus, error) {
	const q = `SELECT audio_scan_status FROM releases WHERE id=? LIMIT 1;`
	var st sql.NullString
	if err := r.db.QueryRowContext(ctx, q, releaseID).Scan(&st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
		}
		return "", err
	}
	return domain.ReleaseStatus(st.String), nil
}

// ReleaseOwner implements scans.OwnershipChecker from the releases table.
func (r *ScanRepository) ReleaseOwner(ctx context.Context, releaseID string) (string, error) {
	const q = `SELECT artist_id FROM releases WHERE id=? LIMIT 1;`
	var owner string
	if err := r.db.QueryRowContext(ctx, q, releaseID).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
		}
		return "", err
	}
	return owner, nil
}

type scanTx struct {
	tx *sql.Tx
}

func (t *scanTx) Insert(ctx context.Context, s *domain.ScanRecord) error {
	const q = `
INSERT INTO audio_scan_records
(id, release_id, track_id, artist_id, external_job_id,
 scan_status, ai_detected, ai_confidence, model_signature, scan_passed, flagged_reason,
 admin_reviewed, admin_decision, admin_notes, admin_reviewer_id, admin_reviewed_at,
 raw_result, updated_at, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);`
	args := append([]any{s.ID, s.ReleaseID, s.TrackID, s.ArtistID, s.ExternalJobID}, db.MutableArgs(s)...)
	args = append(args, s.CreatedAt.UTC())
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("scan %s / job %s: %w", s.ID, s.ExternalJobID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (t *scanTx) LockRelease(ctx context.Context, releaseID string) (domain.ReleaseStatus, error) {
	const q = `SELECT audio_scan_status FROM releases WHERE id=? FOR UPDATE;`
	var st sql.NullString
	if err := t.tx.QueryRowContext(ctx, q, releaseID).Scan(&st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("locking release: %w", err)
	}
	return domain.ReleaseStatus(st.String), nil
}

func (t *scanTx) LockForUpdate(ctx context.Context, id domain.ScanID) (*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE id=? FOR UPDATE;`
	rec, err := db.ScanRecord(t.tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

// Save updates the mutable columns. Identity columns never change.
func (t *scanTx) Save(ctx context.Context, s *domain.ScanRecord) error {
	const q = `
UPDATE audio_scan_records
SET scan_status=?, ai_detected=?, ai_confidence=?, model_signature=?, scan_passed=?, flagged_reason=?,
    admin_reviewed=?, admin_decision=?, admin_notes=?, admin_reviewer_id=?, admin_reviewed_at=?,
    raw_result=?, updated_at=?
WHERE id=?;`
	args := append(db.MutableArgs(s), s.ID)
	_, err := t.tx.ExecContext(ctx, q, args...)
	return err
}

func (t *scanTx) ListByRelease(ctx context.Context, releaseID string) ([]*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE release_id=?
ORDER BY created_at ASC, id ASC;`
	rows, err := t.tx.QueryContext(ctx, q, releaseID)
	if err != nil {
		return nil, err
	}
	return db.ScanRecords(rows)
}

func (t *scanTx) SetReleaseStatus(ctx context.Context, releaseID string, status domain.ReleaseStatus) error {
	const q = `UPDATE releases SET audio_scan_status=?, updated_at=UTC_TIMESTAMP(6) WHERE id=?;`
	_, err := t.tx.ExecContext(ctx, q, string(status), releaseID)
	return err
}
