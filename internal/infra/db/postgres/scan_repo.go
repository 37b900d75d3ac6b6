package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/infra/db"
)

type ScanRepository struct{ db *sql.DB }

func NewScanRepository(conn *sql.DB) *ScanRepository { return &ScanRepository{db: conn} }

// InTx runs fn in a READ COMMITTED transaction (the Postgres default);
// every statement after LockRelease sees rows committed before the lock.
func (r *ScanRepository) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
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
WHERE id=$1
LIMIT 1;`
	rec, err := db.ScanRecord(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

func (r *ScanRepository) GetByJobID(ctx context.Context, jobID string) (*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE external_job_id=$1
LIMIT 1;`
	rec, err := db.ScanRecord(r.db.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return rec, err
}

func (r *ScanRepository) ListByRelease(ctx context.Context, releaseID string) ([]*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE release_id=$1
ORDER BY created_at ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q, releaseID)
	if err != nil {
		return nil, fmt.Errorf("querying release scans: %w", err)
	}
	return db.ScanRecords(rows)
}

func (r *ScanRepository) ListFlagged(ctx context.Context, reviewed *bool, limit int) ([]*domain.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE scan_status=$1`
	args := []any{string(domain.ScanFlagged)}
	next := 2
	if reviewed != nil {
		query += fmt.Sprintf(" AND admin_reviewed = $%d", next)
		args = append(args, *reviewed)
		next++
	}
	query += fmt.Sprintf("\nORDER BY created_at DESC, id DESC\nLIMIT $%d;", next)
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
WHERE scan_status IN ($1, $2)
ORDER BY created_at ASC, id ASC
LIMIT $3;`
	rows, err := r.db.QueryContext(ctx, q, string(domain.ScanPending), string(domain.ScanProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("querying in-flight scans: %w", err)
	}
	return db.ScanRecords(rows)
}

func (r *ScanRepository) ReleaseStatus(ctx context.Context, releaseID string) (domain.ReleaseStatus, error) {
	const q = `SELECT audio_scan_status FROM releases WHERE id=$1 LIMIT 1;`
	var st sql.NullString
	if err := r.db.QueryRowContext(ctx, q, releaseID).Scan(&st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
		}
		return "", err
	}
	return domain.ReleaseStatus(st.String), nil
}

func (r *ScanRepository) ReleaseOwner(ctx context.Context, releaseID string) (string, error) {
	const q = `SELECT artist_id FROM releases WHERE id=$1 LIMIT 1;`
	var owner string
	if err := r.db.QueryRowContext(ctx, q, releaseID).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("release %s: %w", releaseID, domain.ErrNotFound)
		}
		return "", err
	}
	return owner, nil
}

type scanTx struct{ tx *sql.Tx }

func (t *scanTx) Insert(ctx context.Context, s *domain.ScanRecord) error {
	const q = `
INSERT INTO audio_scan_records
(id, release_id, track_id, artist_id, external_job_id,
 scan_status, ai_detected, ai_confidence, model_signature, scan_passed, flagged_reason,
 admin_reviewed, admin_decision, admin_notes, admin_reviewer_id, admin_reviewed_at,
 raw_result, updated_at, created_at)
VALUES ($1,$2,$3,$4,$5,
        $6,$7,$8,$9,$10,$11,
        $12,$13,$14,$15,$16,
        $17,$18,$19);`
	args := append([]any{s.ID, s.ReleaseID, s.TrackID, s.ArtistID, s.ExternalJobID}, db.MutableArgs(s)...)
	args = append(args, s.CreatedAt.UTC())
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("scan %s / job %s: %w", s.ID, s.ExternalJobID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (t *scanTx) LockRelease(ctx context.Context, releaseID string) (domain.ReleaseStatus, error) {
	const q = `SELECT audio_scan_status FROM releases WHERE id=$1 FOR UPDATE;`
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
WHERE id=$1 FOR UPDATE;`
	rec, err := db.ScanRecord(t.tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

func (t *scanTx) Save(ctx context.Context, s *domain.ScanRecord) error {
	const q = `
UPDATE audio_scan_records
SET scan_status=$1, ai_detected=$2, ai_confidence=$3, model_signature=$4, scan_passed=$5, flagged_reason=$6,
    admin_reviewed=$7, admin_decision=$8, admin_notes=$9, admin_reviewer_id=$10, admin_reviewed_at=$11,
    raw_result=$12, updated_at=$13
WHERE id=$14;`
	args := append(db.MutableArgs(s), s.ID)
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	// postgres reports matched rows
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan %s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *scanTx) ListByRelease(ctx context.Context, releaseID string) ([]*domain.ScanRecord, error) {
	q := `SELECT ` + db.RecordColumns + `
FROM audio_scan_records
WHERE release_id=$1
ORDER BY created_at ASC, id ASC;`
	rows, err := t.tx.QueryContext(ctx, q, releaseID)
	if err != nil {
		return nil, err
	}
	return db.ScanRecords(rows)
}

func (t *scanTx) SetReleaseStatus(ctx context.Context, releaseID string, status domain.ReleaseStatus) error {
	const q = `UPDATE releases SET audio_scan_status=$1, updated_at=NOW() WHERE id=$2;`
	_, err := t.tx.ExecContext(ctx, q, string(status), releaseID)
	return err
}
