package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/stagepass/audioscan/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	db *sql.DB
}

func NewScanErrorRepository(db *sql.DB) *ScanErrorRepository { return &ScanErrorRepository{db: db} }

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	const q = `
INSERT INTO audio_scan_errors
  (scan_id, release_id, track_id, phase, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?)
`
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	details := normalizeDetails(e.DetailsJSON)
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		dashIfEmpty(e.ScanID), dashIfEmpty(e.ReleaseID), dashIfEmpty(e.TrackID),
		dashIfEmpty(string(e.Phase)), msg, details, created)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *ScanErrorRepository) ListByScan(ctx context.Context, scanID string, limit int) ([]*domain.ScanError, error) {
	return r.list(ctx, "scan_id", scanID, limit)
}

func (r *ScanErrorRepository) ListByRelease(ctx context.Context, releaseID string, limit int) ([]*domain.ScanError, error) {
	return r.list(ctx, "release_id", releaseID, limit)
}

// column is always a constant chosen by the caller above
func (r *ScanErrorRepository) list(ctx context.Context, column, value string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
SELECT id, scan_id, release_id, track_id, phase, message, details_json, created_at
FROM audio_scan_errors
WHERE ` + column + ` = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, value, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.ScanError, 0)
	for rows.Next() {
		var e domain.ScanError
		if err := rows.Scan(&e.ID, &e.ScanID, &e.ReleaseID, &e.TrackID, &e.Phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// normalizeDetails ensures valid json; if invalid, wrap as string field
func normalizeDetails(details string) string {
	if strings.TrimSpace(details) == "" {
		return "{}"
	}
	var js any
	if json.Unmarshal([]byte(details), &js) != nil {
		b, _ := json.Marshal(map[string]string{"raw": details})
		return string(b)
	}
	return details
}
