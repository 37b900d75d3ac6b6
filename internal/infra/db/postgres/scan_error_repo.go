package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/stagepass/audioscan/internal/domain/scanerrors"
)

type ScanErrorRepository struct{ db *sql.DB }

func NewScanErrorRepository(db *sql.DB) *ScanErrorRepository { return &ScanErrorRepository{db: db} }

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	const q = `
INSERT INTO audio_scan_errors
  (scan_id, release_id, track_id, phase, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id;`
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	details := e.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else if !json.Valid([]byte(details)) {
		b, _ := json.Marshal(map[string]string{"raw": details})
		details = string(b)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, q,
		stringOrDash(e.ScanID), stringOrDash(e.ReleaseID), stringOrDash(e.TrackID),
		stringOrDash(string(e.Phase)), msg, details, created,
	).Scan(&e.ID)
}

func (r *ScanErrorRepository) ListByScan(ctx context.Context, scanID string, limit int) ([]*domain.ScanError, error) {
	const q = `
SELECT id, scan_id, release_id, track_id, phase, message, details_json, created_at
FROM audio_scan_errors
WHERE scan_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	return r.list(ctx, q, scanID, limit)
}

func (r *ScanErrorRepository) ListByRelease(ctx context.Context, releaseID string, limit int) ([]*domain.ScanError, error) {
	const q = `
SELECT id, scan_id, release_id, track_id, phase, message, details_json, created_at
FROM audio_scan_errors
WHERE release_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	return r.list(ctx, q, releaseID, limit)
}

func (r *ScanErrorRepository) list(ctx context.Context, q, key string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, q, key, limit)
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
