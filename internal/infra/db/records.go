// Package db holds row mapping shared by the SQL scan record stores.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

// RecordColumns is the select list understood by ScanRecord.
const RecordColumns = `id, release_id, track_id, artist_id, external_job_id,
       scan_status, ai_detected, ai_confidence, model_signature, scan_passed, flagged_reason,
       admin_reviewed, admin_decision, admin_notes, admin_reviewer_id, admin_reviewed_at,
       raw_result, created_at, updated_at`

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanRecord reads one row selected with RecordColumns.
func ScanRecord(row RowScanner) (*domain.ScanRecord, error) {
	var (
		r          domain.ScanRecord
		detected   sql.NullBool
		confidence sql.NullFloat64
		signature  sql.NullString
		passed     sql.NullBool
		reason     sql.NullString
		decision   sql.NullString
		notes      sql.NullString
		reviewer   sql.NullString
		reviewedAt sql.NullTime
		raw        []byte
	)
	if err := row.Scan(
		&r.ID, &r.ReleaseID, &r.TrackID, &r.ArtistID, &r.ExternalJobID,
		&r.ScanStatus, &detected, &confidence, &signature, &passed, &reason,
		&r.AdminReviewed, &decision, &notes, &reviewer, &reviewedAt,
		&raw, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if detected.Valid {
		r.AIDetected = &detected.Bool
	}
	if confidence.Valid {
		r.AIConfidence = &confidence.Float64
	}
	if signature.Valid {
		r.ModelSignature = &signature.String
	}
	if passed.Valid {
		r.ScanPassed = &passed.Bool
	}
	r.FlaggedReason = reason.String
	if decision.Valid {
		d := domain.Decision(decision.String)
		r.AdminDecision = &d
	}
	r.AdminNotes = notes.String
	if reviewer.Valid {
		r.AdminReviewerID = &reviewer.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		r.AdminReviewedAt = &t
	}
	if len(raw) > 0 {
		r.RawResult = json.RawMessage(raw)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// ScanRecords drains rows into records.
func ScanRecords(rows *sql.Rows) ([]*domain.ScanRecord, error) {
	defer rows.Close()
	out := make([]*domain.ScanRecord, 0)
	for rows.Next() {
		r, err := ScanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MutableArgs returns the values written by an update, in column order:
// scan_status, ai_detected, ai_confidence, model_signature, scan_passed,
// flagged_reason, admin_reviewed, admin_decision, admin_notes,
// admin_reviewer_id, admin_reviewed_at, raw_result, updated_at.
func MutableArgs(r *domain.ScanRecord) []any {
	return []any{
		string(r.ScanStatus),
		nullBool(r.AIDetected),
		nullFloat(r.AIConfidence),
		nullString(r.ModelSignature),
		nullBool(r.ScanPassed),
		emptyAsNull(r.FlaggedReason),
		r.AdminReviewed,
		nullDecision(r.AdminDecision),
		emptyAsNull(r.AdminNotes),
		nullString(r.AdminReviewerID),
		nullTime(r.AdminReviewedAt),
		nullJSON(r.RawResult),
		updatedAt(r),
	}
}

func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullDecision(p *domain.Decision) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func emptyAsNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullJSON keeps invalid payloads out of JSON columns by wrapping them.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		b, _ := json.Marshal(map[string]string{"raw": string(raw)})
		return string(b)
	}
	return string(raw)
}

func updatedAt(r *domain.ScanRecord) time.Time {
	if r.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.UpdatedAt.UTC()
}
