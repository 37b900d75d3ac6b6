package scans

import (
	"encoding/json"
	"time"
)

// ScanID identifies a ScanRecord.
type ScanID string

// ScanStatus is the detector-side lifecycle of a single track scan.
type ScanStatus string

const (
	ScanPending    ScanStatus = "pending"
	ScanProcessing ScanStatus = "processing"
	ScanCompleted  ScanStatus = "completed"
	ScanFlagged    ScanStatus = "flagged"
	ScanFailed     ScanStatus = "failed"
)

func (s ScanStatus) Valid() bool {
	switch s {
	case ScanPending, ScanProcessing, ScanCompleted, ScanFlagged, ScanFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the detector has produced a final outcome.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanCompleted, ScanFlagged, ScanFailed:
		return true
	}
	return false
}

// ReleaseStatus is the aggregated moderation state stored on a release.
type ReleaseStatus string

const (
	ReleaseScanning      ReleaseStatus = "scanning"
	ReleaseScanPassed    ReleaseStatus = "scan_passed"
	ReleaseScanFlagged   ReleaseStatus = "scan_flagged"
	ReleaseScanFailed    ReleaseStatus = "scan_failed"
	ReleaseAdminApproved ReleaseStatus = "admin_approved"
)

func (s ReleaseStatus) Valid() bool {
	switch s {
	case ReleaseScanning, ReleaseScanPassed, ReleaseScanFlagged, ReleaseScanFailed, ReleaseAdminApproved:
		return true
	}
	return false
}

// IsTerminal reports whether the release is publishable.
func (s ReleaseStatus) IsTerminal() bool {
	return s == ReleaseScanPassed || s == ReleaseAdminApproved
}

// Decision enum for admin review
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// TrackMetadata value object sent to the detector alongside the audio.
type TrackMetadata struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	ISRC   string `json:"isrc,omitempty"`
}

// Aggregate Root: ScanRecord, one per (track, detection attempt)
type ScanRecord struct {
	ID            ScanID `json:"id"`
	ReleaseID     string `json:"release_id"`
	TrackID       string `json:"track_id"`
	ArtistID      string `json:"artist_id"`
	ExternalJobID string `json:"external_job_id"`

	ScanStatus     ScanStatus `json:"scan_status"`
	AIDetected     *bool      `json:"ai_detected"`
	AIConfidence   *float64   `json:"ai_confidence"`
	ModelSignature *string    `json:"model_signature"`
	ScanPassed     *bool      `json:"scan_passed"`
	FlaggedReason  string     `json:"flagged_reason,omitempty"`

	AdminReviewed   bool       `json:"admin_reviewed"`
	AdminDecision   *Decision  `json:"admin_decision"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	AdminReviewerID *string    `json:"admin_reviewer_id"`
	AdminReviewedAt *time.Time `json:"admin_reviewed_at"`

	RawResult json.RawMessage `json:"raw_result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Passed reports the effective pass state; nil counts as not passed.
func (r *ScanRecord) Passed() bool {
	return r.ScanPassed != nil && *r.ScanPassed
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *ScanRecord) Clone() *ScanRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.AIDetected != nil {
		c.AIDetected = ptr(*r.AIDetected)
	}
	if r.AIConfidence != nil {
		c.AIConfidence = ptr(*r.AIConfidence)
	}
	if r.ModelSignature != nil {
		c.ModelSignature = ptr(*r.ModelSignature)
	}
	if r.ScanPassed != nil {
		c.ScanPassed = ptr(*r.ScanPassed)
	}
	if r.AdminDecision != nil {
		c.AdminDecision = ptr(*r.AdminDecision)
	}
	if r.AdminReviewerID != nil {
		c.AdminReviewerID = ptr(*r.AdminReviewerID)
	}
	if r.AdminReviewedAt != nil {
		c.AdminReviewedAt = ptr(*r.AdminReviewedAt)
	}
	if r.RawResult != nil {
		c.RawResult = append(json.RawMessage(nil), r.RawResult...)
	}
	return &c
}

// ReleaseCounts value object returned with a release's scan list.
type ReleaseCounts struct {
	Total      int `json:"total"`
	Flagged    int `json:"flagged"`
	Processing int `json:"processing"`
}

// CountRecords tallies a release's records. Pending counts as processing.
func CountRecords(records []*ScanRecord) ReleaseCounts {
	c := ReleaseCounts{Total: len(records)}
	for _, r := range records {
		switch r.ScanStatus {
		case ScanFlagged:
			c.Flagged++
		case ScanPending, ScanProcessing:
			c.Processing++
		}
	}
	return c
}

// ReleaseStatusChanged is emitted after a committed status transition.
type ReleaseStatusChanged struct {
	ReleaseID string        `json:"release_id"`
	From      ReleaseStatus `json:"from,omitempty"`
	To        ReleaseStatus `json:"to"`
	ScanID    ScanID        `json:"scan_id"`
	At        time.Time     `json:"at"`
}

func ptr[T any](v T) *T { return &v }

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID      string
	IsAdmin bool
}
