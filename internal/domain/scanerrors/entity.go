package scanerrors

import "time"

// Phase tells which gateway call failed.
type Phase string

const (
	PhaseSubmit    Phase = "submit"
	PhaseReconcile Phase = "reconcile"
	PhaseArchive   Phase = "archive"
)

// ScanError represents a persisted gateway failure entry.
// ScanID is empty for submit failures since no record exists yet.
type ScanError struct {
	ID          int64     `json:"id"`
	ScanID      string    `json:"scan_id,omitempty"`
	ReleaseID   string    `json:"release_id"`
	TrackID     string    `json:"track_id,omitempty"`
	Phase       Phase     `json:"phase"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
