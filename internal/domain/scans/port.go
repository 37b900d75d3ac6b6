package scans

import (
	"context"
	"encoding/json"
)

// Repository is the persistence port for scan records.
type Repository interface {
	// InTx runs fn inside one transaction. Record mutation and the release
	// status write must share a single InTx call.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Get(ctx context.Context, id ScanID) (*ScanRecord, error)
	GetByJobID(ctx context.Context, jobID string) (*ScanRecord, error)
	ListByRelease(ctx context.Context, releaseID string) ([]*ScanRecord, error)
	// ListFlagged returns flagged records; reviewed filters on AdminReviewed when non-nil.
	ListFlagged(ctx context.Context, reviewed *bool, limit int) ([]*ScanRecord, error)
	// ListInFlight returns pending/processing records, oldest first.
	ListInFlight(ctx context.Context, limit int) ([]*ScanRecord, error)
	ReleaseStatus(ctx context.Context, releaseID string) (ReleaseStatus, error)
}

// Tx is the transactional view of the store.
type Tx interface {
	Insert(ctx context.Context, r *ScanRecord) error
	// LockRelease locks the release row and returns its current status
	// (empty when never computed). Lock order is always release, then record.
	LockRelease(ctx context.Context, releaseID string) (ReleaseStatus, error)
	// LockForUpdate locks and re-reads a record of an already locked release.
	LockForUpdate(ctx context.Context, id ScanID) (*ScanRecord, error)
	Save(ctx context.Context, r *ScanRecord) error
	ListByRelease(ctx context.Context, releaseID string) ([]*ScanRecord, error)
	SetReleaseStatus(ctx context.Context, releaseID string, status ReleaseStatus) error
}

// Gateway port for the external AI-audio detector.
type Gateway interface {
	Submit(ctx context.Context, audioURL string, meta TrackMetadata) (jobID string, err error)
	FetchResult(ctx context.Context, jobID string) (AnalysisResult, json.RawMessage, error)
}

// OwnershipChecker resolves who owns a release.
type OwnershipChecker interface {
	ReleaseOwner(ctx context.Context, releaseID string) (artistID string, err error)
}

// AudioResolver turns an upload reference into a URL the detector can fetch.
type AudioResolver interface {
	ResolveAudio(ctx context.Context, ref string) (string, error)
}

// ResultArchive keeps a copy of raw detector payloads.
type ResultArchive interface {
	ArchiveResult(ctx context.Context, key string, payload []byte) (string, error)
}

// EventPublisher announces committed release status transitions.
type EventPublisher interface {
	PublishReleaseStatus(ctx context.Context, ev ReleaseStatusChanged) error
}
