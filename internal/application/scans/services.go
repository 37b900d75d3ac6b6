package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"

	"github.com/stagepass/audioscan/internal/application"
	domain "github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/domain/scanerrors"
)

const defaultGatewayTimeout = 30 * time.Second

// Service implements the audio scan moderation use-cases.
// Safe for concurrent use; per-record consistency lives in Repo.InTx.
type Service struct {
	Repo    domain.Repository
	Gateway domain.Gateway
	Owners  domain.OwnershipChecker
	Clock   application.Clock

	// optional collaborators, nil disables them
	Audio   domain.AudioResolver
	Archive domain.ResultArchive
	Events  domain.EventPublisher
	Errors  scanerrors.Repository
	Metrics Recorder

	GatewayTimeout time.Duration
}

// Recorder receives domain counters.
type Recorder interface {
	ScanSubmitted()
	ScanReconciled(status domain.ScanStatus)
	ScanReviewed(decision domain.Decision)
	GatewayError(phase scanerrors.Phase)
	ReleaseStatusChanged(to domain.ReleaseStatus)
}

type nopRecorder struct{}

func (nopRecorder) ScanSubmitted()                           {}
func (nopRecorder) ScanReconciled(domain.ScanStatus)         {}
func (nopRecorder) ScanReviewed(domain.Decision)             {}
func (nopRecorder) GatewayError(scanerrors.Phase)            {}
func (nopRecorder) ReleaseStatusChanged(domain.ReleaseStatus) {}

func (s *Service) metrics() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return application.SystemClock{}.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// authorize: admin boleh semua, artist hanya record miliknya
func authorize(caller domain.Caller, rec *domain.ScanRecord) error {
	if caller.IsAdmin || (caller.ID != "" && caller.ID == rec.ArtistID) {
		return nil
	}
	return fmt.Errorf("%w: scan %s belongs to another artist", domain.ErrForbidden, rec.ID)
}

func (s *Service) authorizeRelease(ctx context.Context, caller domain.Caller, releaseID string) (string, error) {
	owner, err := s.Owners.ReleaseOwner(ctx, releaseID)
	if err != nil {
		return "", err
	}
	if caller.IsAdmin || (caller.ID != "" && caller.ID == owner) {
		return owner, nil
	}
	return "", fmt.Errorf("%w: release %s belongs to another artist", domain.ErrForbidden, releaseID)
}

// recompute re-reads every record of the release inside tx and writes the
// aggregate when it changed. Must be called after the release row is locked.
func (s *Service) recompute(ctx context.Context, tx domain.Tx, releaseID string, prev domain.ReleaseStatus, scanID domain.ScanID) (*domain.ReleaseStatusChanged, error) {
	records, err := tx.ListByRelease(ctx, releaseID)
	if err != nil {
		return nil, fmt.Errorf("listing release scans: %w", err)
	}
	status, err := domain.Recompute(records)
	if err != nil {
		return nil, err
	}
	if status == prev {
		return nil, nil
	}
	if err := tx.SetReleaseStatus(ctx, releaseID, status); err != nil {
		return nil, fmt.Errorf("writing release status: %w", err)
	}
	return &domain.ReleaseStatusChanged{
		ReleaseID: releaseID,
		From:      prev,
		To:        status,
		ScanID:    scanID,
		At:        s.now(),
	}, nil
}

// publish is best-effort: the transition is already committed.
func (s *Service) publish(ctx context.Context, ev *domain.ReleaseStatusChanged) {
	if ev == nil {
		return
	}
	s.metrics().ReleaseStatusChanged(ev.To)
	log.WithFields(log.Fields{
		"release_id": ev.ReleaseID,
		"from":       ev.From,
		"to":         ev.To,
		"scan_id":    ev.ScanID,
	}).Info("release audio scan status changed")

	if s.Events == nil {
		return
	}
	if err := s.Events.PublishReleaseStatus(ctx, *ev); err != nil {
		log.WithError(err).WithField("release_id", ev.ReleaseID).Warn("publishing release status event failed")
	}
}

// recordError persists a gateway failure for operators. Never fails the caller.
func (s *Service) recordError(ctx context.Context, e *scanerrors.ScanError, cause error) {
	s.metrics().GatewayError(e.Phase)
	if s.Errors == nil {
		return
	}
	e.Message = cause.Error()
	e.CreatedAt = s.now()
	if e.DetailsJSON == "" {
		var details struct {
			Timeout bool `json:"timeout"`
		}
		details.Timeout = errors.Is(cause, context.DeadlineExceeded)
		b, _ := json.Marshal(details)
		e.DetailsJSON = string(b)
	}
	if err := s.Errors.Save(ctx, e); err != nil {
		log.WithError(err).WithField("phase", e.Phase).Error("saving scan error failed")
	}
}
