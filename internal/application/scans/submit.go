package scans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/domain/scanerrors"
)

// SubmitCommand asks for one track to be scanned.
type SubmitCommand struct {
	Caller    domain.Caller
	ReleaseID string
	TrackID   string
	AudioURL  string
	Metadata  domain.TrackMetadata
}

func (c SubmitCommand) validate() error {
	switch {
	case strings.TrimSpace(c.ReleaseID) == "":
		return fmt.Errorf("%w: release_id is required", domain.ErrValidation)
	case strings.TrimSpace(c.TrackID) == "":
		return fmt.Errorf("%w: track_id is required", domain.ErrValidation)
	case strings.TrimSpace(c.AudioURL) == "":
		return fmt.Errorf("%w: audio_url is required", domain.ErrValidation)
	case c.Caller.ID == "":
		return fmt.Errorf("%w: caller identity missing", domain.ErrForbidden)
	}
	return nil
}

// retryable is satisfied by gateway errors that know whether the same
// request could succeed later.
type retryable interface {
	Retryable() bool
}

// Submit sends one track to the detector and persists a processing record.
// Gateway failures create nothing. They come back as ErrGatewayRejected when
// the detector refused the request outright and ErrGatewayUnavailable
// otherwise; there is no automatic retry.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*domain.ScanRecord, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	owner, err := s.authorizeRelease(ctx, cmd.Caller, cmd.ReleaseID)
	if err != nil {
		return nil, err
	}

	audioURL := strings.TrimSpace(cmd.AudioURL)
	if s.Audio != nil {
		resolved, err := s.Audio.ResolveAudio(ctx, audioURL)
		if err != nil {
			return nil, fmt.Errorf("%w: audio_url: %v", domain.ErrValidation, err)
		}
		audioURL = resolved
	}

	gctx, cancel := s.gatewayContext(ctx)
	jobID, err := s.Gateway.Submit(gctx, audioURL, cmd.Metadata)
	cancel()
	if err == nil && strings.TrimSpace(jobID) == "" {
		err = fmt.Errorf("detector returned empty job id")
	}
	if err != nil {
		s.recordError(ctx, &scanerrors.ScanError{
			ReleaseID: cmd.ReleaseID,
			TrackID:   cmd.TrackID,
			Phase:     scanerrors.PhaseSubmit,
		}, err)
		var r retryable
		if errors.As(err, &r) && !r.Retryable() {
			return nil, fmt.Errorf("%w: %w", domain.ErrGatewayRejected, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}

	now := s.now()
	rec := &domain.ScanRecord{
		ID:            domain.ScanID(uuid.New().String()),
		ReleaseID:     cmd.ReleaseID,
		TrackID:       cmd.TrackID,
		ArtistID:      owner,
		ExternalJobID: jobID,
		ScanStatus:    domain.ScanProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var change *domain.ReleaseStatusChanged
	err = s.Repo.InTx(ctx, func(tx domain.Tx) error {
		prev, err := tx.LockRelease(ctx, rec.ReleaseID)
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, rec); err != nil {
			return fmt.Errorf("inserting scan record: %w", err)
		}
		change, err = s.recompute(ctx, tx, rec.ReleaseID, prev, rec.ID)
		return err
	})
	if err != nil {
		// detector job exists but nothing references it; caller resubmits
		log.WithError(err).WithFields(log.Fields{
			"release_id": rec.ReleaseID,
			"track_id":   rec.TrackID,
			"job_id":     jobID,
		}).Error("persisting submitted scan failed")
		return nil, err
	}

	s.metrics().ScanSubmitted()
	log.WithFields(log.Fields{
		"scan_id":    rec.ID,
		"release_id": rec.ReleaseID,
		"track_id":   rec.TrackID,
		"job_id":     jobID,
	}).Info("scan submitted")
	s.publish(ctx, change)
	return rec, nil
}
