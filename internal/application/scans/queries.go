package scans

import (
	"context"
	"fmt"

	"github.com/apex/log"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/domain/scanerrors"
)

// ReleaseScans is the owner's view of a release's moderation state.
type ReleaseScans struct {
	ReleaseID string                `json:"release_id"`
	Status    domain.ReleaseStatus  `json:"audio_scan_status,omitempty"`
	Counts    domain.ReleaseCounts  `json:"counts"`
	Scans     []*domain.ScanRecord `json:"scans"`
}

// ListRelease returns every scan of a release plus aggregate counts.
// With refresh set, in-flight scans are reconciled first.
func (s *Service) ListRelease(ctx context.Context, caller domain.Caller, releaseID string, refresh bool) (*ReleaseScans, error) {
	if releaseID == "" {
		return nil, fmt.Errorf("%w: release id is required", domain.ErrValidation)
	}
	if _, err := s.authorizeRelease(ctx, caller, releaseID); err != nil {
		return nil, err
	}

	records, err := s.Repo.ListByRelease(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if refresh {
		for i, r := range records {
			if r.ScanStatus.IsTerminal() {
				continue
			}
			updated, err := s.reconcile(ctx, r)
			if err != nil {
				log.WithError(err).WithField("scan_id", r.ID).Warn("refresh reconcile failed")
				continue
			}
			records[i] = updated
		}
	}

	status, err := s.Repo.ReleaseStatus(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.ScanRecord{}
	}
	return &ReleaseScans{
		ReleaseID: releaseID,
		Status:    status,
		Counts:    domain.CountRecords(records),
		Scans:     records,
	}, nil
}

// ListFlagged is the admin review queue.
func (s *Service) ListFlagged(ctx context.Context, caller domain.Caller, reviewed *bool, limit int) ([]*domain.ScanRecord, error) {
	if !caller.IsAdmin {
		return nil, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	list, err := s.Repo.ListFlagged(ctx, reviewed, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*domain.ScanRecord{}
	}
	return list, nil
}

// Get loads one scan without reconciling it.
func (s *Service) Get(ctx context.Context, caller domain.Caller, id domain.ScanID) (*domain.ScanRecord, error) {
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ScanErrors lists persisted detector failures for a scan. Admin only.
func (s *Service) ScanErrors(ctx context.Context, caller domain.Caller, id domain.ScanID, limit int) ([]*scanerrors.ScanError, error) {
	if !caller.IsAdmin {
		return nil, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	if s.Errors == nil {
		return []*scanerrors.ScanError{}, nil
	}
	list, err := s.Errors.ListByScan(ctx, string(id), limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*scanerrors.ScanError{}
	}
	return list, nil
}

// ReleaseErrors lists detector failures for a whole release, including
// submit failures that never produced a record. Admin only.
func (s *Service) ReleaseErrors(ctx context.Context, caller domain.Caller, releaseID string, limit int) ([]*scanerrors.ScanError, error) {
	if !caller.IsAdmin {
		return nil, fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	if s.Errors == nil {
		return []*scanerrors.ScanError{}, nil
	}
	list, err := s.Errors.ListByRelease(ctx, releaseID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*scanerrors.ScanError{}
	}
	return list, nil
}
