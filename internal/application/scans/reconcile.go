package scans

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/domain/scanerrors"
)

// Reconcile returns the current record, pulling the detector result first
// when the scan is still in flight.
func (s *Service) Reconcile(ctx context.Context, caller domain.Caller, id domain.ScanID) (*domain.ScanRecord, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("%w: scan id is required", domain.ErrValidation)
	}
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, rec); err != nil {
		return nil, err
	}
	return s.reconcile(ctx, rec)
}

// ReconcileByJob is Reconcile keyed by the detector job id.
func (s *Service) ReconcileByJob(ctx context.Context, caller domain.Caller, jobID string) (*domain.ScanRecord, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	rec, err := s.Repo.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, rec); err != nil {
		return nil, err
	}
	return s.reconcile(ctx, rec)
}

// reconcile never contacts the detector for terminal records and swallows
// detector transport errors, returning rec unchanged. Only store errors
// are returned.
func (s *Service) reconcile(ctx context.Context, rec *domain.ScanRecord) (*domain.ScanRecord, error) {
	if rec.ScanStatus.IsTerminal() {
		return rec, nil
	}

	gctx, cancel := s.gatewayContext(ctx)
	res, raw, err := s.Gateway.FetchResult(gctx, rec.ExternalJobID)
	cancel()
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"scan_id": rec.ID,
			"job_id":  rec.ExternalJobID,
		}).Warn("detector fetch failed, keeping last known state")
		s.recordError(ctx, &scanerrors.ScanError{
			ScanID:    string(rec.ID),
			ReleaseID: rec.ReleaseID,
			TrackID:   rec.TrackID,
			Phase:     scanerrors.PhaseReconcile,
		}, err)
		return rec, nil
	}
	if !res.Settled() {
		return rec, nil
	}

	var (
		out     *domain.ScanRecord
		changed bool
		change  *domain.ReleaseStatusChanged
	)
	err = s.Repo.InTx(ctx, func(tx domain.Tx) error {
		prev, err := tx.LockRelease(ctx, rec.ReleaseID)
		if err != nil {
			return err
		}
		current, err := tx.LockForUpdate(ctx, rec.ID)
		if err != nil {
			return err
		}
		// another reconcile got here first
		if current.ScanStatus.IsTerminal() {
			out = current
			return nil
		}
		next := domain.Classify(current, res, raw, s.now())
		if err := domain.CheckTransition(current, next); err != nil {
			return err
		}
		if err := tx.Save(ctx, next); err != nil {
			return fmt.Errorf("saving scan record: %w", err)
		}
		out, changed = next, true
		change, err = s.recompute(ctx, tx, rec.ReleaseID, prev, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return out, nil
	}

	s.metrics().ScanReconciled(out.ScanStatus)
	log.WithFields(log.Fields{
		"scan_id":    out.ID,
		"release_id": out.ReleaseID,
		"status":     out.ScanStatus,
		"passed":     out.Passed(),
	}).Info("scan reconciled")
	s.archive(ctx, out)
	s.publish(ctx, change)
	return out, nil
}

func (s *Service) archive(ctx context.Context, rec *domain.ScanRecord) {
	if s.Archive == nil || len(rec.RawResult) == 0 {
		return
	}
	key := fmt.Sprintf("results/%s/%s.json", rec.ReleaseID, rec.ID)
	if _, err := s.Archive.ArchiveResult(ctx, key, rec.RawResult); err != nil {
		log.WithError(err).WithField("scan_id", rec.ID).Warn("archiving raw result failed")
		s.recordError(ctx, &scanerrors.ScanError{
			ScanID:    string(rec.ID),
			ReleaseID: rec.ReleaseID,
			TrackID:   rec.TrackID,
			Phase:     scanerrors.PhaseArchive,
		}, err)
	}
}
