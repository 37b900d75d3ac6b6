package scans

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"

	domain "github.com/stagepass/audioscan/internal/domain/scans"
)

type ReviewCommand struct {
	Caller   domain.Caller
	ScanID   domain.ScanID
	Decision domain.Decision
	Notes    string
}

// Review applies an admin decision to one record and recomputes its release.
// Each flagged track needs its own Review call.
func (s *Service) Review(ctx context.Context, cmd ReviewCommand) (*domain.ScanRecord, error) {
	if !cmd.Caller.IsAdmin || cmd.Caller.ID == "" {
		return nil, fmt.Errorf("%w: admin review requires a reviewer", domain.ErrForbidden)
	}
	if strings.TrimSpace(string(cmd.ScanID)) == "" {
		return nil, fmt.Errorf("%w: scan id is required", domain.ErrValidation)
	}
	if !cmd.Decision.Valid() {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", domain.ErrValidation)
	}

	// release id is immutable, safe to read outside the tx
	rec, err := s.Repo.Get(ctx, cmd.ScanID)
	if err != nil {
		return nil, err
	}

	var (
		out    *domain.ScanRecord
		change *domain.ReleaseStatusChanged
	)
	err = s.Repo.InTx(ctx, func(tx domain.Tx) error {
		prev, err := tx.LockRelease(ctx, rec.ReleaseID)
		if err != nil {
			return err
		}
		current, err := tx.LockForUpdate(ctx, cmd.ScanID)
		if err != nil {
			return err
		}
		if current.ScanStatus != domain.ScanFlagged {
			log.WithFields(log.Fields{
				"scan_id": current.ID,
				"status":  current.ScanStatus,
			}).Warn("reviewing a scan that is not flagged")
		}
		next, err := domain.ApplyReview(current, cmd.Caller.ID, cmd.Decision, strings.TrimSpace(cmd.Notes), s.now())
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(current, next); err != nil {
			return err
		}
		if err := tx.Save(ctx, next); err != nil {
			return fmt.Errorf("saving review: %w", err)
		}
		out = next
		change, err = s.recompute(ctx, tx, rec.ReleaseID, prev, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics().ScanReviewed(cmd.Decision)
	log.WithFields(log.Fields{
		"scan_id":     out.ID,
		"release_id":  out.ReleaseID,
		"decision":    cmd.Decision,
		"reviewer_id": cmd.Caller.ID,
	}).Info("scan reviewed")
	s.publish(ctx, change)
	return out, nil
}
