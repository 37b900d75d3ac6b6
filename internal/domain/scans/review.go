package scans

import (
	"fmt"
	"time"
)

// ApplyReview records an admin decision on a copy of rec.
// A record can be reviewed once; a second review is a conflict.
// ScanStatus is left untouched so the detector verdict survives for audit.
// Only a flagged record takes its pass state from the decision; on any
// other status the audit fields are written and ScanPassed is unchanged.
func ApplyReview(rec *ScanRecord, reviewerID string, d Decision, notes string, now time.Time) (*ScanRecord, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", ErrValidation)
	}
	if reviewerID == "" {
		return nil, fmt.Errorf("%w: reviewer id is required", ErrValidation)
	}
	if rec.AdminReviewed {
		return nil, fmt.Errorf("%w: scan %s already reviewed (%s)", ErrConflict, rec.ID, deref(rec.AdminDecision))
	}

	out := rec.Clone()
	out.AdminReviewed = true
	out.AdminDecision = ptr(d)
	out.AdminReviewerID = ptr(reviewerID)
	out.AdminReviewedAt = ptr(now)
	out.AdminNotes = notes
	if rec.ScanStatus == ScanFlagged {
		out.ScanPassed = ptr(d == DecisionApproved)
	}
	out.UpdatedAt = now
	return out, nil
}

// CheckInvariants validates the pass invariant of a single record.
func (r *ScanRecord) CheckInvariants() error {
	if !r.ScanStatus.Valid() {
		return fmt.Errorf("scan %s: unknown status %q", r.ID, r.ScanStatus)
	}
	if r.AdminDecision != nil && !r.AdminReviewed {
		return fmt.Errorf("scan %s: decision set without review", r.ID)
	}
	if !r.Passed() {
		return nil
	}
	switch r.ScanStatus {
	case ScanFlagged:
		if r.AdminDecision != nil && *r.AdminDecision == DecisionApproved {
			return nil
		}
	case ScanCompleted:
		if r.AIDetected != nil && !*r.AIDetected {
			return nil
		}
	}
	return fmt.Errorf("scan %s: passed while %s without clean completion or approval", r.ID, r.ScanStatus)
}

// CheckTransition guards the monotonic review fields between two versions of a record.
func CheckTransition(before, after *ScanRecord) error {
	if before.AdminReviewed && !after.AdminReviewed {
		return fmt.Errorf("%w: scan %s cannot be un-reviewed", ErrConflict, before.ID)
	}
	if before.AdminDecision != nil {
		if after.AdminDecision == nil || *after.AdminDecision != *before.AdminDecision {
			return fmt.Errorf("%w: scan %s decision is final", ErrConflict, before.ID)
		}
	}
	return after.CheckInvariants()
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
