package scans

// Recompute derives a release's moderation status from the full set of its
// scan records. First matching rule wins:
//
//  1. any record pending/processing            -> scanning
//  2. any record flagged and not yet reviewed  -> scan_flagged
//  3. every record passed                      -> admin_approved if any was flagged, else scan_passed
//  4. otherwise                                -> scan_failed
//
// The result depends only on the multiset of records, never on their order.
func Recompute(records []*ScanRecord) (ReleaseStatus, error) {
	if len(records) == 0 {
		return "", ErrNoScans
	}

	var inFlight, unreviewedFlag, anyFlagged bool
	allPassed := true
	for _, r := range records {
		switch r.ScanStatus {
		case ScanPending, ScanProcessing:
			inFlight = true
		case ScanFlagged:
			anyFlagged = true
			if !r.AdminReviewed {
				unreviewedFlag = true
			}
		case ScanCompleted, ScanFailed:
		}
		if !r.Passed() {
			allPassed = false
		}
	}

	switch {
	case inFlight:
		return ReleaseScanning, nil
	case unreviewedFlag:
		return ReleaseScanFlagged, nil
	case allPassed && anyFlagged:
		return ReleaseAdminApproved, nil
	case allPassed:
		return ReleaseScanPassed, nil
	default:
		return ReleaseScanFailed, nil
	}
}
