package scans

import "errors"

var (
	// ErrNotFound indicates the scan record (or release) does not exist.
	ErrNotFound = errors.New("scan record not found")
	// ErrConflict indicates the requested transition is not allowed from the current state.
	ErrConflict = errors.New("scan record state conflict")
	// ErrForbidden indicates the caller may not act on the target.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("invalid request")
	// ErrGatewayUnavailable indicates the detector could not be reached; the caller may retry.
	ErrGatewayUnavailable = errors.New("detector unavailable, please retry")
	// ErrGatewayRejected indicates the detector refused the request; retrying the same call will not help.
	ErrGatewayRejected = errors.New("detector rejected the request")
	// ErrNoScans is returned by Recompute for a release without records.
	ErrNoScans = errors.New("release has no scan records")
)
