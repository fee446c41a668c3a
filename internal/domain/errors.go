package domain

import "errors"

// Sentinel errors forming the failure taxonomy shared by the store, the
// scheduler and the coordinators. Callers classify with errors.Is.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreBusy        = errors.New("store busy")
	ErrStoreCorrupted   = errors.New("store corrupted")
	ErrConstraint       = errors.New("constraint violation")
	ErrNotFound         = errors.New("not found")

	// ErrSchedulingDenied means the host denied the permission required to
	// register a deferred wake-up. The action is skipped, not retried.
	ErrSchedulingDenied = errors.New("scheduling denied")
)
