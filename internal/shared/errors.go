package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal may not perform the requested action.
	// It covers unresolved principals, unknown roles and missing transitions
	// alike; callers are never told which.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a lost concurrent write. The caller should reload
	// the instance and retry rather than resubmit blindly.
	ErrConflict = errors.New("conflict: instance changed since read")
	// ErrUnknownOutcome indicates a persistence write that timed out. The
	// transition may or may not have committed; the caller must re-read before
	// retrying.
	ErrUnknownOutcome = errors.New("unknown outcome: persistence write timed out")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
