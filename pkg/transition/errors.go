package transition

import "errors"

var (
	// ErrAccessDenied means the actor lacks the permission the operation requires.
	// Nothing was written.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound means a referenced project or user does not exist. It is only
	// returned after the actor's permission check passed.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the requested role or target is not permitted
	ErrValidation = errors.New("validation failed")

	// ErrConcurrencyConflict means another appointment changed the manager slot
	// first. Re-read the project and retry.
	ErrConcurrencyConflict = errors.New("concurrent manager appointment")
)
