package types

import "errors"

// Domain error taxonomy. The first two are recoverable, user-facing
// rejections; store unavailability is transient and safe to retry.
var (
	ErrInvalidTransition = errors.New("command not valid in current exam status")
	ErrNoTasks           = errors.New("exam has no tasks: add tasks first")
	ErrStoreUnavailable  = errors.New("session store unavailable")
	ErrStaleGeneration   = errors.New("stale session generation: discard local timer and resync")
	ErrSessionNotFound   = errors.New("exam session not found")
	ErrSessionExists     = errors.New("exam session already exists")
	ErrStatusConflict    = errors.New("session status changed concurrently")
	ErrAlreadyWithdrawn  = errors.New("student already withdrew from this exam")
)

// Validation errors.
var (
	ErrInvalidExamID  = errors.New("exam ID must be 1-50 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidUserID  = errors.New("user ID must be 1-50 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidRole    = errors.New("invalid role: must be 'student' or 'professor'")
	ErrInvalidCommand = errors.New("invalid command")
	ErrInvalidMinutes = errors.New("minutes must be positive")
)
