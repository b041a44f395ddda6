package app

import "errors"

// Error taxonomy shared by the services. Conflict is expected under
// normal contention and is surfaced to the caller as retryable; the
// services themselves never retry a lost race, since blind retry on
// claim would break queue fairness. Forbidden is terminal for the call.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrForbidden        = errors.New("actor has no rights over this resource")
	ErrConflict         = errors.New("state changed underneath the request")
	ErrRejected         = errors.New("operation violates a domain rule")
	ErrUnavailable      = errors.New("storage unavailable")
	ErrAlreadyRequested = errors.New("an open support request already exists")
	ErrRequestNotFound  = errors.New("support request not found")
	ErrSessionNotFound  = errors.New("session not found")
)
