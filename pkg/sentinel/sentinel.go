package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so callers can translate them into
// outcomes without string matching.
//
// These represent factual states about resources, not validation failures:
// - ErrQueueFull: audit enqueue could not complete within its wait bound
// - ErrNotFound: record does not exist in store
// - ErrUnavailable: backend temporarily unavailable (retryable)
var (
	ErrQueueFull   = errors.New("audit queue full")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")

	// Event validation failures surfaced as REQUEST_FAILED reasons.
	ErrMissingEventID   = errors.New("event_id is required")
	ErrMissingSessionID = errors.New("session_id is required")
	ErrMissingUserID    = errors.New("user_id is required")
)
