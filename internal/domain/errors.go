package domain

import "errors"

// Sentinel errors shared across services and mapped to HTTP status codes
// at the API boundary.
var (
	// ErrNotFound indicates the referenced session or pattern does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an operation against a session in the wrong
	// lifecycle state, e.g. ending an already-ended session.
	ErrInvalidState = errors.New("invalid session state")

	// ErrInvalidArgument indicates an out-of-range input rejected before any
	// storage call is attempted.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstream indicates a storage or summarizer collaborator failure.
	ErrUpstream = errors.New("upstream failure")
)
