package session

import "errors"

// Typed error taxonomy surfaced by the registry and the transport bridge.
// HTTP adapters translate these with errors.Is; see internal/httpapi.
var (
	// ErrNotFound: unknown session or resource.
	ErrNotFound = errors.New("session not found")

	// ErrConflict: a duplicate active session for the same
	// (channel, participant) pair, or a second transport attach.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState: the operation is illegal in the session's current
	// status (e.g., appending an utterance to a non-active session).
	ErrInvalidState = errors.New("invalid session state")

	// ErrInvalidTransition: illegal state-machine edge.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation: malformed input.
	ErrValidation = errors.New("invalid argument")

	// ErrTimeout: attach or transport deadline exceeded.
	ErrTimeout = errors.New("deadline exceeded")
)
