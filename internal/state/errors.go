package state

import "errors"

// Sentinel errors for the conditions callers are expected to branch on
// with errors.Is, rather than matching message strings.
var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAgentNotFound is returned when a session exists but has no
	// agent state under the requested name.
	ErrAgentNotFound = errors.New("agent state not found")

	// ErrSessionExists is returned by create when the id is already in
	// use. Creation on a duplicate id has no side effects.
	ErrSessionExists = errors.New("session already exists")

	// ErrInvalidArgument is returned for empty ids/names or payloads
	// that are not JSON-serializable, before any mutation occurs.
	ErrInvalidArgument = errors.New("invalid argument")
)
