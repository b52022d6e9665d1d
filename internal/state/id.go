package state

import "github.com/oklog/ulid/v2"

// NewID generates a session ID when the caller does not supply one. The
// ID is prefixed with "sess_" and uses a ULID for the random component,
// so generated ids sort by creation time.
func NewID() string {
	return "sess_" + ulid.Make().String()
}
