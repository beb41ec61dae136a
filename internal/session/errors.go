package session

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Invoke when the session is not in the
// Connected state. Callers may retry after the next reconnect.
var ErrNotConnected = errors.New("session not connected")

// ErrAuthMissing indicates there is no stored identity or auth token for
// the operation. Fatal for that operation; never retried automatically.
var ErrAuthMissing = errors.New("no stored identity or auth token")

// ErrSessionClosed completes a pending connect whose scheduled retries
// were cancelled by an explicit Disconnect.
var ErrSessionClosed = errors.New("session closed")

// RetriesExhaustedError is the terminal error of a connect whose retry
// budget ran out. It completes the original Connect call exactly once.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("connect failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}
