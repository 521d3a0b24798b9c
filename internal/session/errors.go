package session

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when the session is not in a state
// that can carry commands. The dispatcher reacts by recreating the
// session, not by surfacing the error to the user.
var ErrNotConnected = errors.New("session not connected")

// ErrAuthenticationFailed means both the connect and the create/connect
// fallback were rejected by the backend. The session is closed.
var ErrAuthenticationFailed = errors.New("backend authentication failed")

// ConnectError wraps a transport-level failure to reach the backend. No
// session is created; the user sees a single "backend unavailable" notice.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("backend unavailable: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
