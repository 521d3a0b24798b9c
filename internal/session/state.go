package session

// State represents the lifecycle state of a backend session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

// String returns the human-readable name of the session state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText lets the state serialize as its name in JSON API responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
