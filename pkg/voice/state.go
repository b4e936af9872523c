package voice

// CallState represents the current state of a voice call session.
type CallState int

const (
	// StateIdle is before the call starts and after a clean hangup.
	StateIdle CallState = iota
	// StateRequestingPermission is while the microphone prompt is pending.
	StateRequestingPermission
	// StateGettingToken is while the ephemeral credential is being fetched.
	StateGettingToken
	// StateConnecting is while the realtime socket is being established.
	StateConnecting
	// StateReady is when the socket is configured and awaiting a turn.
	StateReady
	// StateInCall is after at least one utterance has been committed.
	StateInCall
	// StateError is after a recoverable failure; the user can retry.
	StateError
)

// String returns a human-readable state name.
func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequestingPermission:
		return "REQUESTING_PERMISSION"
	case StateGettingToken:
		return "GETTING_TOKEN"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateInCall:
		return "IN_CALL"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// active reports whether the session owns live resources in this state.
func (s CallState) active() bool {
	switch s {
	case StateReady, StateInCall:
		return true
	default:
		return false
	}
}
