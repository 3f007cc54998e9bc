package domain

// SessionState is the lifecycle state of a guild voice session.
type SessionState int

const (
	SessionConnecting    SessionState = iota // Waiting for voice credentials
	SessionConnected                         // Voice info delivered to the node
	SessionMigrating                         // Applying a voice server change
	SessionDisconnecting                     // Releasing node and voice resources
	SessionTerminated                        // Final; the session is dead
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionConnecting:    {SessionConnected, SessionDisconnecting},
	SessionConnected:     {SessionMigrating, SessionDisconnecting},
	SessionMigrating:     {SessionConnected, SessionDisconnecting},
	SessionDisconnecting: {SessionTerminated},
}

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionMigrating:
		return "migrating"
	case SessionDisconnecting:
		return "disconnecting"
	case SessionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsCommands reports whether playback commands may be sent in this state.
// Commands issued while migrating wait for the migration instead of being rejected.
func (s SessionState) AcceptsCommands() bool {
	return s == SessionConnected || s == SessionMigrating
}
