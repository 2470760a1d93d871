package session

import "github.com/zulandar/groupyard/internal/platform"

// State is a session's lifecycle state.
type State string

const (
	StateNotFound      State = "not_found"
	StateStored        State = "stored" // credentials on disk, no live connection
	StateInitializing  State = "initializing"
	StateAwaitingScan  State = "awaiting_credential_scan"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
	StateAuthFailed    State = "auth_failed"
	StateDisconnected  State = "disconnected"
)

// Terminal reports whether no further event can move the session.
func (s State) Terminal() bool {
	return s == StateAuthFailed || s == StateDisconnected
}

// Transition returns the state reached from `from` on event ev. ok is
// false when the event does not apply in that state.
func Transition(from State, ev platform.EventKind) (State, bool) {
	switch ev {
	case platform.EventScanRequired:
		if from == StateInitializing || from == StateAwaitingScan {
			return StateAwaitingScan, true
		}
	case platform.EventAuthenticated:
		if from == StateInitializing || from == StateAwaitingScan {
			return StateAuthenticated, true
		}
	case platform.EventReady:
		if from == StateInitializing || from == StateAwaitingScan || from == StateAuthenticated {
			return StateReady, true
		}
	case platform.EventAuthFailed:
		if from == StateInitializing || from == StateAwaitingScan {
			return StateAuthFailed, true
		}
	case platform.EventDisconnected:
		if from == StateReady || from == StateAuthenticated {
			return StateDisconnected, true
		}
	}
	return from, false
}
