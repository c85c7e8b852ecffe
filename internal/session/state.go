package session

import "fmt"

// State is the lifecycle state of one voice session.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateActive
	StateFunctionCallPending
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateFunctionCallPending:
		return "function_call_pending"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == StateClosed || s == StateError
}

// validTransition encodes the session state machine. The error state is
// reachable from any non-terminal state and is handled separately.
func validTransition(from, to State) bool {
	switch from {
	case StateConnecting:
		return to == StateConnected || to == StateClosing
	case StateConnected:
		return to == StateActive || to == StateClosing
	case StateActive:
		return to == StateFunctionCallPending || to == StateClosing
	case StateFunctionCallPending:
		return to == StateActive || to == StateClosing
	case StateClosing:
		return to == StateClosed
	default:
		return false
	}
}
