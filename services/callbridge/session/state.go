package session

import "fmt"

// State represents the lifecycle state of a call session
type State int

const (
	// StateInitializing is the state of a freshly created session
	StateInitializing State = iota
	// StateRinging is an inbound session the user has not answered yet
	StateRinging
	// StateDialing is an outbound session waiting for the far end
	StateDialing
	// StateActive is a connected call
	StateActive
	// StateHeld is a connected call placed on hold
	StateHeld
	// StateDisconnected is the terminal state
	StateDisconnected
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRinging:
		return "ringing"
	case StateDialing:
		return "dialing"
	case StateActive:
		return "active"
	case StateHeld:
		return "held"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// validTransitions defines which state transitions are allowed
var validTransitions = map[State][]State{
	StateInitializing: {StateRinging, StateDialing, StateDisconnected},
	StateRinging:      {StateActive, StateDisconnected},
	StateDialing:      {StateActive, StateDisconnected},
	StateActive:       {StateHeld, StateDisconnected},
	StateHeld:         {StateActive, StateDisconnected},
	StateDisconnected: {},
}

// CanTransitionTo checks if a transition from current state to next state is valid
func (s State) CanTransitionTo(next State) bool {
	for _, state := range validTransitions[s] {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s State) IsTerminal() bool {
	return s == StateDisconnected
}

// IsConnected reports whether the call has been answered and not yet ended
func (s State) IsConnected() bool {
	return s == StateActive || s == StateHeld
}

// Direction is the call direction, fixed at creation
type Direction int

const (
	DirectionIncoming Direction = iota
	DirectionOutgoing
)

func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// Cause explains why a session was disconnected
type Cause int

const (
	CauseUnknown Cause = iota
	CauseLocal
	CauseRemote
	CauseError
	CauseBusy
	CauseAnsweredElsewhere
	CauseMissed
	CauseRejected
	CauseOther
)

// String returns the string representation of the cause
func (c Cause) String() string {
	switch c {
	case CauseLocal:
		return "local"
	case CauseRemote:
		return "remote"
	case CauseError:
		return "error"
	case CauseBusy:
		return "busy"
	case CauseAnsweredElsewhere:
		return "answered-elsewhere"
	case CauseMissed:
		return "missed"
	case CauseRejected:
		return "rejected"
	case CauseOther:
		return "other"
	default:
		return "unknown"
	}
}

// Reason codes accepted by ReportDisconnect.
const (
	ReasonFailed            = 1
	ReasonRemoteEnded       = 2
	ReasonBusy              = 3
	ReasonAnsweredElsewhere = 4
	ReasonDeclinedElsewhere = 5
	ReasonMissed            = 6
)

// CauseFromReason maps an application reason code to a disconnect cause.
// Unknown codes map to CauseOther.
func CauseFromReason(code int) Cause {
	switch code {
	case ReasonFailed:
		return CauseError
	case ReasonRemoteEnded, ReasonDeclinedElsewhere:
		return CauseRemote
	case ReasonBusy:
		return CauseBusy
	case ReasonAnsweredElsewhere:
		return CauseAnsweredElsewhere
	case ReasonMissed:
		return CauseMissed
	default:
		return CauseOther
	}
}
