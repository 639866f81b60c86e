package session

// Signal is an input to the state machine, coming either from the
// application or from the platform.
type Signal int

const (
	SignalRing Signal = iota
	SignalDial
	SignalAnswer
	SignalConnected
	SignalSetCurrent
	SignalHold
	SignalUnhold
	SignalHangup
	SignalRemoteEnd
	SignalReject
	SignalAbort
)

func (s Signal) String() string {
	switch s {
	case SignalRing:
		return "ring"
	case SignalDial:
		return "dial"
	case SignalAnswer:
		return "answer"
	case SignalConnected:
		return "connected"
	case SignalSetCurrent:
		return "set-current"
	case SignalHold:
		return "hold"
	case SignalUnhold:
		return "unhold"
	case SignalHangup:
		return "hangup"
	case SignalRemoteEnd:
		return "remote-end"
	case SignalReject:
		return "reject"
	case SignalAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Effect is a side effect requested by a transition. Effects are applied
// in slice order.
type Effect int

const (
	EffectAudioModeVoIP Effect = iota
	EffectGainHold
	EffectEmitAnswered
	EffectEmitAudioSession
	EffectEmitHold
	EffectEmitUnhold
	EffectEmitEnd
	EffectEmitReject
	EffectDeregister
)

func (e Effect) String() string {
	switch e {
	case EffectAudioModeVoIP:
		return "audio-mode-voip"
	case EffectGainHold:
		return "gain-hold"
	case EffectEmitAnswered:
		return "emit-answered"
	case EffectEmitAudioSession:
		return "emit-audio-session"
	case EffectEmitHold:
		return "emit-hold"
	case EffectEmitUnhold:
		return "emit-unhold"
	case EffectEmitEnd:
		return "emit-end"
	case EffectEmitReject:
		return "emit-reject"
	case EffectDeregister:
		return "deregister"
	default:
		return "unknown"
	}
}

// Transition computes the next state and the side effects for a signal.
// It has no side effects of its own. A signal that does not apply to the
// current state returns a *TransitionError. Hold and unhold are
// idempotent: repeating them in the state they lead to is a no-op.
func Transition(from State, sig Signal) (State, []Effect, error) {
	if from.IsTerminal() {
		return from, nil, &TransitionError{From: from, Signal: sig, Err: ErrTerminated}
	}

	switch sig {
	case SignalRing:
		if from == StateInitializing {
			return StateRinging, nil, nil
		}
	case SignalDial:
		if from == StateInitializing {
			return StateDialing, nil, nil
		}
	case SignalAnswer:
		if from == StateRinging {
			return StateActive, []Effect{EffectGainHold, EffectAudioModeVoIP, EffectEmitAnswered, EffectEmitAudioSession}, nil
		}
	case SignalConnected:
		if from == StateDialing || from == StateRinging {
			return StateActive, []Effect{EffectGainHold, EffectAudioModeVoIP, EffectEmitAudioSession}, nil
		}
	case SignalSetCurrent:
		if from == StateDialing || from == StateRinging {
			return StateActive, []Effect{EffectGainHold}, nil
		}
		if from == StateActive {
			return StateActive, nil, nil
		}
	case SignalHold:
		switch from {
		case StateActive:
			return StateHeld, []Effect{EffectEmitHold}, nil
		case StateHeld:
			return StateHeld, nil, nil
		}
	case SignalUnhold:
		switch from {
		case StateHeld:
			return StateActive, []Effect{EffectEmitUnhold}, nil
		case StateActive:
			return StateActive, nil, nil
		}
	case SignalHangup, SignalRemoteEnd, SignalAbort:
		return StateDisconnected, []Effect{EffectEmitEnd, EffectDeregister}, nil
	case SignalReject:
		return StateDisconnected, []Effect{EffectEmitReject, EffectDeregister}, nil
	}

	return from, nil, &TransitionError{From: from, Signal: sig, Err: ErrInvalidTransition}
}
