package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a signal does not apply to the current state
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrTerminated is returned for any signal sent to a disconnected session
	ErrTerminated = errors.New("session is disconnected")
	// ErrInvalidDigit is returned by PlayDigit for characters outside the DTMF alphabet
	ErrInvalidDigit = errors.New("invalid DTMF digit")
	// ErrHoldNotSupported is returned when hold is requested without the hold capability
	ErrHoldNotSupported = errors.New("hold not supported")
)

// TransitionError describes a rejected signal
type TransitionError struct {
	From   State
	Signal Signal
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s in state %s: %v", e.Signal, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
