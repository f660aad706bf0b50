package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition = errors.New("statemachine: no transition")
	ErrRejected     = errors.New("statemachine: transition rejected by guards")
)

// NoTransitionError means the table has no row for the state and event.
type NoTransitionError struct {
	From  any
	Event any
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("statemachine: no transition from %v on %v", e.From, e.Event)
}

func (e *NoTransitionError) Is(target error) bool { return target == ErrNoTransition }

// RejectedError means rows exist but every guard set refused.
type RejectedError struct {
	From  any
	Event any
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("statemachine: transition from %v on %v rejected by guards", e.From, e.Event)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// ActionError wraps the error returned by a transition action.
type ActionError struct {
	From  any
	Event any
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("statemachine: action from %v on %v: %v", e.From, e.Event, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
