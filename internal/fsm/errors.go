package fsm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is the sentinel wrapped by TransitionError.
	ErrInvalidTransition = errors.New("fsm: invalid transition")

	// ErrInvalidState is the sentinel wrapped by OperationError.
	ErrInvalidState = errors.New("fsm: invalid state for operation")
)

// TransitionError reports an attempted transition that is not in the
// machine's table.
type TransitionError struct {
	// Machine is the name given at construction.
	Machine string

	// From is the state the machine was in.
	From string

	// To is the rejected target state.
	To string

	// Allowed lists the states reachable from From, in table order.
	Allowed []string
}

// Error implements error.
func (e *TransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("%s: cannot transition from %s to %s (allowed: %s)",
		e.Machine, e.From, e.To, allowed)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// OperationError reports an operation attempted while the machine was not
// in a required state.
type OperationError struct {
	// Machine is the name given at construction.
	Machine string

	// Operation is the name of the rejected operation.
	Operation string

	// State is the state the machine was in.
	State string

	// Required lists the states the operation needed.
	Required []string
}

// Error implements error.
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s requires state %s, currently %s",
		e.Machine, e.Operation, strings.Join(e.Required, " or "), e.State)
}

// Unwrap lets errors.Is match ErrInvalidState.
func (e *OperationError) Unwrap() error { return ErrInvalidState }
