package actor

import "errors"

var (
	// ErrGetTimeout is returned by Queue.Get when no command arrived
	// within the timeout.
	ErrGetTimeout = errors.New("actor: queue get timed out")

	// ErrDrainTimeout is returned by Drain when queued commands could not
	// be processed within the allotted time.
	ErrDrainTimeout = errors.New("actor: drain timed out")
)
