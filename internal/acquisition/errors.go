package acquisition

import "errors"

var (
	// ErrInvalidParameters indicates the run parameters failed validation
	// (empty plan, unknown channel, or a field of view outside stage
	// limits). The controller stays idle.
	ErrInvalidParameters = errors.New("invalid acquisition parameters")

	// ErrSinkRejected indicates the save sink refused a frame for longer
	// than the configured retry budget.
	ErrSinkRejected = errors.New("save sink rejected frame")

	// ErrAutofocusBusy indicates a standalone autofocus sweep is already
	// in flight.
	ErrAutofocusBusy = errors.New("autofocus already running")
)
