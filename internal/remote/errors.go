package remote

import "errors"

// Domain errors for the remote bridge package.
var (
	// ErrUnknownCommand is returned when a command topic names a kind the
	// bridge has no decoder for.
	ErrUnknownCommand = errors.New("remote: unknown command kind")

	// ErrMalformedPayload is returned when a command payload is not valid
	// JSON for its kind.
	ErrMalformedPayload = errors.New("remote: malformed command payload")

	// ErrBrokerRequired is returned by New when no broker is supplied.
	ErrBrokerRequired = errors.New("remote: broker is required")

	// ErrBusRequired is returned by New when no event bus is supplied.
	ErrBusRequired = errors.New("remote: event bus is required")
)
