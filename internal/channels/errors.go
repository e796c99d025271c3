package channels

import "errors"

var (
	// ErrNotFound is returned when no configuration matches the lookup.
	ErrNotFound = errors.New("channel configuration not found")

	// ErrDuplicate is returned when a configuration with the same name and
	// objective already exists.
	ErrDuplicate = errors.New("channel configuration already exists")

	// ErrInvalidConfig is wrapped by all field validation failures.
	ErrInvalidConfig = errors.New("invalid channel configuration")
)
