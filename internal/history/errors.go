package history

import "errors"

// ErrNotFound is returned when no run matches the lookup.
var ErrNotFound = errors.New("acquisition run not found")
