package bus

import "errors"

// ErrDrainTimeout is returned by Drain when the queue did not empty within
// the allotted time. The count returned alongside it reflects the events
// that were processed before the deadline.
var ErrDrainTimeout = errors.New("bus: drain timed out")
