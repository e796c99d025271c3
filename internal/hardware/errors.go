package hardware

import "errors"

var (
	// ErrOutOfRange is wrapped by errors for moves or settings outside the
	// device's configured limits.
	ErrOutOfRange = errors.New("hardware: target out of range")

	// ErrNotStreaming is returned when a trigger is sent to a camera that
	// has not been started.
	ErrNotStreaming = errors.New("hardware: camera is not streaming")

	// ErrWrongTriggerMode is returned when a trigger call does not match
	// the camera's configured trigger mode.
	ErrWrongTriggerMode = errors.New("hardware: trigger does not match camera mode")
)
