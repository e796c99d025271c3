package hardware

import (
	"context"
	"time"
)

// TriggerMode selects how the camera is told to expose.
type TriggerMode int

const (
	// TriggerSoftware exposes on a software trigger call. Illumination is
	// switched on and off around the exposure by the caller.
	TriggerSoftware TriggerMode = iota

	// TriggerHardware exposes on a combined trigger-and-strobe request:
	// the controller fires the light source for exactly the exposure
	// window, so no separate illumination calls are made per frame.
	TriggerHardware
)

// String returns the mode name used in logs and run parameters.
func (m TriggerMode) String() string {
	switch m {
	case TriggerSoftware:
		return "software"
	case TriggerHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// Frame is one captured image. Pixels are 8-bit grayscale, row-major,
// Width*Height long.
type Frame struct {
	SequenceNumber uint64
	Width          int
	Height         int
	Pixels         []byte
	ExposureMs     float64
	Timestamp      time.Time
}

// Stage is a three-axis motorized stage. Coordinates are millimetres.
// Implementations must complete or fail a move before returning; WaitForIdle
// then covers any residual settling.
type Stage interface {
	MoveXYTo(ctx context.Context, x, y float64) error
	MoveZTo(ctx context.Context, z float64) error
	Home(ctx context.Context) error
	WaitForIdle(ctx context.Context) error
	Position() (x, y, z float64)
}

// Piezo is a single-axis fine-focus actuator riding on the objective.
// Displacement is micrometres from the actuator's zero.
type Piezo interface {
	MoveTo(ctx context.Context, um float64) error
	Position() float64
	RangeUm() float64
}

// Camera produces frames on demand while streaming.
type Camera interface {
	SetExposure(ms float64) error
	SetAnalogGain(gain float64) error
	SetTriggerMode(m TriggerMode) error
	TriggerMode() TriggerMode
	StartStreaming() error
	StopStreaming() error

	// SendSoftwareTrigger requests one exposure in TriggerSoftware mode.
	SendSoftwareTrigger() error

	// TriggerWithStrobe requests one exposure in TriggerHardware mode,
	// strobing the given illumination source at the given intensity for
	// the exposure window.
	TriggerWithStrobe(source int, intensity float64) error

	// ReadFrame returns the next frame produced by a trigger, waiting
	// until one arrives or ctx is done.
	ReadFrame(ctx context.Context) (*Frame, error)
}

// Illumination switches and dims the instrument's light sources. Source
// numbers identify laser lines or LED matrix patterns; intensity is percent
// of full output.
type Illumination interface {
	SetIntensity(source int, percent float64) error
	TurnOn(source int) error
	TurnOff(source int) error
}

// FilterWheel rotates the emission filter turret. Positions are numbered
// from 1.
type FilterWheel interface {
	SetPosition(ctx context.Context, position int) error
	Position() int
	Positions() int
}

// Fluidics runs the perfusion sequence scheduled before a time point.
type Fluidics interface {
	RunSequence(ctx context.Context, timepoint int) error
}

// ReflectionAF is a laser reflection focus sensor. MeasureOffsetUm returns
// the signed correction, in micrometres, that would place the sample at
// focus; callers apply it to the piezo or the stage Z axis.
type ReflectionAF interface {
	MeasureOffsetUm(ctx context.Context) (float64, error)
}
