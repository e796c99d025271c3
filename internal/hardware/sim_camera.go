package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// simDepthOfFieldUm controls how fast the synthesized contrast falls off
// with focus error. Chosen to resemble a 20x objective.
const simDepthOfFieldUm = 5.0

// SimCamera synthesizes frames instead of reading a sensor. Frame contrast
// is a Lorentzian of the current focus error, so the variance of a frame
// peaks exactly at the simulated focal plane. That one property is enough
// to exercise contrast autofocus end to end.
type SimCamera struct {
	mu         sync.Mutex
	width      int
	height     int
	exposureMs float64
	gain       float64
	trigger    TriggerMode
	streaming  bool
	seq        uint64
	pending    chan *Frame

	// focusErrorUm reports the current distance from the simulated focal
	// plane in micrometres.
	focusErrorUm func() float64
}

// NewSimCamera creates a camera producing width x height frames whose
// sharpness is driven by focusErrorUm.
func NewSimCamera(width, height int, focusErrorUm func() float64) *SimCamera {
	return &SimCamera{
		width:        width,
		height:       height,
		exposureMs:   10,
		gain:         1,
		pending:      make(chan *Frame, 1),
		focusErrorUm: focusErrorUm,
	}
}

// SetExposure implements Camera.
func (c *SimCamera) SetExposure(ms float64) error {
	if ms <= 0 {
		return fmt.Errorf("%w: exposure %.2fms must be positive", ErrOutOfRange, ms)
	}
	c.mu.Lock()
	c.exposureMs = ms
	c.mu.Unlock()
	return nil
}

// SetAnalogGain implements Camera.
func (c *SimCamera) SetAnalogGain(gain float64) error {
	if gain < 0 {
		return fmt.Errorf("%w: analog gain %.2f must not be negative", ErrOutOfRange, gain)
	}
	c.mu.Lock()
	c.gain = gain
	c.mu.Unlock()
	return nil
}

// SetTriggerMode implements Camera.
func (c *SimCamera) SetTriggerMode(m TriggerMode) error {
	c.mu.Lock()
	c.trigger = m
	c.mu.Unlock()
	return nil
}

// TriggerMode returns the configured trigger mode.
func (c *SimCamera) TriggerMode() TriggerMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigger
}

// StartStreaming implements Camera.
func (c *SimCamera) StartStreaming() error {
	c.mu.Lock()
	c.streaming = true
	c.mu.Unlock()
	return nil
}

// StopStreaming implements Camera.
func (c *SimCamera) StopStreaming() error {
	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
	return nil
}

// Streaming reports whether the camera has been started.
func (c *SimCamera) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// SendSoftwareTrigger implements Camera.
func (c *SimCamera) SendSoftwareTrigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		return ErrNotStreaming
	}
	if c.trigger != TriggerSoftware {
		return fmt.Errorf("%w: software trigger sent in %s mode", ErrWrongTriggerMode, c.trigger)
	}
	c.deliver(c.synthesize(1.0))
	return nil
}

// TriggerWithStrobe implements Camera.
func (c *SimCamera) TriggerWithStrobe(source int, intensity float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		return ErrNotStreaming
	}
	if c.trigger != TriggerHardware {
		return fmt.Errorf("%w: strobe trigger sent in %s mode", ErrWrongTriggerMode, c.trigger)
	}
	c.deliver(c.synthesize(intensity / 100))
	return nil
}

// ReadFrame implements Camera.
func (c *SimCamera) ReadFrame(ctx context.Context) (*Frame, error) {
	select {
	case f := <-c.pending:
		return f, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("reading frame: %w", ctx.Err())
	}
}

// deliver replaces any unread frame with the new one, matching a real
// sensor's single-slot buffer. Callers hold c.mu.
func (c *SimCamera) deliver(f *Frame) {
	select {
	case <-c.pending:
	default:
	}
	c.pending <- f
}

// synthesize builds a checkerboard frame whose contrast amplitude follows
// the focus error. Callers hold c.mu.
func (c *SimCamera) synthesize(brightness float64) *Frame {
	errUm := 0.0
	if c.focusErrorUm != nil {
		errUm = c.focusErrorUm()
	}
	// Contrast falls off with defocus; brightness scales with the strobe.
	amp := 100.0 / (1.0 + (errUm/simDepthOfFieldUm)*(errUm/simDepthOfFieldUm))
	amp *= clamp01(brightness)

	pixels := make([]byte, c.width*c.height)
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			v := 128.0
			if (x+y)%2 == 0 {
				v += amp
			} else {
				v -= amp
			}
			pixels[y*c.width+x] = byte(v)
		}
	}

	c.seq++
	return &Frame{
		SequenceNumber: c.seq,
		Width:          c.width,
		Height:         c.height,
		Pixels:         pixels,
		ExposureMs:     c.exposureMs,
		Timestamp:      time.Now(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
