package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// CameraService owns the camera. It serializes configuration and capture
// behind its own mutex, and holds the lock across trigger-plus-read so two
// callers can never interleave a trigger with someone else's read.
type CameraService struct {
	drv         Camera
	log         *logging.Logger
	readTimeout time.Duration

	mu sync.Mutex
}

// NewCameraService creates a CameraService around drv. readTimeout bounds
// how long a capture waits for the frame after its trigger.
func NewCameraService(drv Camera, readTimeout time.Duration, log *logging.Logger) *CameraService {
	return &CameraService{
		drv:         drv,
		log:         log.With("component", "camera"),
		readTimeout: readTimeout,
	}
}

// Configure applies exposure and analog gain in one step.
func (c *CameraService) Configure(exposureMs, gain float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.drv.SetExposure(exposureMs); err != nil {
		return fmt.Errorf("setting exposure: %w", err)
	}
	if err := c.drv.SetAnalogGain(gain); err != nil {
		return fmt.Errorf("setting analog gain: %w", err)
	}
	return nil
}

// SetTriggerMode switches between software and hardware triggering.
func (c *CameraService) SetTriggerMode(m TriggerMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.drv.SetTriggerMode(m); err != nil {
		return fmt.Errorf("setting trigger mode: %w", err)
	}
	c.log.Debug("trigger mode set", "mode", m.String())
	return nil
}

// TriggerMode returns the camera's configured trigger mode.
func (c *CameraService) TriggerMode() TriggerMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drv.TriggerMode()
}

// StartStreaming arms the sensor.
func (c *CameraService) StartStreaming() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.drv.StartStreaming(); err != nil {
		return fmt.Errorf("starting camera streaming: %w", err)
	}
	return nil
}

// StopStreaming disarms the sensor.
func (c *CameraService) StopStreaming() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.drv.StopStreaming(); err != nil {
		return fmt.Errorf("stopping camera streaming: %w", err)
	}
	return nil
}

// CaptureSoftware fires a software trigger and reads the resulting frame.
// The caller is responsible for illumination around the exposure.
func (c *CameraService) CaptureSoftware(ctx context.Context) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.drv.SendSoftwareTrigger(); err != nil {
		return nil, fmt.Errorf("software trigger: %w", err)
	}
	return c.readLocked(ctx)
}

// CaptureHardware fires a combined trigger-and-strobe request and reads the
// resulting frame. No separate illumination calls are needed.
func (c *CameraService) CaptureHardware(ctx context.Context, source int, intensity float64) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.drv.TriggerWithStrobe(source, intensity); err != nil {
		return nil, fmt.Errorf("strobe trigger: %w", err)
	}
	return c.readLocked(ctx)
}

// readLocked reads one frame with the service's read timeout applied on top
// of ctx. Callers hold c.mu.
func (c *CameraService) readLocked(ctx context.Context) (*Frame, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	frame, err := c.drv.ReadFrame(readCtx)
	if err != nil {
		return nil, err
	}
	return frame, nil
}
