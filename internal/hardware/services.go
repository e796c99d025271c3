package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// IlluminationService owns the light sources. It tracks the last applied
// state and publishes IlluminationChanged after each change.
type IlluminationService struct {
	drv Illumination
	b   *bus.Bus
	log *logging.Logger

	mu        sync.Mutex
	source    int
	intensity float64
	on        bool
}

// NewIlluminationService creates an IlluminationService around drv.
func NewIlluminationService(drv Illumination, b *bus.Bus, log *logging.Logger) *IlluminationService {
	return &IlluminationService{
		drv: drv,
		b:   b,
		log: log.With("component", "illumination"),
	}
}

// Set configures a source's intensity and switches it on or off.
func (s *IlluminationService) Set(source int, intensity float64, on bool) error {
	if intensity < 0 || intensity > 100 {
		return fmt.Errorf("%w: intensity %.1f%% outside [0, 100]", ErrOutOfRange, intensity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.drv.SetIntensity(source, intensity); err != nil {
		return fmt.Errorf("setting intensity: %w", err)
	}
	var err error
	if on {
		err = s.drv.TurnOn(source)
	} else {
		err = s.drv.TurnOff(source)
	}
	if err != nil {
		return fmt.Errorf("switching source %d: %w", source, err)
	}

	s.source, s.intensity, s.on = source, intensity, on
	s.b.Publish(bus.IlluminationChanged{Source: source, Intensity: intensity, On: on})
	return nil
}

// TurnOn switches a source on at its current intensity.
func (s *IlluminationService) TurnOn(source int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.drv.TurnOn(source); err != nil {
		return fmt.Errorf("turning on source %d: %w", source, err)
	}
	s.source, s.on = source, true
	s.b.Publish(bus.IlluminationChanged{Source: source, Intensity: s.intensity, On: true})
	return nil
}

// TurnOff switches a source off.
func (s *IlluminationService) TurnOff(source int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.drv.TurnOff(source); err != nil {
		return fmt.Errorf("turning off source %d: %w", source, err)
	}
	s.on = false
	s.b.Publish(bus.IlluminationChanged{Source: source, Intensity: s.intensity, On: false})
	return nil
}

// State returns the last applied source, intensity and on/off state.
func (s *IlluminationService) State() (source int, intensity float64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source, s.intensity, s.on
}

// FilterService owns the emission filter wheel.
type FilterService struct {
	drv FilterWheel
	b   *bus.Bus
	log *logging.Logger

	mu sync.Mutex
}

// NewFilterService creates a FilterService around drv.
func NewFilterService(drv FilterWheel, b *bus.Bus, log *logging.Logger) *FilterService {
	return &FilterService{
		drv: drv,
		b:   b,
		log: log.With("component", "filter"),
	}
}

// SetPosition rotates the wheel. Positions are numbered 1 through
// Positions.
func (s *FilterService) SetPosition(ctx context.Context, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position < 1 || position > s.drv.Positions() {
		return fmt.Errorf("%w: filter position %d outside [1, %d]",
			ErrOutOfRange, position, s.drv.Positions())
	}
	if err := s.drv.SetPosition(ctx, position); err != nil {
		return fmt.Errorf("setting filter position: %w", err)
	}

	s.b.Publish(bus.FilterPositionChanged{Position: position})
	return nil
}

// Position returns the current wheel position.
func (s *FilterService) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv.Position()
}

// PiezoService owns the objective piezo.
type PiezoService struct {
	drv Piezo
	b   *bus.Bus
	log *logging.Logger

	mu sync.Mutex
}

// NewPiezoService creates a PiezoService around drv.
func NewPiezoService(drv Piezo, b *bus.Bus, log *logging.Logger) *PiezoService {
	return &PiezoService{
		drv: drv,
		b:   b,
		log: log.With("component", "piezo"),
	}
}

// MoveTo moves the piezo to an absolute displacement in micrometres.
func (s *PiezoService) MoveTo(ctx context.Context, um float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if um < 0 || um > s.drv.RangeUm() {
		return fmt.Errorf("%w: piezo %.2fum outside [0, %.2f]",
			ErrOutOfRange, um, s.drv.RangeUm())
	}
	if err := s.drv.MoveTo(ctx, um); err != nil {
		return fmt.Errorf("moving piezo: %w", err)
	}

	s.b.Publish(bus.PiezoPositionChanged{PositionUm: um})
	return nil
}

// Position returns the current displacement in micrometres.
func (s *PiezoService) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv.Position()
}

// RangeUm returns the actuator's full travel in micrometres.
func (s *PiezoService) RangeUm() float64 { return s.drv.RangeUm() }

// FluidicsService owns the perfusion controller.
type FluidicsService struct {
	drv Fluidics
	log *logging.Logger

	mu sync.Mutex
}

// NewFluidicsService creates a FluidicsService around drv.
func NewFluidicsService(drv Fluidics, log *logging.Logger) *FluidicsService {
	return &FluidicsService{
		drv: drv,
		log: log.With("component", "fluidics"),
	}
}

// RunSequence runs the perfusion steps scheduled before a time point.
func (s *FluidicsService) RunSequence(ctx context.Context, timepoint int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info("running fluidics sequence", "timepoint", timepoint)
	if err := s.drv.RunSequence(ctx, timepoint); err != nil {
		return fmt.Errorf("fluidics sequence for timepoint %d: %w", timepoint, err)
	}
	return nil
}
