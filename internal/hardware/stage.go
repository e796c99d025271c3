package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// StageService owns the stage. It enforces the configured travel limits,
// serializes moves behind its own mutex and publishes StagePositionChanged
// after each completed move.
//
// Thread Safety: all methods are safe for concurrent use. A move holds the
// service lock from validation until the stage reports idle.
type StageService struct {
	drv    Stage
	b      *bus.Bus
	log    *logging.Logger
	limits config.StageConfig

	mu sync.Mutex
}

// NewStageService creates a StageService around drv.
func NewStageService(drv Stage, limits config.StageConfig, b *bus.Bus, log *logging.Logger) *StageService {
	return &StageService{
		drv:    drv,
		b:      b,
		log:    log.With("component", "stage"),
		limits: limits,
	}
}

// MoveTo moves to an absolute position. Nil axes keep their current value.
// The move is rejected before any motion if a target lies outside the
// configured travel limits.
func (s *StageService) MoveTo(ctx context.Context, x, y, z *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	curX, curY, curZ := s.drv.Position()
	tx, ty, tz := curX, curY, curZ
	if x != nil {
		tx = *x
	}
	if y != nil {
		ty = *y
	}
	if z != nil {
		tz = *z
	}
	return s.moveLocked(ctx, tx, ty, tz, x != nil || y != nil, z != nil)
}

// MoveRelative moves by a delta in millimetres.
func (s *StageService) MoveRelative(ctx context.Context, dx, dy, dz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	curX, curY, curZ := s.drv.Position()
	return s.moveLocked(ctx, curX+dx, curY+dy, curZ+dz, dx != 0 || dy != 0, dz != 0)
}

// MoveZTo moves only the Z axis. The scan engine uses it for focus stacks
// when the run does not use the piezo.
func (s *StageService) MoveZTo(ctx context.Context, z float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	curX, curY, _ := s.drv.Position()
	return s.moveLocked(ctx, curX, curY, z, false, true)
}

// moveLocked validates the target, drives the axes that need to move and
// publishes the settled position. Callers hold s.mu.
func (s *StageService) moveLocked(ctx context.Context, x, y, z float64, moveXY, moveZ bool) error {
	if err := s.checkLimits(x, y, z); err != nil {
		return err
	}

	if moveXY {
		if err := s.drv.MoveXYTo(ctx, x, y); err != nil {
			return fmt.Errorf("moving stage xy: %w", err)
		}
	}
	if moveZ {
		if err := s.drv.MoveZTo(ctx, z); err != nil {
			return fmt.Errorf("moving stage z: %w", err)
		}
	}
	if err := s.drv.WaitForIdle(ctx); err != nil {
		return fmt.Errorf("waiting for stage idle: %w", err)
	}

	gotX, gotY, gotZ := s.drv.Position()
	s.log.Debug("stage moved", "x", gotX, "y", gotY, "z", gotZ)
	s.b.Publish(bus.StagePositionChanged{X: gotX, Y: gotY, Z: gotZ})
	return nil
}

// Home re-references the stage and publishes the resulting origin.
func (s *StageService) Home(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.drv.Home(ctx); err != nil {
		return fmt.Errorf("homing stage: %w", err)
	}
	if err := s.drv.WaitForIdle(ctx); err != nil {
		return fmt.Errorf("waiting for stage idle: %w", err)
	}

	x, y, z := s.drv.Position()
	s.log.Info("stage homed", "x", x, "y", y, "z", z)
	s.b.Publish(bus.StagePositionChanged{X: x, Y: y, Z: z})
	return nil
}

// Position returns the current stage position in millimetres.
func (s *StageService) Position() (x, y, z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv.Position()
}

// checkLimits rejects targets outside the configured travel volume.
func (s *StageService) checkLimits(x, y, z float64) error {
	if x < s.limits.XMinMm || x > s.limits.XMaxMm {
		return fmt.Errorf("%w: x %.3f outside [%.3f, %.3f]",
			ErrOutOfRange, x, s.limits.XMinMm, s.limits.XMaxMm)
	}
	if y < s.limits.YMinMm || y > s.limits.YMaxMm {
		return fmt.Errorf("%w: y %.3f outside [%.3f, %.3f]",
			ErrOutOfRange, y, s.limits.YMinMm, s.limits.YMaxMm)
	}
	if z < s.limits.ZMinMm || z > s.limits.ZMaxMm {
		return fmt.Errorf("%w: z %.3f outside [%.3f, %.3f]",
			ErrOutOfRange, z, s.limits.ZMinMm, s.limits.ZMaxMm)
	}
	return nil
}
