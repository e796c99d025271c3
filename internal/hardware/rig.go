package hardware

import (
	"context"
	"time"

	"github.com/calderlab/scopecore/internal/actor"
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// SimFocalPlaneMm is where the simulated sample sits in focus: the stage Z,
// plus the piezo displacement, that maximizes frame contrast.
const SimFocalPlaneMm = 3.0

// Rig groups the device services of one instrument. Fluidics is nil when
// the instrument has no perfusion hardware; ReflectionAF is nil when it has
// no laser focus sensor.
type Rig struct {
	Stage        *StageService
	Camera       *CameraService
	Illumination *IlluminationService
	Filter       *FilterService
	Piezo        *PiezoService
	Fluidics     *FluidicsService
	ReflectionAF ReflectionAF
}

// NewSimRig builds a rig backed entirely by simulated drivers. The camera
// and the reflection sensor share one focus model: stage Z plus piezo
// displacement against SimFocalPlaneMm.
func NewSimRig(cfg config.HardwareConfig, b *bus.Bus, log *logging.Logger) *Rig {
	stage := NewSimStage(time.Duration(cfg.Stage.SettleTimeMs) * time.Millisecond)
	piezo := NewSimPiezo(cfg.Piezo.RangeUm)

	focusErrorUm := func() float64 {
		_, _, z := stage.Position()
		return z*1000 + piezo.Position() - SimFocalPlaneMm*1000
	}

	rig := &Rig{
		Stage:        NewStageService(stage, cfg.Stage, b, log),
		Camera:       NewCameraService(NewSimCamera(cfg.Camera.Width, cfg.Camera.Height, focusErrorUm), time.Duration(cfg.Camera.ReadTimeoutMs)*time.Millisecond, log),
		Illumination: NewIlluminationService(NewSimIllumination(), b, log),
		Filter:       NewFilterService(NewSimFilterWheel(cfg.Filter.Positions), b, log),
		Piezo:        NewPiezoService(piezo, b, log),
		ReflectionAF: NewSimReflectionAF(focusErrorUm),
	}
	if cfg.Fluidics.Enabled {
		rig.Fluidics = NewFluidicsService(NewSimFluidics(), log)
	}
	return rig
}

// RegisterHandlers registers the rig's command handlers on the actor. Every
// hardware-touching command executes on the actor's processing goroutine.
func (r *Rig) RegisterHandlers(a *actor.Actor) {
	actor.Handle(a, func(cmd bus.MoveStageToCommand) error {
		return r.Stage.MoveTo(context.Background(), cmd.X, cmd.Y, cmd.Z)
	})
	actor.Handle(a, func(cmd bus.MoveStageRelativeCommand) error {
		return r.Stage.MoveRelative(context.Background(), cmd.DX, cmd.DY, cmd.DZ)
	})
	actor.Handle(a, func(cmd bus.HomeStageCommand) error {
		return r.Stage.Home(context.Background())
	})
	actor.Handle(a, func(cmd bus.SetIlluminationCommand) error {
		return r.Illumination.Set(cmd.Source, cmd.Intensity, cmd.On)
	})
	actor.Handle(a, func(cmd bus.SetFilterPositionCommand) error {
		return r.Filter.SetPosition(context.Background(), cmd.Position)
	})
	actor.Handle(a, func(cmd bus.SetPiezoPositionCommand) error {
		return r.Piezo.MoveTo(context.Background(), cmd.PositionUm)
	})
}
