package hardware

import (
	"context"
	"sync"
	"time"
)

// SimStage is an in-memory stage model. Moves sleep for the configured
// settle time so scan timing behaves like a real axis, then land exactly on
// target.
type SimStage struct {
	mu     sync.Mutex
	x      float64
	y      float64
	z      float64
	settle time.Duration
}

// NewSimStage creates a stage parked at the origin.
func NewSimStage(settle time.Duration) *SimStage {
	return &SimStage{settle: settle}
}

// MoveXYTo implements Stage.
func (s *SimStage) MoveXYTo(ctx context.Context, x, y float64) error {
	if err := simSleep(ctx, s.settle); err != nil {
		return err
	}
	s.mu.Lock()
	s.x, s.y = x, y
	s.mu.Unlock()
	return nil
}

// MoveZTo implements Stage.
func (s *SimStage) MoveZTo(ctx context.Context, z float64) error {
	if err := simSleep(ctx, s.settle); err != nil {
		return err
	}
	s.mu.Lock()
	s.z = z
	s.mu.Unlock()
	return nil
}

// Home implements Stage. The simulated home lands on the origin.
func (s *SimStage) Home(ctx context.Context) error {
	if err := simSleep(ctx, s.settle); err != nil {
		return err
	}
	s.mu.Lock()
	s.x, s.y, s.z = 0, 0, 0
	s.mu.Unlock()
	return nil
}

// WaitForIdle implements Stage. Simulated moves settle inside the move
// call, so this returns immediately.
func (s *SimStage) WaitForIdle(ctx context.Context) error {
	return ctx.Err()
}

// Position implements Stage.
func (s *SimStage) Position() (x, y, z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y, s.z
}

// SimPiezo is an in-memory piezo model. Moves are instantaneous.
type SimPiezo struct {
	mu      sync.Mutex
	um      float64
	rangeUm float64
}

// NewSimPiezo creates a piezo at zero displacement.
func NewSimPiezo(rangeUm float64) *SimPiezo {
	return &SimPiezo{rangeUm: rangeUm}
}

// MoveTo implements Piezo.
func (p *SimPiezo) MoveTo(ctx context.Context, um float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.um = um
	p.mu.Unlock()
	return nil
}

// Position implements Piezo.
func (p *SimPiezo) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.um
}

// RangeUm implements Piezo.
func (p *SimPiezo) RangeUm() float64 { return p.rangeUm }

// simSource is the modelled state of one illumination channel.
type simSource struct {
	intensity float64
	on        bool
}

// SimIllumination is an in-memory illumination model tracking per-source
// intensity and on/off state.
type SimIllumination struct {
	mu      sync.Mutex
	sources map[int]simSource
}

// NewSimIllumination creates a model with every source off.
func NewSimIllumination() *SimIllumination {
	return &SimIllumination{sources: make(map[int]simSource)}
}

// SetIntensity implements Illumination.
func (s *SimIllumination) SetIntensity(source int, percent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sources[source]
	st.intensity = percent
	s.sources[source] = st
	return nil
}

// TurnOn implements Illumination.
func (s *SimIllumination) TurnOn(source int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sources[source]
	st.on = true
	s.sources[source] = st
	return nil
}

// TurnOff implements Illumination.
func (s *SimIllumination) TurnOff(source int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sources[source]
	st.on = false
	s.sources[source] = st
	return nil
}

// SourceState returns the modelled intensity and on/off state of a source.
func (s *SimIllumination) SourceState(source int) (intensity float64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sources[source]
	return st.intensity, st.on
}

// SimFilterWheel is an in-memory filter wheel model. The wheel starts at
// position 1.
type SimFilterWheel struct {
	mu        sync.Mutex
	position  int
	positions int
}

// NewSimFilterWheel creates a wheel with the given position count.
func NewSimFilterWheel(positions int) *SimFilterWheel {
	return &SimFilterWheel{position: 1, positions: positions}
}

// SetPosition implements FilterWheel.
func (w *SimFilterWheel) SetPosition(ctx context.Context, position int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.position = position
	w.mu.Unlock()
	return nil
}

// Position implements FilterWheel.
func (w *SimFilterWheel) Position() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

// Positions implements FilterWheel.
func (w *SimFilterWheel) Positions() int { return w.positions }

// SimFluidics is an in-memory fluidics model that counts sequence runs.
type SimFluidics struct {
	mu   sync.Mutex
	runs int
}

// NewSimFluidics creates a fluidics model.
func NewSimFluidics() *SimFluidics {
	return &SimFluidics{}
}

// RunSequence implements Fluidics.
func (f *SimFluidics) RunSequence(ctx context.Context, timepoint int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return nil
}

// Runs returns how many sequences have been executed.
func (f *SimFluidics) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// SimReflectionAF models a laser reflection sensor with perfect knowledge
// of the simulated focal plane: the measured offset is exactly the
// correction needed.
type SimReflectionAF struct {
	// focusErrorUm reports the current distance from focus in
	// micrometres, positive when above the focal plane.
	focusErrorUm func() float64
}

// NewSimReflectionAF creates a sensor reading from the given focus error
// function.
func NewSimReflectionAF(focusErrorUm func() float64) *SimReflectionAF {
	return &SimReflectionAF{focusErrorUm: focusErrorUm}
}

// MeasureOffsetUm implements ReflectionAF.
func (r *SimReflectionAF) MeasureOffsetUm(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return -r.focusErrorUm(), nil
}

// simSleep waits for d or until ctx is done, whichever comes first.
func simSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
