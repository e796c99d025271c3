package acquisition

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/channels"
	"github.com/calderlab/scopecore/internal/fsm"
	"github.com/calderlab/scopecore/internal/hardware"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
	"github.com/calderlab/scopecore/internal/scan"
)

// abortPollInterval slices the wait between time points so an abort is
// noticed within one slice.
const abortPollInterval = 50 * time.Millisecond

// flushTimeout bounds the teardown's sink flush.
const flushTimeout = 30 * time.Second

// worker executes one acquisition run on the actor's side-work pool. One
// worker is built per run and discarded after teardown; the controller owns
// everything longer-lived.
type worker struct {
	params  *Parameters
	rig     *hardware.Rig
	sink    Sink
	b       *bus.Bus
	machine *fsm.Machine[State]
	abort   *atomic.Bool
	log     *logging.Logger

	retryAttempts int
	retryBackoff  time.Duration

	frameSeq    int
	framesSaved int

	// Pre-run hardware state, captured by prepare and put back by
	// teardown.
	preSource    int
	preIntensity float64
	preOn        bool
	preTrigger   hardware.TriggerMode
}

func newWorker(p *Parameters, rig *hardware.Rig, sink Sink, b *bus.Bus, machine *fsm.Machine[State], abort *atomic.Bool, retry config.SinkRetryConfig, log *logging.Logger) *worker {
	attempts := retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &worker{
		params:        p,
		rig:           rig,
		sink:          sink,
		b:             b,
		machine:       machine,
		abort:         abort,
		log:           log.With("component", "acquisition_worker", "experiment_id", p.ExperimentID),
		retryAttempts: attempts,
		retryBackoff:  time.Duration(retry.BackoffMs) * time.Millisecond,
	}
}

func (w *worker) aborted() bool { return w.abort.Load() }

// run drives the whole run: hardware preparation, the scan loop, then
// teardown. It always returns nil; the outcome travels in
// AcquisitionWorkerFinished, so a scan fault never looks like a pool
// failure.
func (w *worker) run() error {
	ctx := context.Background()

	if err := w.prepare(); err != nil {
		w.log.Error("acquisition preparation failed", "error", err)
		w.teardown(ctx, err)
		return nil
	}

	if err := w.machine.TransitionTo(StateAcquiring); err != nil {
		w.teardown(ctx, err)
		return nil
	}

	scanErr := w.scan(ctx)
	if scanErr != nil {
		w.log.Error("acquisition scan failed", "error", scanErr)
	}
	w.teardown(ctx, scanErr)
	return nil
}

// prepare records the pre-run illumination and trigger state, then arms
// the camera for the run.
func (w *worker) prepare() error {
	w.preSource, w.preIntensity, w.preOn = w.rig.Illumination.State()
	w.preTrigger = w.rig.Camera.TriggerMode()

	if err := w.rig.Camera.SetTriggerMode(w.params.TriggerMode); err != nil {
		return fmt.Errorf("setting trigger mode: %w", err)
	}
	if err := w.rig.Camera.StartStreaming(); err != nil {
		return fmt.Errorf("starting streaming: %w", err)
	}
	return nil
}

// scan is the nested iteration over time points, regions, fields of view,
// Z planes and channels. It returns nil on a clean finish or an abort; the
// caller distinguishes the two through the abort flag.
func (w *worker) scan(ctx context.Context) error {
	p := w.params
	totalRegions := len(p.Regions)

	for t := 0; t < p.NT; t++ {
		if w.aborted() {
			return nil
		}
		cycleStart := time.Now()

		if p.UseFluidics && w.rig.Fluidics != nil {
			if err := w.rig.Fluidics.RunSequence(ctx, t); err != nil {
				return fmt.Errorf("fluidics before timepoint %d: %w", t, err)
			}
		}

		for ri, region := range p.Regions {
			if w.aborted() {
				return nil
			}
			if err := w.scanRegion(ctx, t, region); err != nil {
				return fmt.Errorf("timepoint %d region %q: %w", t, region.ID, err)
			}
			if w.aborted() {
				return nil
			}

			done := t*totalRegions + ri + 1
			w.b.Publish(bus.AcquisitionProgress{
				CurrentRegion:    ri + 1,
				TotalRegions:     totalRegions,
				CurrentTimepoint: t + 1,
				TotalTimepoints:  p.NT,
				ProgressPercent:  100 * float64(done) / float64(p.NT*totalRegions),
			})
		}

		if t < p.NT-1 && !w.waitForNextTimepoint(cycleStart) {
			return nil
		}
	}
	return nil
}

func (w *worker) scanRegion(ctx context.Context, t int, region scan.Region) error {
	for _, fov := range region.FOVs {
		if w.aborted() {
			return nil
		}
		if err := w.scanFOV(ctx, t, region, fov); err != nil {
			return fmt.Errorf("fov %d: %w", fov.Index, err)
		}
	}
	return nil
}

func (w *worker) scanFOV(ctx context.Context, t int, region scan.Region, fov scan.FOV) error {
	p := w.params

	x, y, z := fov.X, fov.Y, fov.Z
	if err := w.rig.Stage.MoveTo(ctx, &x, &y, &z); err != nil {
		return fmt.Errorf("moving to fov: %w", err)
	}

	if err := w.focusFOV(ctx, fov); err != nil {
		return err
	}

	// The stack builds up from whatever plane focusing settled on.
	_, _, stackBase := w.rig.Stage.Position()

	for zi := 0; zi < p.NZ; zi++ {
		if w.aborted() {
			return nil
		}
		if err := w.moveToPlane(ctx, stackBase, zi); err != nil {
			return fmt.Errorf("z plane %d: %w", zi, err)
		}

		for _, ch := range p.Channels {
			if w.aborted() {
				return nil
			}
			if err := w.captureChannel(ctx, t, region, fov, zi, ch); err != nil {
				return fmt.Errorf("z plane %d channel %q: %w", zi, ch.Name, err)
			}
		}
	}

	return w.unwindStack(ctx, stackBase)
}

// contrastDue reports whether this field of view gets a contrast sweep.
func (w *worker) contrastDue(fov scan.FOV) bool {
	pol := w.params.Autofocus
	if !pol.Enabled {
		return false
	}
	every := pol.EveryNFOVs
	if every < 1 {
		every = 1
	}
	return fov.Index%every == 0
}

// focusFOV refines Z before imaging. The reflection sensor, when requested
// and present, corrects every field of view; otherwise the contrast sweep
// runs on the fields the every-N policy selects. The sweep images with the
// run's first channel, so that channel's optics are applied first.
func (w *worker) focusFOV(ctx context.Context, fov scan.FOV) error {
	if w.params.UseReflectionAF && w.rig.ReflectionAF != nil {
		offsetUm, err := w.rig.ReflectionAF.MeasureOffsetUm(ctx)
		if err != nil {
			return fmt.Errorf("reflection autofocus: %w", err)
		}
		if err := w.rig.Stage.MoveRelative(ctx, 0, 0, offsetUm/1000.0); err != nil {
			return fmt.Errorf("reflection autofocus correction: %w", err)
		}
		return nil
	}

	if !w.contrastDue(fov) {
		return nil
	}

	ch := &w.params.Channels[0]
	if err := channels.Apply(ctx, w.rig, ch); err != nil {
		return fmt.Errorf("autofocus channel setup: %w", err)
	}
	res, err := runContrastAF(ctx, w.rig, ch.IlluminationSource, ch.IlluminationIntensity,
		w.params.Autofocus, w.params.TriggerMode, w.abort, w.log)
	if err != nil {
		return err
	}
	w.log.Info("autofocus done",
		"best_plane", res.BestPlane,
		"best_measure", res.BestMeasure,
		"planes_scanned", res.PlanesScanned,
		"aborted", res.Aborted)
	return nil
}

// moveToPlane positions the Z axis for plane zi of the stack: the piezo
// when the run uses it, the stage otherwise.
func (w *worker) moveToPlane(ctx context.Context, stackBase float64, zi int) error {
	if w.params.UsePiezo {
		return w.rig.Piezo.MoveTo(ctx, float64(zi)*w.params.DeltaZUm)
	}
	if zi == 0 {
		return nil
	}
	return w.rig.Stage.MoveZTo(ctx, stackBase+float64(zi)*w.params.DeltaZUm/1000.0)
}

// unwindStack returns the Z axis to the stack base after a completed field
// of view.
func (w *worker) unwindStack(ctx context.Context, stackBase float64) error {
	if w.params.NZ <= 1 {
		return nil
	}
	if w.params.UsePiezo {
		return w.rig.Piezo.MoveTo(ctx, 0)
	}
	return w.rig.Stage.MoveZTo(ctx, stackBase)
}

// captureChannel applies one channel's optics, takes the exposure, and
// hands the frame to the sink.
func (w *worker) captureChannel(ctx context.Context, t int, region scan.Region, fov scan.FOV, zi int, ch channels.Config) error {
	if err := channels.Apply(ctx, w.rig, &ch); err != nil {
		return err
	}

	// A channel-level focus offset folds into the stage position on
	// single-plane runs only; a stack already brackets the depth.
	offsetMm := 0.0
	if w.params.NZ == 1 && ch.ZOffsetUm != 0 {
		offsetMm = ch.ZOffsetUm / 1000.0
		if err := w.rig.Stage.MoveRelative(ctx, 0, 0, offsetMm); err != nil {
			return fmt.Errorf("applying channel z offset: %w", err)
		}
	}

	frame, err := captureFrame(ctx, w.rig, w.params.TriggerMode, ch.IlluminationSource, ch.IlluminationIntensity)
	x, y, zAt := w.rig.Stage.Position()

	if offsetMm != 0 {
		if backErr := w.rig.Stage.MoveRelative(ctx, 0, 0, -offsetMm); backErr != nil && err == nil {
			err = fmt.Errorf("removing channel z offset: %w", backErr)
		}
	}
	if err != nil {
		return err
	}

	info := CaptureInfo{
		ExperimentID: w.params.ExperimentID,
		RegionID:     region.ID,
		FOVIndex:     fov.Index,
		ZIndex:       zi,
		Timepoint:    t,
		Channel:      ch.Name,
		X:            x,
		Y:            y,
		Z:            zAt,
		CapturedAt:   frame.Timestamp,
		FrameSeq:     w.frameSeq,
	}
	w.frameSeq++

	saved, err := w.deliver(frame, info)
	if err != nil {
		return err
	}
	if !saved {
		return nil
	}
	w.framesSaved++

	w.b.Publish(bus.FrameCaptured{
		ExperimentID: info.ExperimentID,
		Region:       info.RegionID,
		FOVIndex:     info.FOVIndex,
		ZIndex:       info.ZIndex,
		Timepoint:    info.Timepoint,
		Channel:      info.Channel,
		X:            info.X,
		Y:            info.Y,
		Z:            info.Z,
		CapturedAt:   info.CapturedAt,
	})
	return nil
}

// deliver hands the frame to the sink, retrying on backpressure up to the
// configured budget. An abort during the retry wait drops the frame
// without error so the unwind stays fast.
func (w *worker) deliver(frame *hardware.Frame, info CaptureInfo) (bool, error) {
	for i := 0; i < w.retryAttempts; i++ {
		if w.sink.Enqueue(frame, info) {
			return true, nil
		}
		if w.aborted() {
			w.log.Warn("frame dropped during abort", "key", info.Key())
			return false, nil
		}
		if i < w.retryAttempts-1 {
			time.Sleep(w.retryBackoff)
		}
	}
	return false, fmt.Errorf("%w: %s after %d attempts", ErrSinkRejected, info.Key(), w.retryAttempts)
}

// waitForNextTimepoint sleeps out the remainder of the start-to-start
// interval, returning false if an abort arrives. A cycle that overran the
// interval starts the next time point immediately.
func (w *worker) waitForNextTimepoint(cycleStart time.Time) bool {
	deadline := cycleStart.Add(time.Duration(w.params.TimeIntervalS * float64(time.Second)))
	for time.Now().Before(deadline) {
		if w.aborted() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining > abortPollInterval {
			remaining = abortPollInterval
		}
		time.Sleep(remaining)
	}
	return !w.aborted()
}

// teardown is the single exit path for every run. It drives the machine
// through stopping, returns the hardware to its pre-run illumination and
// trigger state, flushes the sink, lands the machine on idle, and
// publishes the run's one terminal AcquisitionWorkerFinished.
func (w *worker) teardown(ctx context.Context, scanErr error) {
	if err := w.machine.TransitionTo(StateStopping); err != nil {
		w.machine.ForceState(StateStopping, "teardown")
	}

	if err := w.rig.Camera.StopStreaming(); err != nil {
		w.log.Error("stopping streaming", "error", err)
	}
	if err := w.rig.Illumination.Set(w.preSource, w.preIntensity, w.preOn); err != nil {
		w.log.Error("restoring illumination", "error", err)
	}
	if err := w.rig.Camera.SetTriggerMode(w.preTrigger); err != nil {
		w.log.Error("restoring trigger mode", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := w.sink.Flush(flushCtx); err != nil {
		w.log.Error("flushing sink", "error", err)
		if scanErr == nil {
			scanErr = fmt.Errorf("flushing sink: %w", err)
		}
	}

	if err := w.machine.TransitionTo(StateIdle); err != nil {
		w.machine.ForceState(StateIdle, "teardown recovery")
	}

	aborted := w.aborted()
	msg := ""
	if scanErr != nil {
		msg = scanErr.Error()
	}
	w.b.Publish(bus.AcquisitionWorkerFinished{
		ExperimentID: w.params.ExperimentID,
		Success:      scanErr == nil && !aborted,
		Aborted:      aborted,
		Error:        msg,
	})
	w.b.Publish(bus.AcquisitionStateChanged{ExperimentID: w.params.ExperimentID, InProgress: false})

	w.log.Info("acquisition finished",
		"frames_saved", w.framesSaved,
		"aborted", aborted,
		"success", scanErr == nil && !aborted)
}
