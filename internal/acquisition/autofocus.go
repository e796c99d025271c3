package acquisition

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/calderlab/scopecore/internal/hardware"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// autofocusResult describes one contrast sweep.
type autofocusResult struct {
	// BestPlane is the index of the sharpest plane within the sweep.
	BestPlane int

	// BestMeasure is that plane's sharpness score.
	BestMeasure float64

	// PlanesScanned is how many planes were imaged. Early stop and abort
	// leave it below the policy's NPlanes.
	PlanesScanned int

	// Aborted reports the sweep was cut short by an abort request.
	Aborted bool
}

// runContrastAF sweeps the stage Z axis through pol.NPlanes planes spaced
// pol.DeltaZUm apart, centred on the current position, and scores each
// plane's frame. The sweep ends early once a score drops below
// StopThreshold of the running maximum. The stage returns to the sharpest
// plane by counted relative steps, so no absolute Z bookkeeping is needed;
// an aborted sweep with no frames lands on the first plane.
func runContrastAF(ctx context.Context, rig *hardware.Rig, source int, intensity float64, pol AutofocusPolicy, trigger hardware.TriggerMode, abort *atomic.Bool, log *logging.Logger) (autofocusResult, error) {
	deltaMm := pol.DeltaZUm / 1000.0
	offsetMm := deltaMm * math.Round(float64(pol.NPlanes)/2.0)

	if err := rig.Stage.MoveRelative(ctx, 0, 0, -offsetMm); err != nil {
		return autofocusResult{}, fmt.Errorf("autofocus: moving to sweep start: %w", err)
	}

	var res autofocusResult
	for i := 0; i < pol.NPlanes; i++ {
		if abort != nil && abort.Load() {
			res.Aborted = true
			break
		}
		if err := rig.Stage.MoveRelative(ctx, 0, 0, deltaMm); err != nil {
			return res, fmt.Errorf("autofocus: stepping to plane %d: %w", i, err)
		}

		frame, err := captureFrame(ctx, rig, trigger, source, intensity)
		if err != nil {
			return res, fmt.Errorf("autofocus: capturing plane %d: %w", i, err)
		}
		res.PlanesScanned++

		m := focusMeasure(frame)
		if m > res.BestMeasure {
			res.BestMeasure = m
			res.BestPlane = i
		}
		log.Debug("autofocus plane measured", "plane", i, "measure", m)

		if pol.StopThreshold > 0 && m < res.BestMeasure*pol.StopThreshold {
			break
		}
	}

	// Rewind by the steps actually taken, then climb to the sharpest plane.
	if err := rig.Stage.MoveRelative(ctx, 0, 0, -deltaMm*float64(res.PlanesScanned)); err != nil {
		return res, fmt.Errorf("autofocus: returning to sweep start: %w", err)
	}
	if err := rig.Stage.MoveRelative(ctx, 0, 0, deltaMm*float64(res.BestPlane+1)); err != nil {
		return res, fmt.Errorf("autofocus: moving to best plane: %w", err)
	}
	return res, nil
}

// captureFrame takes one exposure under the given trigger mode. Software
// triggering brackets the exposure with illumination on and off; hardware
// triggering strobes the source for exactly the exposure window.
func captureFrame(ctx context.Context, rig *hardware.Rig, trigger hardware.TriggerMode, source int, intensity float64) (*hardware.Frame, error) {
	if trigger == hardware.TriggerHardware {
		return rig.Camera.CaptureHardware(ctx, source, intensity)
	}

	if err := rig.Illumination.TurnOn(source); err != nil {
		return nil, fmt.Errorf("illumination on: %w", err)
	}
	frame, err := rig.Camera.CaptureSoftware(ctx)
	if offErr := rig.Illumination.TurnOff(source); offErr != nil && err == nil {
		err = fmt.Errorf("illumination off: %w", offErr)
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// focusMeasure scores a frame's sharpness as its gray-level variance.
func focusMeasure(frame *hardware.Frame) float64 {
	if frame == nil || len(frame.Pixels) == 0 {
		return 0
	}

	var sum float64
	for _, p := range frame.Pixels {
		sum += float64(p)
	}
	mean := sum / float64(len(frame.Pixels))

	var ss float64
	for _, p := range frame.Pixels {
		d := float64(p) - mean
		ss += d * d
	}
	return ss / float64(len(frame.Pixels))
}
