package telemetry

import (
	"sync"
	"time"

	"github.com/calderlab/scopecore/internal/bus"
)

// Writer is the time-series backend seam. Both infrastructure clients
// (influxdb and tsdb) satisfy it, so the recorder does not care which
// backend an installation runs.
type Writer interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
	Flush()
}

// Recorder turns bus notifications into telemetry points.
//
// Progress events do not carry an experiment ID, so the recorder tracks the
// active one from acquisition state changes and tags points with it while a
// run is in flight.
//
// Writes are non-blocking in both backends and write failures are delivered
// through the backend's own error callback, so handlers always return nil
// and never stall the bus dispatcher.
type Recorder struct {
	w          Writer
	instrument string

	mu           sync.Mutex
	experimentID string
}

// NewRecorder creates a recorder writing through w. The instrument ID is
// attached as a tag to every point. Call Subscribe to attach it to a bus.
func NewRecorder(w Writer, instrumentID string) *Recorder {
	return &Recorder{
		w:          w,
		instrument: instrumentID,
	}
}

// Subscribe registers the recorder's event handlers on the bus.
func (r *Recorder) Subscribe(b *bus.Bus) {
	bus.On(b, r.onStateChanged)
	bus.On(b, r.onProgress)
	bus.On(b, r.onFrame)
	bus.On(b, r.onAutofocus)
	bus.On(b, r.onStagePosition)
}

// Flush forces pending points out to the backend. Called on shutdown.
func (r *Recorder) Flush() {
	r.w.Flush()
}

// tags returns the base tag set, with the active experiment ID when one is
// known. Empty tag values are invalid in line protocol, so absent means
// omitted rather than blank.
func (r *Recorder) tags() map[string]string {
	t := map[string]string{"instrument": r.instrument}
	r.mu.Lock()
	if r.experimentID != "" {
		t["experiment_id"] = r.experimentID
	}
	r.mu.Unlock()
	return t
}

func (r *Recorder) onStateChanged(ev bus.AcquisitionStateChanged) error {
	r.mu.Lock()
	if ev.InProgress {
		r.experimentID = ev.ExperimentID
	} else {
		r.experimentID = ""
	}
	r.mu.Unlock()

	t := map[string]string{"instrument": r.instrument}
	if ev.ExperimentID != "" {
		t["experiment_id"] = ev.ExperimentID
	}
	r.w.WritePointWithTime("acquisition_state", t,
		map[string]interface{}{"in_progress": ev.InProgress},
		time.Now())
	return nil
}

func (r *Recorder) onProgress(ev bus.AcquisitionProgress) error {
	r.w.WritePointWithTime("scan_progress", r.tags(),
		map[string]interface{}{
			"percent":          ev.ProgressPercent,
			"region":           ev.CurrentRegion,
			"total_regions":    ev.TotalRegions,
			"timepoint":        ev.CurrentTimepoint,
			"total_timepoints": ev.TotalTimepoints,
		},
		time.Now())
	return nil
}

func (r *Recorder) onFrame(ev bus.FrameCaptured) error {
	t := map[string]string{
		"instrument": r.instrument,
		"channel":    ev.Channel,
		"region":     ev.Region,
	}
	if ev.ExperimentID != "" {
		t["experiment_id"] = ev.ExperimentID
	}
	// The capture time is the point's timestamp: frames written late by the
	// sink still land at the instant the camera fired.
	r.w.WritePointWithTime("frame_captured", t,
		map[string]interface{}{
			"x_mm":      ev.X,
			"y_mm":      ev.Y,
			"z_mm":      ev.Z,
			"fov_index": ev.FOVIndex,
			"z_index":   ev.ZIndex,
			"timepoint": ev.Timepoint,
		},
		ev.CapturedAt)
	return nil
}

func (r *Recorder) onAutofocus(ev bus.AutofocusCompleted) error {
	r.w.WritePointWithTime("autofocus", r.tags(),
		map[string]interface{}{
			"best_plane":   ev.BestPlane,
			"best_measure": ev.BestMeasure,
			"success":      ev.Success,
			"aborted":      ev.Aborted,
		},
		time.Now())
	return nil
}

func (r *Recorder) onStagePosition(ev bus.StagePositionChanged) error {
	r.w.WritePointWithTime("stage_position",
		map[string]string{"instrument": r.instrument},
		map[string]interface{}{
			"x_mm": ev.X,
			"y_mm": ev.Y,
			"z_mm": ev.Z,
		},
		time.Now())
	return nil
}
