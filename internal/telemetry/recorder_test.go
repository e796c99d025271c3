package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/calderlab/scopecore/internal/bus"
)

// point is one captured write.
type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
	at          time.Time
}

// memWriter captures points in memory, standing in for a backend client.
type memWriter struct {
	mu      sync.Mutex
	points  []point
	flushes int
}

func (w *memWriter) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tc := make(map[string]string, len(tags))
	for k, v := range tags {
		tc[k] = v
	}
	fc := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		fc[k] = v
	}
	w.points = append(w.points, point{measurement, tc, fc, timestamp})
}

func (w *memWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func (w *memWriter) byMeasurement(name string) []point {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []point
	for _, p := range w.points {
		if p.measurement == name {
			out = append(out, p)
		}
	}
	return out
}

func newTelemetryFixture(t *testing.T) (*bus.Bus, *memWriter, *Recorder) {
	t.Helper()

	b := bus.New()
	t.Cleanup(b.Stop)

	w := &memWriter{}
	rec := NewRecorder(w, "scope-01")
	rec.Subscribe(b)
	return b, w, rec
}

func drainBus(t *testing.T, b *bus.Bus) {
	t.Helper()
	if _, err := b.Drain(time.Second); err != nil {
		t.Fatalf("draining bus: %v", err)
	}
}

// =============================================================================
// Experiment tagging
// =============================================================================

func TestProgressTaggedWithActiveExperiment(t *testing.T) {
	b, w, _ := newTelemetryFixture(t)

	b.Publish(bus.AcquisitionStateChanged{ExperimentID: "exp-1", InProgress: true})
	b.Publish(bus.AcquisitionProgress{
		CurrentRegion: 1, TotalRegions: 2,
		CurrentTimepoint: 1, TotalTimepoints: 1,
		ProgressPercent: 50,
	})
	drainBus(t, b)

	pts := w.byMeasurement("scan_progress")
	if len(pts) != 1 {
		t.Fatalf("%d scan_progress points, want 1", len(pts))
	}
	p := pts[0]
	if p.tags["instrument"] != "scope-01" {
		t.Errorf("instrument tag = %q, want scope-01", p.tags["instrument"])
	}
	if p.tags["experiment_id"] != "exp-1" {
		t.Errorf("experiment_id tag = %q, want exp-1", p.tags["experiment_id"])
	}
	if p.fields["percent"] != 50.0 {
		t.Errorf("percent = %v, want 50", p.fields["percent"])
	}
	if p.fields["region"] != 1 || p.fields["total_regions"] != 2 {
		t.Errorf("region fields = %v/%v, want 1/2",
			p.fields["region"], p.fields["total_regions"])
	}
	if p.fields["timepoint"] != 1 || p.fields["total_timepoints"] != 1 {
		t.Errorf("timepoint fields = %v/%v, want 1/1",
			p.fields["timepoint"], p.fields["total_timepoints"])
	}
}

func TestProgressOutsideRunHasNoExperimentTag(t *testing.T) {
	b, w, _ := newTelemetryFixture(t)

	b.Publish(bus.AcquisitionProgress{CurrentRegion: 1, TotalRegions: 1, ProgressPercent: 100})
	drainBus(t, b)

	pts := w.byMeasurement("scan_progress")
	if len(pts) != 1 {
		t.Fatalf("%d scan_progress points, want 1", len(pts))
	}
	if _, ok := pts[0].tags["experiment_id"]; ok {
		t.Errorf("experiment_id tag = %q, want omitted", pts[0].tags["experiment_id"])
	}
}

func TestExperimentTagClearedWhenRunEnds(t *testing.T) {
	b, w, _ := newTelemetryFixture(t)

	b.Publish(bus.AcquisitionStateChanged{ExperimentID: "exp-1", InProgress: true})
	b.Publish(bus.AcquisitionStateChanged{ExperimentID: "exp-1", InProgress: false})
	b.Publish(bus.AcquisitionProgress{CurrentRegion: 1, TotalRegions: 1, ProgressPercent: 100})
	drainBus(t, b)

	states := w.byMeasurement("acquisition_state")
	if len(states) != 2 {
		t.Fatalf("%d acquisition_state points, want 2", len(states))
	}
	if states[0].fields["in_progress"] != true || states[1].fields["in_progress"] != false {
		t.Errorf("in_progress sequence = %v, %v; want true, false",
			states[0].fields["in_progress"], states[1].fields["in_progress"])
	}

	pts := w.byMeasurement("scan_progress")
	if len(pts) != 1 {
		t.Fatalf("%d scan_progress points, want 1", len(pts))
	}
	if _, ok := pts[0].tags["experiment_id"]; ok {
		t.Error("experiment_id tag should be dropped after the run ends")
	}
}

// =============================================================================
// Point content
// =============================================================================

func TestFrameCapturedKeepsCaptureTime(t *testing.T) {
	b, w, _ := newTelemetryFixture(t)

	capturedAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	b.Publish(bus.FrameCaptured{
		ExperimentID: "exp-1",
		Region:       "r1",
		FOVIndex:     4,
		ZIndex:       2,
		Timepoint:    1,
		Channel:      "488",
		X:            12.5, Y: 30.0, Z: 3.001,
		CapturedAt: capturedAt,
	})
	drainBus(t, b)

	pts := w.byMeasurement("frame_captured")
	if len(pts) != 1 {
		t.Fatalf("%d frame_captured points, want 1", len(pts))
	}
	p := pts[0]
	if !p.at.Equal(capturedAt) {
		t.Errorf("timestamp = %v, want the capture time %v", p.at, capturedAt)
	}
	if p.tags["channel"] != "488" || p.tags["region"] != "r1" || p.tags["experiment_id"] != "exp-1" {
		t.Errorf("tags = %v, want channel/region/experiment_id set", p.tags)
	}
	if p.fields["x_mm"] != 12.5 || p.fields["y_mm"] != 30.0 || p.fields["z_mm"] != 3.001 {
		t.Errorf("position fields = %v, want 12.5/30/3.001", p.fields)
	}
	if p.fields["fov_index"] != 4 || p.fields["z_index"] != 2 || p.fields["timepoint"] != 1 {
		t.Errorf("index fields = %v, want fov 4, z 2, t 1", p.fields)
	}
}

func TestAutofocusOutcomeRecorded(t *testing.T) {
	b, w, _ := newTelemetryFixture(t)

	b.Publish(bus.AutofocusCompleted{Success: true, BestPlane: 5, BestMeasure: 0.93})
	drainBus(t, b)

	pts := w.byMeasurement("autofocus")
	if len(pts) != 1 {
		t.Fatalf("%d autofocus points, want 1", len(pts))
	}
	p := pts[0]
	if p.fields["best_plane"] != 5 {
		t.Errorf("best_plane = %v, want 5", p.fields["best_plane"])
	}
	if p.fields["best_measure"] != 0.93 {
		t.Errorf("best_measure = %v, want 0.93", p.fields["best_measure"])
	}
	if p.fields["success"] != true || p.fields["aborted"] != false {
		t.Errorf("outcome fields = %v, want success without abort", p.fields)
	}
}

func TestStagePositionSampled(t *testing.T) {
	b, w, _ := newTelemetryFixture(t)

	b.Publish(bus.StagePositionChanged{X: 12.5, Y: 30.0, Z: 3.001})
	drainBus(t, b)

	pts := w.byMeasurement("stage_position")
	if len(pts) != 1 {
		t.Fatalf("%d stage_position points, want 1", len(pts))
	}
	p := pts[0]
	if p.tags["instrument"] != "scope-01" {
		t.Errorf("instrument tag = %q, want scope-01", p.tags["instrument"])
	}
	if p.fields["x_mm"] != 12.5 || p.fields["y_mm"] != 30.0 || p.fields["z_mm"] != 3.001 {
		t.Errorf("position fields = %v, want 12.5/30/3.001", p.fields)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestFlushForwarded(t *testing.T) {
	_, w, rec := newTelemetryFixture(t)

	rec.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
}
