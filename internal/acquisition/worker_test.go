package acquisition

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/hardware"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
	"github.com/calderlab/scopecore/internal/scan"
)

// =============================================================================
// Multi-dimensional scans
// =============================================================================

func TestRunMultiDimensionalStack(t *testing.T) {
	f := newCtrlFixture(t)

	if err := f.ctrl.SetRegions([]scan.Region{
		scan.Grid("g", "grid 2x2", 10, 10, 3, 2, 2, 0.5),
	}); err != nil {
		t.Fatalf("SetRegions: %v", err)
	}
	if err := f.ctrl.ApplyParameters(bus.SetAcquisitionParametersCommand{
		Channels: []string{"BF", "488"},
		NZ:       intp(3),
		DeltaZUm: floatp(2),
		UsePiezo: boolp(true),
	}); err != nil {
		t.Fatalf("ApplyParameters: %v", err)
	}

	if err := f.ctrl.Start("exp-stack", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fin := f.waitFinished(t, 10*time.Second)
	if !fin.Success {
		t.Fatalf("finished = %+v, want success", fin)
	}

	saved := f.sink.Saved()
	if len(saved) != 24 {
		t.Fatalf("%d frames saved, want 4 fovs x 3 planes x 2 channels = 24", len(saved))
	}

	keys := make(map[string]bool, len(saved))
	chans := [2]string{"BF", "488"}
	for i, s := range saved {
		if s.Info.FrameSeq != i {
			t.Errorf("frame %d has sequence %d", i, s.Info.FrameSeq)
		}
		wantFOV, wantZ, wantCh := i/6, (i%6)/2, chans[i%2]
		if s.Info.FOVIndex != wantFOV || s.Info.ZIndex != wantZ || s.Info.Channel != wantCh {
			t.Errorf("frame %d = fov %d z %d %q, want fov %d z %d %q",
				i, s.Info.FOVIndex, s.Info.ZIndex, s.Info.Channel, wantFOV, wantZ, wantCh)
		}
		if !almostEqual(s.Info.Z, 3, 1e-9) {
			t.Errorf("frame %d stage z = %.6f, want 3.000000 (piezo stacks leave the stage)", i, s.Info.Z)
		}
		keys[s.Info.Key()] = true
	}
	if len(keys) != len(saved) {
		t.Errorf("%d distinct keys for %d frames", len(keys), len(saved))
	}

	if got := f.rig.Piezo.Position(); got != 0 {
		t.Errorf("piezo at %.2f um after the run, want home", got)
	}
	if got := len(f.frameEvents(t)); got != 24 {
		t.Errorf("%d FrameCaptured events, want 24", got)
	}
}

func TestChannelZOffsetSinglePlane(t *testing.T) {
	f := newCtrlFixture(t)
	f.stub.configs["488"].ZOffsetUm = 2

	if err := f.ctrl.SetRegions([]scan.Region{scan.Single("r1", "p", 10, 10, 3)}); err != nil {
		t.Fatalf("SetRegions: %v", err)
	}
	if err := f.ctrl.ApplyParameters(bus.SetAcquisitionParametersCommand{Channels: []string{"488"}}); err != nil {
		t.Fatalf("ApplyParameters: %v", err)
	}

	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fin := f.waitFinished(t, 5*time.Second); !fin.Success {
		t.Fatalf("finished = %+v, want success", fin)
	}

	saved := f.sink.Saved()
	if len(saved) != 1 {
		t.Fatalf("%d frames saved, want 1", len(saved))
	}
	if !almostEqual(saved[0].Info.Z, 3.002, 1e-9) {
		t.Errorf("captured at z = %.6f, want 3.002000 (channel offset applied)", saved[0].Info.Z)
	}
	if _, _, z := f.rig.Stage.Position(); !almostEqual(z, 3, 1e-9) {
		t.Errorf("stage at z = %.6f after the run, want the offset removed", z)
	}
}

func TestChannelZOffsetSkippedInStacks(t *testing.T) {
	f := newCtrlFixture(t)
	f.stub.configs["488"].ZOffsetUm = 2

	if err := f.ctrl.SetRegions([]scan.Region{scan.Single("r1", "p", 10, 10, 3)}); err != nil {
		t.Fatalf("SetRegions: %v", err)
	}
	if err := f.ctrl.ApplyParameters(bus.SetAcquisitionParametersCommand{
		Channels: []string{"488"},
		NZ:       intp(3),
		DeltaZUm: floatp(2),
	}); err != nil {
		t.Fatalf("ApplyParameters: %v", err)
	}

	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fin := f.waitFinished(t, 5*time.Second); !fin.Success {
		t.Fatalf("finished = %+v, want success", fin)
	}

	saved := f.sink.Saved()
	if len(saved) != 3 {
		t.Fatalf("%d frames saved, want 3", len(saved))
	}
	for i, s := range saved {
		want := 3 + 0.002*float64(i)
		if s.Info.ZIndex != i || !almostEqual(s.Info.Z, want, 1e-9) {
			t.Errorf("plane %d captured at z = %.6f, want %.6f without the channel offset",
				i, s.Info.Z, want)
		}
	}
	if _, _, z := f.rig.Stage.Position(); !almostEqual(z, 3, 1e-9) {
		t.Errorf("stage at z = %.6f after the run, want the stack unwound", z)
	}
}

// =============================================================================
// Hardware coordination
// =============================================================================

func TestRunRestoresHardware(t *testing.T) {
	f := newCtrlFixture(t)

	// The operator left a lamp on and the camera in hardware-trigger mode.
	if err := f.rig.Illumination.Set(5, 70, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.rig.Camera.SetTriggerMode(hardware.TriggerHardware); err != nil {
		t.Fatalf("SetTriggerMode: %v", err)
	}

	f.stageTwoPointRun(t)
	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fin := f.waitFinished(t, 5*time.Second); !fin.Success {
		t.Fatalf("finished = %+v, want success", fin)
	}

	source, intensity, on := f.rig.Illumination.State()
	if source != 5 || intensity != 70 || !on {
		t.Errorf("illumination = (%d, %.0f, %v) after the run, want (5, 70, true) restored",
			source, intensity, on)
	}
	if got := f.rig.Camera.TriggerMode(); got != hardware.TriggerHardware {
		t.Errorf("trigger mode = %v after the run, want hardware restored", got)
	}
}

func TestFluidicsRunsOncePerTimepoint(t *testing.T) {
	f := newCtrlFixture(t)
	sim := hardware.NewSimFluidics()
	f.rig.Fluidics = hardware.NewFluidicsService(sim, logging.Discard())

	if err := f.ctrl.SetRegions([]scan.Region{scan.Single("r1", "p", 10, 10, 3)}); err != nil {
		t.Fatalf("SetRegions: %v", err)
	}
	if err := f.ctrl.ApplyParameters(bus.SetAcquisitionParametersCommand{
		Channels:    []string{"BF"},
		NT:          intp(2),
		UseFluidics: boolp(true),
	}); err != nil {
		t.Fatalf("ApplyParameters: %v", err)
	}

	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fin := f.waitFinished(t, 5*time.Second); !fin.Success {
		t.Fatalf("finished = %+v, want success", fin)
	}

	if got := sim.Runs(); got != 2 {
		t.Errorf("fluidics ran %d times, want once per timepoint", got)
	}
	progress := f.progressEvents(t)
	if len(progress) != 2 {
		t.Fatalf("%d progress events, want 2: %+v", len(progress), progress)
	}
	if progress[0].CurrentTimepoint != 1 || progress[0].ProgressPercent != 50 {
		t.Errorf("first progress = %+v, want timepoint 1 at 50%%", progress[0])
	}
	if progress[1].CurrentTimepoint != 2 || progress[1].ProgressPercent != 100 {
		t.Errorf("second progress = %+v, want timepoint 2 at 100%%", progress[1])
	}
}

// =============================================================================
// Focusing during scans
// =============================================================================

func TestContrastAutofocusDuringScan(t *testing.T) {
	f := newCtrlFixture(t)

	// Three fields in a row, nominally 5 um below focus. The sweep policy
	// fires on every third field, so only the first gets corrected.
	if err := f.ctrl.SetRegions([]scan.Region{
		scan.Grid("g", "strip", 10, 10, 2.995, 1, 3, 0.5),
	}); err != nil {
		t.Fatalf("SetRegions: %v", err)
	}
	if err := f.ctrl.ApplyParameters(bus.SetAcquisitionParametersCommand{
		Channels:     []string{"BF"},
		UseAutofocus: boolp(true),
	}); err != nil {
		t.Fatalf("ApplyParameters: %v", err)
	}

	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fin := f.waitFinished(t, 5*time.Second); !fin.Success {
		t.Fatalf("finished = %+v, want success", fin)
	}

	saved := f.sink.Saved()
	if len(saved) != 3 {
		t.Fatalf("%d frames saved, want 3", len(saved))
	}
	if !almostEqual(saved[0].Info.Z, 3, 1e-9) {
		t.Errorf("focused field captured at z = %.6f, want 3.000000", saved[0].Info.Z)
	}
	for i := 1; i < 3; i++ {
		if !almostEqual(saved[i].Info.Z, 2.995, 1e-9) {
			t.Errorf("field %d captured at z = %.6f, want the nominal 2.995000", i, saved[i].Info.Z)
		}
	}
}

func TestReflectionAFCorrectsEveryFOV(t *testing.T) {
	f := newCtrlFixture(t)

	if err := f.ctrl.SetRegions([]scan.Region{
		scan.Single("r1", "a", 10, 10, 2.99),
		scan.Single("r2", "b", 11, 10, 2.99),
	}); err != nil {
		t.Fatalf("SetRegions: %v", err)
	}
	if err := f.ctrl.ApplyParameters(bus.SetAcquisitionParametersCommand{
		Channels:        []string{"BF"},
		UseReflectionAF: boolp(true),
	}); err != nil {
		t.Fatalf("ApplyParameters: %v", err)
	}

	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fin := f.waitFinished(t, 5*time.Second); !fin.Success {
		t.Fatalf("finished = %+v, want success", fin)
	}

	saved := f.sink.Saved()
	if len(saved) != 2 {
		t.Fatalf("%d frames saved, want 2", len(saved))
	}
	for i, s := range saved {
		if !almostEqual(s.Info.Z, 3, 1e-9) {
			t.Errorf("field %d captured at z = %.6f, want the sensor correction to 3.000000", i, s.Info.Z)
		}
	}
}

// =============================================================================
// Sink backpressure
// =============================================================================

// balkySink refuses the first few frames, then hands everything to an
// unbounded MemorySink.
type balkySink struct {
	inner   *MemorySink
	refuse  int
	refused int
}

func (s *balkySink) Enqueue(frame *hardware.Frame, info CaptureInfo) bool {
	if s.refused < s.refuse {
		s.refused++
		return false
	}
	return s.inner.Enqueue(frame, info)
}

func (s *balkySink) Flush(ctx context.Context) error { return s.inner.Flush(ctx) }

func TestSinkRetriesUntilAccepted(t *testing.T) {
	balky := &balkySink{inner: NewMemorySink(0), refuse: 2}
	f := newCtrlFixtureWith(t, balky, func(cfg *config.AcquisitionConfig) {
		cfg.SinkRetry = config.SinkRetryConfig{Attempts: 5, BackoffMs: 1}
	})
	f.stageTwoPointRun(t)

	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fin := f.waitFinished(t, 5*time.Second)

	if !fin.Success {
		t.Fatalf("finished = %+v, want the retry budget to absorb transient rejections", fin)
	}
	saved := balky.inner.Saved()
	if len(saved) != 2 {
		t.Fatalf("%d frames saved, want both points", len(saved))
	}
	for i, s := range saved {
		if s.Info.FrameSeq != i {
			t.Errorf("frame %d has sequence %d, want the retried frame kept in order", i, s.Info.FrameSeq)
		}
	}
}

func TestSinkRejectionFailsRun(t *testing.T) {
	small := NewMemorySink(1)
	f := newCtrlFixtureWith(t, small, func(cfg *config.AcquisitionConfig) {
		cfg.SinkRetry = config.SinkRetryConfig{Attempts: 2, BackoffMs: 1}
	})
	f.stageTwoPointRun(t)

	if err := f.ctrl.Start("exp-1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fin := f.waitFinished(t, 5*time.Second)

	if fin.Success {
		t.Error("run should fail once the sink stays full")
	}
	if fin.Aborted {
		t.Error("sink rejection is a failure, not an abort")
	}
	if !strings.Contains(fin.Error, "save sink rejected") {
		t.Errorf("finished error = %q, want it to name the sink rejection", fin.Error)
	}
	if got := small.Count(); got != 1 {
		t.Errorf("sink holds %d frames, want only the first", got)
	}
	if f.ctrl.State() != StateIdle {
		t.Errorf("controller in %s after the failure, want idle", f.ctrl.State())
	}
}
