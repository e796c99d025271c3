package hardware

import (
	"context"
	"errors"
	"testing"
	"time"
)

// pixelVariance is the contrast proxy used to compare simulated frames.
func pixelVariance(f *Frame) float64 {
	if len(f.Pixels) == 0 {
		return 0
	}
	var sum float64
	for _, p := range f.Pixels {
		sum += float64(p)
	}
	mean := sum / float64(len(f.Pixels))

	var acc float64
	for _, p := range f.Pixels {
		d := float64(p) - mean
		acc += d * d
	}
	return acc / float64(len(f.Pixels))
}

func captureAtError(t *testing.T, errUm float64) *Frame {
	t.Helper()
	cam := NewSimCamera(16, 16, func() float64 { return errUm })
	if err := cam.StartStreaming(); err != nil {
		t.Fatalf("StartStreaming() error = %v", err)
	}
	if err := cam.SendSoftwareTrigger(); err != nil {
		t.Fatalf("SendSoftwareTrigger() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := cam.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	return f
}

func TestSimCameraSharpnessPeaksAtFocus(t *testing.T) {
	inFocus := pixelVariance(captureAtError(t, 0))
	slightly := pixelVariance(captureAtError(t, 3))
	defocused := pixelVariance(captureAtError(t, 15))

	if !(inFocus > slightly && slightly > defocused) {
		t.Errorf("variance ordering = %.1f, %.1f, %.1f; want strictly decreasing with defocus",
			inFocus, slightly, defocused)
	}
}

func TestSimCameraTriggerRequiresStreaming(t *testing.T) {
	cam := NewSimCamera(8, 8, nil)
	if err := cam.SendSoftwareTrigger(); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("SendSoftwareTrigger() error = %v, want ErrNotStreaming", err)
	}
}

func TestSimCameraTriggerModeEnforced(t *testing.T) {
	cam := NewSimCamera(8, 8, nil)
	if err := cam.StartStreaming(); err != nil {
		t.Fatal(err)
	}

	// Software camera rejects strobe requests and vice versa.
	if err := cam.TriggerWithStrobe(1, 50); !errors.Is(err, ErrWrongTriggerMode) {
		t.Errorf("TriggerWithStrobe() in software mode error = %v, want ErrWrongTriggerMode", err)
	}

	if err := cam.SetTriggerMode(TriggerHardware); err != nil {
		t.Fatal(err)
	}
	if err := cam.SendSoftwareTrigger(); !errors.Is(err, ErrWrongTriggerMode) {
		t.Errorf("SendSoftwareTrigger() in hardware mode error = %v, want ErrWrongTriggerMode", err)
	}
	if err := cam.TriggerWithStrobe(1, 50); err != nil {
		t.Errorf("TriggerWithStrobe() in hardware mode error = %v", err)
	}
}

func TestSimCameraReadFrameHonorsContext(t *testing.T) {
	cam := NewSimCamera(8, 8, nil)
	if err := cam.StartStreaming(); err != nil {
		t.Fatal(err)
	}

	// No trigger sent, so the read must time out.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := cam.ReadFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadFrame() error = %v, want DeadlineExceeded", err)
	}
}

func TestSimCameraSequenceNumbersIncrease(t *testing.T) {
	cam := NewSimCamera(8, 8, nil)
	if err := cam.StartStreaming(); err != nil {
		t.Fatal(err)
	}

	var last uint64
	for i := 0; i < 3; i++ {
		if err := cam.SendSoftwareTrigger(); err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		f, err := cam.ReadFrame(ctx)
		cancel()
		if err != nil {
			t.Fatal(err)
		}
		if f.SequenceNumber <= last {
			t.Errorf("sequence %d not greater than previous %d", f.SequenceNumber, last)
		}
		last = f.SequenceNumber
	}
}

func TestSimCameraInvalidSettingsRejected(t *testing.T) {
	cam := NewSimCamera(8, 8, nil)
	if err := cam.SetExposure(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetExposure(0) error = %v, want ErrOutOfRange", err)
	}
	if err := cam.SetAnalogGain(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetAnalogGain(-1) error = %v, want ErrOutOfRange", err)
	}
}
