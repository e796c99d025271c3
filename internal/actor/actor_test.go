package actor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	a := New(Config{PollInterval: 5 * time.Millisecond}, logging.Discard())
	t.Cleanup(a.Stop)
	return a
}

func mustDrainActor(t *testing.T, a *Actor) {
	t.Helper()
	if err := a.Drain(5 * time.Second); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

// orderLog collects markers from handlers for order assertions.
type orderLog struct {
	mu      sync.Mutex
	markers []string
}

func (l *orderLog) add(m string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers = append(l.markers, m)
}

func (l *orderLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.markers))
	copy(out, l.markers)
	return out
}

// =============================================================================
// Processing
// =============================================================================

func TestEnqueueAutoStartsAndProcesses(t *testing.T) {
	a := newTestActor(t)

	var handled atomic.Bool
	Handle(a, func(bus.HomeStageCommand) error {
		handled.Store(true)
		return nil
	})

	// No explicit Start.
	a.Enqueue(bus.HomeStageCommand{})
	mustDrainActor(t, a)

	if !handled.Load() {
		t.Error("command enqueued before Start was not processed")
	}
	if !a.Running() {
		t.Error("Running() = false after Enqueue")
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	a := newTestActor(t)

	log := &orderLog{}
	Handle(a, func(bus.HomeStageCommand) error { log.add("first"); return nil })
	Handle(a, func(bus.HomeStageCommand) error { log.add("second"); return nil })
	Handle(a, func(bus.HomeStageCommand) error { log.add("third"); return nil })

	a.Enqueue(bus.HomeStageCommand{})
	mustDrainActor(t, a)

	got := log.snapshot()
	if len(got) != 3 || got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Errorf("handler order = %v, want [first second third]", got)
	}
}

func TestStopCommandOvertakesQueuedWork(t *testing.T) {
	a := newTestActor(t)

	log := &orderLog{}
	entered := make(chan struct{})
	release := make(chan struct{})

	Handle(a, func(cmd bus.SetFilterPositionCommand) error {
		log.add(fmt.Sprintf("pos-%d", cmd.Position))
		if cmd.Position == 1 {
			close(entered)
			<-release
		}
		return nil
	})
	Handle(a, func(bus.StopAcquisitionCommand) error {
		log.add("stop")
		return nil
	})

	// The first command blocks the processing goroutine so the rest stack
	// up in the queue before the stop arrives.
	a.Enqueue(bus.SetFilterPositionCommand{Position: 1})
	<-entered
	a.Enqueue(bus.SetFilterPositionCommand{Position: 2})
	a.Enqueue(bus.SetFilterPositionCommand{Position: 3})
	a.Enqueue(bus.StopAcquisitionCommand{})
	close(release)

	mustDrainActor(t, a)

	got := log.snapshot()
	want := []string{"pos-1", "stop", "pos-2", "pos-3"}
	if len(got) != len(want) {
		t.Fatalf("processed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExplicitPriorityOverridesDeclared(t *testing.T) {
	a := newTestActor(t)

	log := &orderLog{}
	entered := make(chan struct{})
	release := make(chan struct{})

	Handle(a, func(cmd bus.SetFilterPositionCommand) error {
		log.add(fmt.Sprintf("pos-%d", cmd.Position))
		if cmd.Position == 1 {
			close(entered)
			<-release
		}
		return nil
	})

	a.Enqueue(bus.SetFilterPositionCommand{Position: 1})
	<-entered
	a.Enqueue(bus.SetFilterPositionCommand{Position: 2})
	a.EnqueueWithPriority(bus.SetFilterPositionCommand{Position: 3}, bus.PriorityHigh)
	close(release)

	mustDrainActor(t, a)

	got := log.snapshot()
	want := []string{"pos-1", "pos-3", "pos-2"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("order = %v, want %v", got, want)
	}
}

// =============================================================================
// Fault Isolation
// =============================================================================

func TestHandlerFaultsDoNotStopProcessing(t *testing.T) {
	a := newTestActor(t)

	var survived atomic.Int64
	Handle(a, func(bus.HomeStageCommand) error { panic("simulated crash") })
	Handle(a, func(bus.HomeStageCommand) error { return errors.New("simulated failure") })
	Handle(a, func(bus.HomeStageCommand) error { survived.Add(1); return nil })

	a.Enqueue(bus.HomeStageCommand{})
	a.Enqueue(bus.HomeStageCommand{})
	mustDrainActor(t, a)

	if got := survived.Load(); got != 2 {
		t.Errorf("surviving handler ran %d times, want 2", got)
	}
	if got := a.Faults(); got != 4 {
		t.Errorf("Faults() = %d, want 4", got)
	}
	if got := a.Processed(); got != 2 {
		t.Errorf("Processed() = %d, want 2", got)
	}
}

func TestUnregisterRemovesSingleHandler(t *testing.T) {
	a := newTestActor(t)

	var first, second atomic.Int64
	reg := Handle(a, func(bus.HomeStageCommand) error { first.Add(1); return nil })
	Handle(a, func(bus.HomeStageCommand) error { second.Add(1); return nil })

	a.Enqueue(bus.HomeStageCommand{})
	mustDrainActor(t, a)
	a.Unregister(reg)
	a.Enqueue(bus.HomeStageCommand{})
	mustDrainActor(t, a)

	if got := first.Load(); got != 1 {
		t.Errorf("unregistered handler ran %d times, want 1", got)
	}
	if got := second.Load(); got != 2 {
		t.Errorf("remaining handler ran %d times, want 2", got)
	}
}

func TestUnhandledCommandIsCountedAndSkipped(t *testing.T) {
	a := newTestActor(t)

	var handled atomic.Bool
	Handle(a, func(bus.HomeStageCommand) error { handled.Store(true); return nil })

	a.Enqueue(bus.SetPiezoPositionCommand{PositionUm: 10})
	a.Enqueue(bus.HomeStageCommand{})
	mustDrainActor(t, a)

	if !handled.Load() {
		t.Error("registered command was not processed after unhandled one")
	}
	if got := a.Processed(); got != 2 {
		t.Errorf("Processed() = %d, want 2", got)
	}
}

// =============================================================================
// Worker Pool
// =============================================================================

func TestSubmitWorkRunsOnPool(t *testing.T) {
	a := newTestActor(t)

	done := make(chan struct{})
	async := a.SubmitWork(func() error {
		close(done)
		return nil
	})
	if !async {
		t.Error("SubmitWork() = false, want true for idle pool")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool job did not run")
	}
}

func TestSubmitWorkFallsBackWhenSaturated(t *testing.T) {
	a := New(Config{WorkerPoolSize: 1, PollInterval: 5 * time.Millisecond}, logging.Discard())
	defer a.Stop()

	blocked := make(chan struct{})
	release := make(chan struct{})
	a.SubmitWork(func() error {
		close(blocked)
		<-release
		return nil
	})
	<-blocked

	// Pool is full. The next job must run inline before SubmitWork returns.
	var ran atomic.Bool
	async := a.SubmitWork(func() error {
		ran.Store(true)
		return nil
	})
	if async {
		t.Error("SubmitWork() = true on saturated pool, want false")
	}
	if !ran.Load() {
		t.Error("fallback job had not run when SubmitWork returned")
	}
	if got := a.PoolFallbacks(); got != 1 {
		t.Errorf("PoolFallbacks() = %d, want 1", got)
	}

	close(release)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStopWaitsForInFlightCommand(t *testing.T) {
	a := New(Config{PollInterval: 5 * time.Millisecond}, logging.Discard())

	entered := make(chan struct{})
	var finished atomic.Bool
	Handle(a, func(bus.HomeStageCommand) error {
		close(entered)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	a.Enqueue(bus.HomeStageCommand{})
	<-entered
	a.Stop()

	if !finished.Load() {
		t.Error("Stop() returned while a command was still executing")
	}
	if a.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestStopWaitsForPoolJobs(t *testing.T) {
	a := New(Config{PollInterval: 5 * time.Millisecond}, logging.Discard())
	a.Start()

	var finished atomic.Bool
	a.SubmitWork(func() error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	a.Stop()
	if !finished.Load() {
		t.Error("Stop() returned while a pool job was still running")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	a := New(Config{PollInterval: 5 * time.Millisecond}, logging.Discard())

	a.Start()
	a.Start()
	if !a.Running() {
		t.Fatal("Running() = false after Start")
	}
	a.Stop()
	a.Stop()
	if a.Running() {
		t.Fatal("Running() = true after Stop")
	}
}

func TestEnqueueAfterStopRestarts(t *testing.T) {
	a := newTestActor(t)

	var calls atomic.Int64
	Handle(a, func(bus.HomeStageCommand) error { calls.Add(1); return nil })

	a.Start()
	a.Stop()
	a.Enqueue(bus.HomeStageCommand{})
	mustDrainActor(t, a)

	if got := calls.Load(); got != 1 {
		t.Errorf("handler ran %d times after restart, want 1", got)
	}
}

// =============================================================================
// Drain
// =============================================================================

func TestDrainTimesOutWhileHandlerBlocked(t *testing.T) {
	a := newTestActor(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	Handle(a, func(bus.HomeStageCommand) error {
		close(entered)
		<-release
		return nil
	})

	a.Enqueue(bus.HomeStageCommand{})
	<-entered

	if err := a.Drain(20 * time.Millisecond); !errors.Is(err, ErrDrainTimeout) {
		t.Errorf("Drain() error = %v, want ErrDrainTimeout", err)
	}

	close(release)
	mustDrainActor(t, a)
}
