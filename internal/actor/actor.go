package actor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// Defaults applied when Config fields are zero.
const (
	DefaultWorkerPoolSize = 4
	DefaultPollInterval   = 100 * time.Millisecond
)

// drainPoll is how often Drain re-checks for an idle actor.
const drainPoll = time.Millisecond

// Config tunes an Actor. The zero value is usable; zero fields take the
// package defaults.
type Config struct {
	// WorkerPoolSize bounds the number of concurrent SubmitWork jobs.
	WorkerPoolSize int

	// PollInterval is how often the processing loop re-checks for a stop
	// request while the queue is empty. It bounds Stop latency.
	PollInterval time.Duration
}

// Actor owns the single goroutine that executes commands against the
// instrument.
//
// Commands enter through Enqueue, ordered by the priority declared on their
// type and FIFO within a band. The processing goroutine pops one command at
// a time and invokes every handler registered for the command's concrete
// type, in registration order. A handler that fails or panics is logged and
// counted; remaining handlers and commands still run.
//
// Thread Safety: all methods are safe for concurrent use. Handlers
// themselves always run on the processing goroutine, never concurrently
// with each other.
type Actor struct {
	queue *Queue
	log   *logging.Logger

	mu        sync.Mutex
	handlers  map[bus.EventType][]registration
	handlerID uint64
	running   bool
	stopping  bool
	done      chan struct{}

	inFlight atomic.Bool

	pool          *errgroup.Group
	poolFallbacks atomic.Uint64

	processed atomic.Uint64
	faults    atomic.Uint64

	pollInterval time.Duration
}

// New creates an Actor. The processing goroutine starts lazily on the first
// Enqueue, or eagerly via Start.
func New(cfg Config, log *logging.Logger) *Actor {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultWorkerPoolSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	pool := &errgroup.Group{}
	pool.SetLimit(cfg.WorkerPoolSize)

	return &Actor{
		queue:        NewQueue(),
		log:          log.With("component", "actor"),
		handlers:     make(map[bus.EventType][]registration),
		pool:         pool,
		pollInterval: cfg.PollInterval,
	}
}

// registration is one handler with its removal id.
type registration struct {
	id uint64
	fn bus.Handler
}

// Registration identifies a registered handler so it can be removed.
type Registration struct {
	eventType bus.EventType
	id        uint64
}

// Register adds h as a handler for commands of concrete type t. Multiple
// handlers for one type run in registration order. The returned
// Registration is the only way to unregister.
func (a *Actor) Register(t bus.EventType, h bus.Handler) Registration {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlerID++
	a.handlers[t] = append(a.handlers[t], registration{id: a.handlerID, fn: h})
	return Registration{eventType: t, id: a.handlerID}
}

// Unregister removes a previously registered handler. Unknown or already
// removed registrations are ignored.
func (a *Actor) Unregister(reg Registration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	regs := a.handlers[reg.eventType]
	for i, r := range regs {
		if r.id == reg.id {
			a.handlers[reg.eventType] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(a.handlers[reg.eventType]) == 0 {
		delete(a.handlers, reg.eventType)
	}
}

// Handle registers fn for commands of concrete type E. It is the typed
// convenience over Register:
//
//	actor.Handle(a, func(cmd bus.HomeStageCommand) error { ... })
func Handle[E bus.Event](a *Actor, fn func(E) error) Registration {
	return a.Register(bus.TypeFor[E](), func(ev bus.Event) error {
		typed, ok := ev.(E)
		if !ok {
			return fmt.Errorf("actor: command %T dispatched to handler for %v", ev, bus.TypeFor[E]())
		}
		return fn(typed)
	})
}

// RegisteredTypes returns the command types that currently have at least one
// handler.
func (a *Actor) RegisteredTypes() []bus.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	types := make([]bus.EventType, 0, len(a.handlers))
	for t := range a.handlers {
		types = append(types, t)
	}
	return types
}

// Enqueue queues cmd at the priority declared on its type (bus.PriorityOf)
// and returns immediately. The processing goroutine is started if needed, so
// a command enqueued before Start is never lost.
func (a *Actor) Enqueue(cmd bus.Event) {
	a.EnqueueWithPriority(cmd, bus.PriorityOf(cmd))
}

// EnqueueWithPriority queues cmd at an explicit priority, overriding the
// declared one.
func (a *Actor) EnqueueWithPriority(cmd bus.Event, priority bus.Priority) {
	if cmd == nil {
		return
	}
	a.log.Debug("command enqueued", "command", cmd.Kind(), "priority", priority.String())
	a.queue.Put(cmd, priority)

	a.mu.Lock()
	a.startLocked()
	a.mu.Unlock()
}

// Start launches the processing goroutine. Starting a running actor is a
// no-op.
func (a *Actor) Start() {
	a.mu.Lock()
	a.startLocked()
	a.mu.Unlock()
}

func (a *Actor) startLocked() {
	if a.running {
		return
	}
	a.running = true
	a.stopping = false
	a.done = make(chan struct{})
	go a.run(a.done)
}

// Stop halts the processing goroutine and waits for it to exit, then waits
// for outstanding SubmitWork jobs. A command mid-execution finishes first.
// Queued commands are retained and will run if the actor is started again.
// Stopping a stopped actor is a no-op.
func (a *Actor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.stopping = true
	done := a.done
	a.mu.Unlock()

	<-done

	// Background jobs submitted by handlers must settle before the caller
	// may assume the hardware is quiet.
	a.pool.Wait() //nolint:errcheck // Pool jobs always return nil
}

// Running reports whether the processing goroutine is active.
func (a *Actor) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// QueueDepth returns the number of commands waiting to be processed.
func (a *Actor) QueueDepth() int { return a.queue.Len() }

// Processed returns the total number of commands executed since creation.
func (a *Actor) Processed() uint64 { return a.processed.Load() }

// Faults returns the total number of handler errors and panics.
func (a *Actor) Faults() uint64 { return a.faults.Load() }

// PoolFallbacks returns how many SubmitWork jobs ran synchronously because
// the pool was saturated.
func (a *Actor) PoolFallbacks() uint64 { return a.poolFallbacks.Load() }

// SubmitWork runs fn on the bounded worker pool and returns true. When the
// pool is at its concurrency limit, fn runs synchronously on the caller and
// SubmitWork returns false. Either way the job executes; saturation applies
// backpressure to the producer instead of dropping work.
func (a *Actor) SubmitWork(fn func() error) bool {
	accepted := a.pool.TryGo(func() error {
		if err := fn(); err != nil {
			a.log.Error("background job failed", "error", err)
		}
		return nil
	})
	if accepted {
		return true
	}

	a.poolFallbacks.Add(1)
	a.log.Debug("worker pool saturated, running job inline")
	if err := fn(); err != nil {
		a.log.Error("background job failed", "error", err)
	}
	return false
}

// Drain returns once the command queue is empty and no command is
// mid-execution. While the processing goroutine is running, Drain waits for
// it to work off the backlog; when it is not, queued commands are dispatched
// inline on the calling goroutine, which is how tests execute command
// handling synchronously.
//
// Drain must not be called from inside a command handler: the handler
// itself counts as in-flight work, so such a call can only time out.
func (a *Actor) Drain(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		a.mu.Lock()
		running := a.running
		a.mu.Unlock()

		if !running {
			cmd, err := a.queue.Get(0)
			if err != nil {
				return nil
			}
			a.process(cmd)
		} else {
			if a.queue.Len() == 0 && !a.inFlight.Load() {
				return nil
			}
			time.Sleep(drainPoll)
		}

		if time.Now().After(deadline) {
			return ErrDrainTimeout
		}
	}
}

// run is the body of the processing goroutine. Exactly one runs per started
// actor.
func (a *Actor) run(done chan struct{}) {
	defer close(done)

	for {
		a.mu.Lock()
		if a.stopping {
			a.running = false
			a.stopping = false
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		// The poll timeout bounds how long a stop request can go unnoticed
		// while the queue stays empty.
		cmd, err := a.queue.Get(a.pollInterval)
		if err != nil {
			continue
		}

		a.inFlight.Store(true)
		a.process(cmd)
		a.inFlight.Store(false)
	}
}

// process invokes every handler registered for cmd's concrete type.
func (a *Actor) process(cmd bus.Event) {
	a.mu.Lock()
	regs := append([]registration(nil), a.handlers[bus.TypeOf(cmd)]...)
	a.mu.Unlock()

	if len(regs) == 0 {
		a.log.Warn("no handler registered for command", "command", cmd.Kind())
		a.processed.Add(1)
		return
	}

	for _, r := range regs {
		a.invoke(cmd, r.fn)
	}
	a.processed.Add(1)
}

// invoke runs one handler with fault isolation.
func (a *Actor) invoke(cmd bus.Event, h bus.Handler) {
	defer func() {
		if r := recover(); r != nil {
			a.faults.Add(1)
			a.log.Error("command handler panicked",
				"command", cmd.Kind(),
				"panic", fmt.Sprint(r))
		}
	}()

	if err := h(cmd); err != nil {
		a.faults.Add(1)
		a.log.Error("command handler failed",
			"command", cmd.Kind(),
			"error", err)
	}
}
