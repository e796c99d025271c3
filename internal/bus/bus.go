package bus

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies a concrete event type for subscription. Obtain one
// with TypeOf or TypeFor; never construct one by hand.
type EventType = reflect.Type

// TypeOf returns the EventType of a concrete event value.
func TypeOf(ev Event) EventType { return reflect.TypeOf(ev) }

// TypeFor returns the EventType for the concrete type E.
func TypeFor[E Event]() EventType {
	return reflect.TypeOf((*E)(nil)).Elem()
}

// Handler processes one event. Handlers run on the bus's dispatch goroutine,
// so they must not block for long; offload slow work to the backend actor's
// worker pool. A returned error is logged and counted, never fatal.
type Handler func(Event) error

// Subscription identifies a registered handler so it can be removed.
// Handlers are funcs and funcs are not comparable, so Subscribe hands back a
// token instead of matching on the handler itself.
type Subscription struct {
	eventType EventType
	id        uint64
}

// Logger is the minimal logging surface the bus needs. *logging.Logger
// satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

type subscriber struct {
	id uint64
	fn Handler
}

// Bus delivers events to subscribed handlers through a single dispatch
// goroutine.
//
// Publish appends to an internal queue and returns immediately; the
// dispatcher pops events in order and calls each handler registered for the
// event's concrete type, in subscription order. Because all delivery happens
// on one goroutine, handlers never run concurrently with each other and an
// event published from inside a handler is queued behind the current one
// rather than dispatched reentrantly.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	handlers map[EventType][]subscriber
	queue    []Event
	nextID   uint64

	running     bool
	stopping    bool
	dispatching bool
	done        chan struct{}

	processed atomic.Uint64
	faults    atomic.Uint64

	loggerMu sync.RWMutex
	logger   Logger
}

// drainPoll is how often Drain re-checks for an idle queue.
const drainPoll = time.Millisecond

// New creates a Bus. The dispatch goroutine starts lazily on the first
// Publish, or eagerly via Start.
func New() *Bus {
	b := &Bus{
		handlers: make(map[EventType][]subscriber),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetLogger attaches a logger for handler faults. Safe to call at any time;
// a nil logger silences the bus.
func (b *Bus) SetLogger(l Logger) {
	b.loggerMu.Lock()
	b.logger = l
	b.loggerMu.Unlock()
}

func (b *Bus) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Subscribe registers h for events whose concrete type is t. Handlers for
// the same type run in subscription order. The returned Subscription is the
// only way to unsubscribe.
func (b *Bus) Subscribe(t EventType, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[t] = append(b.handlers[t], subscriber{id: b.nextID, fn: h})
	return Subscription{eventType: t, id: b.nextID}
}

// On subscribes fn for events of concrete type E. It is the typed
// convenience over Subscribe:
//
//	bus.On(b, func(ev bus.FrameCaptured) error { ... })
func On[E Event](b *Bus, fn func(E) error) Subscription {
	return b.Subscribe(TypeFor[E](), func(ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return fmt.Errorf("bus: event %T delivered to handler for %v", ev, TypeFor[E]())
		}
		return fn(typed)
	})
}

// Unsubscribe removes a previously registered handler. Unknown or already
// removed subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			b.handlers[sub.eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.eventType]) == 0 {
		delete(b.handlers, sub.eventType)
	}
}

// Publish queues ev for delivery and returns without waiting for handlers.
// The dispatcher is started if it is not already running, so an event
// published before Start is never lost. Nil events are ignored.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.startLocked()
	b.cond.Signal()
	b.mu.Unlock()
}

// Start launches the dispatch goroutine. Starting a running bus is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	b.startLocked()
	b.mu.Unlock()
}

func (b *Bus) startLocked() {
	if b.running {
		return
	}
	b.running = true
	b.stopping = false
	b.done = make(chan struct{})
	go b.dispatchLoop(b.done)
}

// Stop halts the dispatch goroutine and waits for it to exit. An event
// mid-dispatch finishes delivery first. Queued events are retained and will
// be delivered if the bus is started again. Stopping a stopped bus is a
// no-op.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.stopping = true
	done := b.done
	b.cond.Broadcast()
	b.mu.Unlock()

	<-done
}

// Running reports whether the dispatch goroutine is active.
func (b *Bus) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Depth returns the number of events waiting for dispatch.
func (b *Bus) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Processed returns the total number of events dispatched since creation.
func (b *Bus) Processed() uint64 { return b.processed.Load() }

// Faults returns the total number of handler errors and panics.
func (b *Bus) Faults() uint64 { return b.faults.Load() }

// Drain waits until every queued event, including events published by
// handlers while draining, has been dispatched. It returns the number of
// events processed during the wait. The dispatcher is started if needed.
//
// Drain is the synchronization point for tests and shutdown: publish, then
// drain, then assert.
func (b *Bus) Drain(timeout time.Duration) (int, error) {
	before := b.processed.Load()
	b.Start()

	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		idle := len(b.queue) == 0 && !b.dispatching
		b.mu.Unlock()

		if idle {
			return int(b.processed.Load() - before), nil
		}
		if time.Now().After(deadline) {
			return int(b.processed.Load() - before), ErrDrainTimeout
		}
		time.Sleep(drainPoll)
	}
}

// dispatchLoop is the body of the dispatch goroutine. Exactly one runs per
// started bus.
func (b *Bus) dispatchLoop(done chan struct{}) {
	defer close(done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopping {
			b.cond.Wait()
		}
		if b.stopping {
			b.running = false
			b.stopping = false
			b.mu.Unlock()
			return
		}

		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.dispatching = true
		subs := append([]subscriber(nil), b.handlers[reflect.TypeOf(ev)]...)
		b.mu.Unlock()

		for _, s := range subs {
			b.invoke(ev, s.fn)
		}

		// Count before clearing dispatching so Drain never observes an idle
		// bus with a stale processed total.
		b.processed.Add(1)
		b.mu.Lock()
		b.dispatching = false
		b.mu.Unlock()
	}
}

// invoke runs one handler with fault isolation. A panic or returned error is
// logged and counted; delivery to remaining handlers continues.
func (b *Bus) invoke(ev Event, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.faults.Add(1)
			if log := b.getLogger(); log != nil {
				log.Error("event handler panicked",
					"event", ev.Kind(),
					"panic", fmt.Sprint(r))
			}
		}
	}()

	if err := fn(ev); err != nil {
		b.faults.Add(1)
		if log := b.getLogger(); log != nil {
			log.Error("event handler failed",
				"event", ev.Kind(),
				"error", err)
		}
	}
}
