// Package bus provides the in-process event substrate for scopecore.
//
// Every component communicates through typed events published on a Bus:
// commands request side effects (start an acquisition, move the stage),
// notifications report facts (a frame was captured, a controller changed
// state). Identity is the concrete Go type; payloads are plain values.
//
// # Delivery model
//
// Publish never blocks: the event is appended to an internal queue and a
// single dedicated dispatch goroutine delivers it to every handler
// registered for its concrete type, in subscription order. Events are
// delivered in publish order. A handler that fails or panics is logged and
// isolated; it cannot stop delivery to other handlers or later events.
// Handlers may publish further events; those are queued and processed after
// the current event completes, so dispatch is never reentrant.
//
// # Lifecycle
//
// Start and Stop are idempotent. Publish auto-starts the dispatcher so a
// command can never be lost to startup ordering. Drain waits for the queue
// to empty, which tests use to make delivery deterministic:
//
//	b := bus.New()
//	sub := bus.On(b, func(ev bus.StagePositionChanged) error {
//	    fmt.Println(ev.X, ev.Y)
//	    return nil
//	})
//	defer b.Unsubscribe(sub)
//
//	b.Publish(bus.StagePositionChanged{X: 1.5, Y: 2.0})
//	b.Drain(time.Second)
//
// Bus instances are injected into the components that need them; there is
// no package-level instance.
package bus
