// Package actor serializes all hardware-touching work onto a single
// processing goroutine.
//
// Microscope hardware cannot tolerate interleaved access: a stage move
// issued mid-exposure or two serial writes on the same port corrupt the
// run. Instead of locking every driver call site, scopecore funnels every
// command through one Actor. Commands arrive on a priority queue, the
// actor's goroutine pops them one at a time and invokes the handlers
// registered for the command's concrete type, in registration order.
//
// Ordering is by priority band first (stop commands overtake everything),
// then strict FIFO within a band. Priorities are declared on the command
// types themselves; see bus.Prioritized.
//
// Handlers that need parallelism (saving frames, computing focus measures)
// use SubmitWork, a bounded pool. When the pool is saturated the work runs
// synchronously on the submitter so jobs are never silently dropped.
//
// The Router connects a bus to the actor: it subscribes to command types
// and enqueues each arrival, which keeps bus handlers fast and moves the
// real work onto the actor's goroutine.
package actor
