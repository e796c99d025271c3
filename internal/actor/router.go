package actor

import (
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// Router forwards command events from a bus onto the actor's queue.
//
// Bus handlers must stay fast, so the router does nothing but enqueue: the
// command is queued at the priority declared on its type and the bus
// dispatcher moves on. Execution happens later on the actor's processing
// goroutine. Notifications are never routed; they fan out on the bus
// directly.
type Router struct {
	b     *bus.Bus
	actor *Actor
	log   *logging.Logger
	subs  map[bus.EventType]bus.Subscription
}

// NewRouter creates a Router between b and a. Nothing is routed until Route
// or RouteRegistered is called.
func NewRouter(b *bus.Bus, a *Actor, log *logging.Logger) *Router {
	return &Router{
		b:     b,
		actor: a,
		log:   log.With("component", "router"),
		subs:  make(map[bus.EventType]bus.Subscription),
	}
}

// Route subscribes the router to each given command type. Arriving commands
// are enqueued on the actor at their declared priority. A type already
// routed is left alone, so commands are never enqueued twice.
func (r *Router) Route(types ...bus.EventType) {
	for _, t := range types {
		if _, routed := r.subs[t]; routed {
			continue
		}
		sub := r.b.Subscribe(t, func(ev bus.Event) error {
			r.actor.Enqueue(ev)
			return nil
		})
		r.subs[t] = sub
		r.log.Debug("command type routed", "type", t.String())
	}
}

// RouteRegistered routes every command type that currently has a handler on
// the actor. Call it after all services have registered so routing and
// handling can never drift apart.
func (r *Router) RouteRegistered() {
	r.Route(r.actor.RegisteredTypes()...)
}

// Unroute removes the route for each given type. Commands of those types
// already enqueued still execute; new ones stay on the bus.
func (r *Router) Unroute(types ...bus.EventType) {
	for _, t := range types {
		sub, routed := r.subs[t]
		if !routed {
			continue
		}
		r.b.Unsubscribe(sub)
		delete(r.subs, t)
		r.log.Debug("command type unrouted", "type", t.String())
	}
}

// Close unsubscribes every route. Commands already enqueued still execute.
func (r *Router) Close() {
	for _, sub := range r.subs {
		r.b.Unsubscribe(sub)
	}
	r.subs = make(map[bus.EventType]bus.Subscription)
}
