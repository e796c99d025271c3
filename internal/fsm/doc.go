// Package fsm provides a small fixed-table state machine used by scopecore
// controllers.
//
// A Machine is constructed with its complete transition table and never
// learns new transitions at runtime. Every controller that owns hardware
// state (acquisition, autofocus, fluidics) embeds one so that "can this
// happen now" is answered in exactly one place and rejected transitions
// produce errors that name the current state and the allowed targets.
//
// The state type is supplied by the caller and only needs to be comparable
// and printable:
//
//	type acqState int
//
//	const (
//		idle acqState = iota
//		acquiring
//	)
//
//	func (s acqState) String() string { ... }
//
//	m := fsm.New("acquisition", idle, map[acqState][]acqState{
//		idle:      {acquiring},
//		acquiring: {idle},
//	})
//
// Transition callbacks run outside the machine's internal lock so they may
// call back into the machine or publish bus events without deadlocking.
package fsm
