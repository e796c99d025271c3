package acquisition

// State is an acquisition controller lifecycle phase.
type State int

const (
	// StateIdle means no run is in flight; parameters may be edited and a
	// new run may start.
	StateIdle State = iota

	// StateStarting covers hardware preparation, between Start accepting a
	// run and the first frame of the scan loop.
	StateStarting

	// StateAcquiring is the scan loop proper.
	StateAcquiring

	// StateStopping covers teardown: streaming shutdown, hardware restore,
	// sink flush.
	StateStopping
)

// String returns the lower-case state name used in events and logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAcquiring:
		return "acquiring"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// transitions is the complete lifecycle graph. Every run, successful or
// not, travels idle -> starting -> [acquiring ->] stopping -> idle; the
// starting -> stopping edge is the bail-out when hardware preparation
// fails before the scan loop begins.
func transitions() map[State][]State {
	return map[State][]State{
		StateIdle:      {StateStarting},
		StateStarting:  {StateAcquiring, StateStopping},
		StateAcquiring: {StateStopping},
		StateStopping:  {StateIdle},
	}
}
