package fsm

import (
	"fmt"
	"sync"
)

// State is the constraint for machine states: any comparable type that can
// print itself. Integer enums with a String method are the usual choice.
type State interface {
	comparable
	fmt.Stringer
}

// Logger is the minimal logging surface the machine needs. *logging.Logger
// satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Machine is a thread-safe state machine with a fixed transition table.
//
// Thread Safety: all methods are safe for concurrent use. Transition
// callbacks run outside the internal lock, so a callback may inspect the
// machine or trigger further work; callers that need strictly ordered
// callback delivery must serialize their transitions.
type Machine[S State] struct {
	name string

	mu          sync.Mutex
	current     S
	transitions map[S][]S
	commands    map[S]map[string]bool
	callbacks   []func(from, to S)

	loggerMu sync.RWMutex
	logger   Logger
}

// New creates a machine named name, starting at initial, with the given
// transition table. The table is the complete set of legal transitions;
// states absent from it are terminal.
func New[S State](name string, initial S, transitions map[S][]S) *Machine[S] {
	return &Machine[S]{
		name:        name,
		current:     initial,
		transitions: transitions,
		commands:    make(map[S]map[string]bool),
	}
}

// SetLogger attaches a logger for ForceState warnings. A nil logger
// silences them.
func (m *Machine[S]) SetLogger(l Logger) {
	m.loggerMu.Lock()
	m.logger = l
	m.loggerMu.Unlock()
}

// Name returns the machine's name.
func (m *Machine[S]) Name() string { return m.name }

// Current returns the current state.
func (m *Machine[S]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// In reports whether the current state is one of states.
func (m *Machine[S]) In(states ...S) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		if m.current == s {
			return true
		}
	}
	return false
}

// Allowed returns the states reachable from the current state, in table
// order.
func (m *Machine[S]) Allowed() []S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]S(nil), m.transitions[m.current]...)
}

// CanTransition reports whether the table permits moving from the current
// state to next.
func (m *Machine[S]) CanTransition(next S) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.transitions[m.current] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the machine to next if the table allows it, then runs
// the registered callbacks with the old and new state. A rejected
// transition returns a *TransitionError and leaves the machine unchanged.
func (m *Machine[S]) TransitionTo(next S) error {
	m.mu.Lock()
	from := m.current

	allowed := false
	for _, s := range m.transitions[from] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		names := make([]string, 0, len(m.transitions[from]))
		for _, s := range m.transitions[from] {
			names = append(names, s.String())
		}
		m.mu.Unlock()
		return &TransitionError{
			Machine: m.name,
			From:    from.String(),
			To:      next.String(),
			Allowed: names,
		}
	}

	m.current = next
	cbs := append(([]func(from, to S))(nil), m.callbacks...)
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(from, next)
	}
	return nil
}

// ForceState sets the state without consulting the table and logs the
// reason at warn level. It exists for fault recovery paths where the
// hardware has already been returned to a known condition; normal code must
// use TransitionTo. Callbacks still run so observers stay consistent.
func (m *Machine[S]) ForceState(next S, reason string) {
	m.mu.Lock()
	from := m.current
	m.current = next
	cbs := append(([]func(from, to S))(nil), m.callbacks...)
	m.mu.Unlock()

	if log := m.getLogger(); log != nil {
		log.Warn("state forced outside transition table",
			"machine", m.name,
			"from", from.String(),
			"to", next.String(),
			"reason", reason)
	}
	for _, cb := range cbs {
		cb(from, next)
	}
}

// RequireState returns nil if the current state is one of states, and a
// *OperationError naming the operation, the current state and the
// requirement otherwise. It is the guard operations call before touching
// hardware.
func (m *Machine[S]) RequireState(op string, states ...S) error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	for _, s := range states {
		if current == s {
			return nil
		}
	}

	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, s.String())
	}
	return &OperationError{
		Machine:   m.name,
		Operation: op,
		State:     current.String(),
		Required:  names,
	}
}

// OnTransition registers fn to run after every successful transition,
// including forced ones. Callbacks run in registration order, outside the
// machine's lock.
func (m *Machine[S]) OnTransition(fn func(from, to S)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// RegisterValidCommands declares which command kinds are acceptable while
// the machine is in state. A state with no declaration accepts every
// command; declaring any commands for a state makes the list exhaustive for
// that state.
func (m *Machine[S]) RegisterValidCommands(state S, kinds ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.commands[state]
	if set == nil {
		set = make(map[string]bool, len(kinds))
		m.commands[state] = set
	}
	for _, k := range kinds {
		set[k] = true
	}
}

// CommandValid reports whether a command kind is acceptable in the current
// state.
func (m *Machine[S]) CommandValid(kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, declared := m.commands[m.current]
	if !declared {
		return true
	}
	return set[kind]
}

func (m *Machine[S]) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}
