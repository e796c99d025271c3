package bus

import "fmt"

// Priority orders commands in the backend actor's queue. Higher values are
// processed first; commands of equal priority retain submission order.
type Priority int

// Priority bands. The gaps leave room for intermediate levels without
// renumbering persisted or logged values.
const (
	// PriorityNormal is the default for all commands.
	PriorityNormal Priority = 50

	// PriorityHigh is for commands that should jump ahead of routine work,
	// such as a mode change queued behind a long motion sequence.
	PriorityHigh Priority = 75

	// PriorityStop is reserved for stop and abort commands. A stop must
	// overtake every queued command so a runaway acquisition can be halted
	// without waiting for the backlog.
	PriorityStop Priority = 100
)

// String returns the band name, or the numeric value for non-standard levels.
func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityStop:
		return "stop"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Prioritized is implemented by command types that need a non-default queue
// priority. Commands that do not implement it are queued at PriorityNormal.
//
// Priority is declared on the type rather than inferred from its name so
// that adding a command like "StopFlowCommand" can never accidentally
// preempt, and renaming a command can never silently demote it.
type Prioritized interface {
	Event

	// QueuePriority returns the band this command is enqueued at.
	QueuePriority() Priority
}

// PriorityOf returns the queue priority for a command: the declared band for
// Prioritized types, PriorityNormal otherwise.
func PriorityOf(ev Event) Priority {
	if p, ok := ev.(Prioritized); ok {
		return p.QueuePriority()
	}
	return PriorityNormal
}
