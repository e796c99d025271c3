package history

import (
	"encoding/json"
	"time"
)

// Run is one acquisition run's record: when it ran, how it ended, and the
// parameter snapshot it ran with. FinishedAt is nil while the run is still
// in progress.
type Run struct {
	ID           string          `json:"id"`
	ExperimentID string          `json:"experiment_id"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Success      bool            `json:"success"`
	Aborted      bool            `json:"aborted"`
	Error        string          `json:"error,omitempty"`
	FramesSaved  int             `json:"frames_saved"`
	Params       json.RawMessage `json:"params"`
}

// Outcome is how a run ended.
type Outcome struct {
	FinishedAt  time.Time
	Success     bool
	Aborted     bool
	Error       string
	FramesSaved int
}

// RunEvent is one timeline entry within a run. Kind carries the bus
// event's stable name, Detail its JSON form.
type RunEvent struct {
	ID     int64           `json:"id"`
	RunID  string          `json:"run_id"`
	At     time.Time       `json:"at"`
	Kind   string          `json:"kind"`
	Detail json.RawMessage `json:"detail"`
}

// DefaultListLimit caps ListRuns when the filter does not set one.
const DefaultListLimit = 50

// ListFilter narrows and pages a run listing. The zero value lists the
// most recent DefaultListLimit runs across all experiments.
type ListFilter struct {
	ExperimentID string
	Limit        int
	Offset       int
}
