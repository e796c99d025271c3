package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/calderlab/scopecore/internal/acquisition"
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
	"github.com/google/uuid"
)

// dbTimeout bounds each store operation performed from a bus handler.
const dbTimeout = 5 * time.Second

// ParamsSource supplies the parameter snapshot recorded with a new run.
// *acquisition.Controller satisfies it.
type ParamsSource interface {
	Current() *acquisition.Parameters
}

// Recorder writes acquisition runs to the repository as the bus reports
// them. It tracks at most one active run, matching the controller's
// one-run-at-a-time rule.
type Recorder struct {
	repo Repository
	src  ParamsSource
	log  *logging.Logger

	mu     sync.Mutex
	runID  string
	frames int
}

// NewRecorder creates a recorder. Call Subscribe to attach it to a bus.
func NewRecorder(repo Repository, src ParamsSource, log *logging.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		src:  src,
		log:  log.With("component", "history"),
	}
}

// Subscribe registers the recorder's event handlers on the bus.
func (r *Recorder) Subscribe(b *bus.Bus) {
	bus.On(b, r.onStateChanged)
	bus.On(b, r.onFinished)
	bus.On(b, r.onFrame)
	bus.On(b, r.onProgress)
	bus.On(b, r.onControllerState)
}

// ActiveRunID returns the ID of the run currently being recorded, or ""
// when no run is in progress.
func (r *Recorder) ActiveRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func (r *Recorder) onStateChanged(ev bus.AcquisitionStateChanged) error {
	if !ev.InProgress {
		return nil // the worker-finished event closes the run
	}

	params := json.RawMessage("{}")
	if p := r.src.Current(); p != nil {
		raw, err := json.Marshal(p)
		if err != nil {
			r.log.Error("marshalling run parameters", "error", err)
		} else {
			params = raw
		}
	}

	run := &Run{
		ID:           uuid.New().String(),
		ExperimentID: ev.ExperimentID,
		StartedAt:    time.Now().UTC(),
		Params:       params,
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	if err := r.repo.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}

	r.mu.Lock()
	r.runID = run.ID
	r.frames = 0
	r.mu.Unlock()

	r.log.Info("run recorded",
		"run_id", run.ID,
		"experiment_id", ev.ExperimentID)
	return nil
}

func (r *Recorder) onFinished(ev bus.AcquisitionWorkerFinished) error {
	r.mu.Lock()
	id := r.runID
	frames := r.frames
	r.runID = ""
	r.frames = 0
	r.mu.Unlock()

	if id == "" {
		r.log.Warn("finished event without a recorded run",
			"experiment_id", ev.ExperimentID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	err := r.repo.FinishRun(ctx, id, Outcome{
		FinishedAt:  time.Now().UTC(),
		Success:     ev.Success,
		Aborted:     ev.Aborted,
		Error:       ev.Error,
		FramesSaved: frames,
	})
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

func (r *Recorder) onFrame(bus.FrameCaptured) error {
	r.mu.Lock()
	if r.runID != "" {
		r.frames++
	}
	r.mu.Unlock()
	return nil
}

func (r *Recorder) onProgress(ev bus.AcquisitionProgress) error {
	return r.appendEvent(ev)
}

func (r *Recorder) onControllerState(ev bus.AcquisitionControllerStateChanged) error {
	return r.appendEvent(ev)
}

// appendEvent stores one timeline entry against the active run, keyed by
// the event's bus kind. Events arriving outside a run are dropped: the
// idle-to-starting transition fires before the run record exists, and
// nothing else reaches here while the controller is idle.
func (r *Recorder) appendEvent(payload bus.Event) error {
	r.mu.Lock()
	id := r.runID
	r.mu.Unlock()
	if id == "" {
		return nil
	}

	detail, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", payload.Kind(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	ev := &RunEvent{RunID: id, At: time.Now().UTC(), Kind: payload.Kind(), Detail: detail}
	if err := r.repo.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("recording %s event: %w", payload.Kind(), err)
	}
	return nil
}
