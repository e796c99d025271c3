package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/calderlab/scopecore/internal/acquisition"
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/fsm"
	"github.com/calderlab/scopecore/internal/scan"
)

// startAcquisitionRequest is the optional body for POST /acquisition/start.
type startAcquisitionRequest struct {
	ExperimentID      string `json:"experiment_id"`
	AcquireCurrentFOV bool   `json:"acquire_current_fov"`
}

// setRegionsRequest is the body for PUT /acquisition/regions. Regions are
// replaced wholesale; a grid spec appends a generated serpentine region.
type setRegionsRequest struct {
	Regions []scan.Region `json:"regions"`
	Grid    *gridRequest  `json:"grid,omitempty"`
}

// gridRequest describes a rows x cols region generated server side.
type gridRequest struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Z       float64 `json:"z"`
	Rows    int     `json:"rows"`
	Cols    int     `json:"cols"`
	PitchMm float64 `json:"pitch_mm"`
}

// writeControllerError maps controller errors onto HTTP statuses.
// State-machine rejections are conflicts: the request was well formed but
// the controller cannot honor it in its current state.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fsm.ErrInvalidState), errors.Is(err, acquisition.ErrAutofocusBusy):
		writeConflict(w, err.Error())
	case errors.Is(err, acquisition.ErrInvalidParameters), errors.Is(err, scan.ErrInvalidPlan):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// handleAcquisitionStatus returns the controller state, the staged draft,
// and the frozen snapshot of the in-flight run (when one is running).
func (s *Server) handleAcquisitionStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"state":   s.controller.State().String(),
		"running": s.controller.Running(),
		"draft":   s.controller.DraftSettings(),
	}
	if current := s.controller.Current(); current != nil {
		resp["current"] = current
	}
	if s.recorder != nil {
		if id := s.recorder.ActiveRunID(); id != "" {
			resp["active_run_id"] = id
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStartAcquisition launches an acquisition run. The body is optional;
// an empty experiment ID gets a generated one. The response is 202 Accepted:
// the run itself executes on the worker pool and reports over the bus and
// WebSocket.
func (s *Server) handleStartAcquisition(w http.ResponseWriter, r *http.Request) {
	var req startAcquisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.controller.Start(req.ExperimentID, req.AcquireCurrentFOV); err != nil {
		writeControllerError(w, err)
		return
	}

	// Current() carries the generated experiment ID; a very short run may
	// already have cleared it, in which case the requested ID stands.
	experimentID := req.ExperimentID
	if current := s.controller.Current(); current != nil {
		experimentID = current.ExperimentID
	}

	s.logger.Info("acquisition started via API", "experiment_id", experimentID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":        "accepted",
		"experiment_id": experimentID,
		"state":         s.controller.State().String(),
	})
}

// handleStopAcquisition requests an abort of the in-flight run. The worker
// honors it at the next hardware step, so 202 means "abort raised", not
// "run finished".
func (s *Server) handleStopAcquisition(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.RequestAbort(); err != nil {
		writeControllerError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"state":  s.controller.State().String(),
	})
}

// handleGetParameters returns the staged draft settings.
func (s *Server) handleGetParameters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.DraftSettings())
}

// handleSetParameters merges the set fields of the body into the draft.
// Absent fields stay unchanged, so clients can adjust a single knob.
func (s *Server) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	var cmd bus.SetAcquisitionParametersCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.controller.ApplyParameters(cmd); err != nil {
		writeControllerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.controller.DraftSettings())
}

// handleSetRegions replaces the draft's scan regions.
func (s *Server) handleSetRegions(w http.ResponseWriter, r *http.Request) {
	var req setRegionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	regions := req.Regions
	if req.Grid != nil {
		g := req.Grid
		if g.ID == "" {
			writeBadRequest(w, "grid id is required")
			return
		}
		if g.Rows < 1 || g.Cols < 1 {
			writeBadRequest(w, "grid rows and cols must be at least 1")
			return
		}
		if g.PitchMm <= 0 {
			writeBadRequest(w, "grid pitch_mm must be positive")
			return
		}
		regions = append(regions, scan.Grid(g.ID, g.Name, g.CenterX, g.CenterY, g.Z, g.Rows, g.Cols, g.PitchMm))
	}

	if err := s.controller.SetRegions(regions); err != nil {
		writeControllerError(w, err)
		return
	}

	draft := s.controller.DraftSettings()
	writeJSON(w, http.StatusOK, map[string]any{
		"regions": draft.Regions,
		"count":   len(draft.Regions),
	})
}

// handleRunAutofocus launches a standalone autofocus sweep at the current
// position. Every refusal (controller busy, sweep already running, no
// active channel) is a conflict with the instrument's current state.
func (s *Server) handleRunAutofocus(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.StartAutofocus(); err != nil {
		writeConflict(w, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// handleAbortAutofocus raises the sweep cancellation flag. Harmless when no
// sweep is running, so it always accepts.
func (s *Server) handleAbortAutofocus(w http.ResponseWriter, _ *http.Request) {
	s.controller.AbortAutofocus()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}
