package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/calderlab/scopecore/internal/history"
)

// handleListRuns returns acquisition runs, newest first.
//
// Query parameters:
//   - experiment_id: restrict to one experiment
//   - limit: page size (default 50)
//   - offset: rows to skip
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := history.ListFilter{
		ExperimentID: r.URL.Query().Get("experiment_id"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	runs, err := s.history.ListRuns(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns a single run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		writeInternalError(w, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleListRunEvents returns a run's timeline in insertion order.
func (s *Server) handleListRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Distinguish "unknown run" from "run with no events"
	if _, err := s.history.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		writeInternalError(w, "failed to get run")
		return
	}

	events, err := s.history.ListEvents(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list run events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
