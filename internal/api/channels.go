package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calderlab/scopecore/internal/channels"
)

// handleListChannels returns all channel configurations.
//
// Query parameters:
//   - objective: restrict to configurations for one objective (e.g. "20x")
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if objective := r.URL.Query().Get("objective"); objective != "" {
		configs, err := s.channels.ListByObjective(ctx, objective)
		if err != nil {
			writeInternalError(w, "failed to list channel configurations")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": configs, "count": len(configs)})
		return
	}

	configs, err := s.channels.List(ctx)
	if err != nil {
		writeInternalError(w, "failed to list channel configurations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": configs, "count": len(configs)})
}

// handleGetChannel returns a single channel configuration by ID.
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := s.channels.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeNotFound(w, "channel configuration not found")
			return
		}
		writeInternalError(w, "failed to get channel configuration")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleCreateChannel creates a new channel configuration.
func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var cfg channels.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.channels.Create(r.Context(), &cfg); err != nil {
		switch {
		case errors.Is(err, channels.ErrInvalidConfig):
			writeBadRequest(w, err.Error())
		case errors.Is(err, channels.ErrDuplicate):
			writeConflict(w, err.Error())
		default:
			writeInternalError(w, "failed to create channel configuration")
		}
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// handleUpdateChannel partially updates a channel configuration.
func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Get existing configuration
	existing, err := s.channels.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeNotFound(w, "channel configuration not found")
			return
		}
		writeInternalError(w, "failed to get channel configuration")
		return
	}

	// Decode partial update onto existing configuration
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.channels.Update(r.Context(), existing); err != nil {
		switch {
		case errors.Is(err, channels.ErrInvalidConfig):
			writeBadRequest(w, err.Error())
		case errors.Is(err, channels.ErrDuplicate):
			writeConflict(w, err.Error())
		case errors.Is(err, channels.ErrNotFound):
			writeNotFound(w, "channel configuration not found")
		default:
			writeInternalError(w, "failed to update channel configuration")
		}
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteChannel removes a channel configuration by ID.
func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.channels.Delete(r.Context(), id); err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeNotFound(w, "channel configuration not found")
			return
		}
		writeInternalError(w, "failed to delete channel configuration")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
