package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system/status", s.handleSystemStatus)

		// Channel configuration endpoints
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Post("/", s.handleCreateChannel)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetChannel)
				r.Patch("/", s.handleUpdateChannel)
				r.Delete("/", s.handleDeleteChannel)
			})
		})

		// Acquisition control endpoints
		r.Route("/acquisition", func(r chi.Router) {
			r.Get("/", s.handleAcquisitionStatus)
			r.Post("/start", s.handleStartAcquisition)
			r.Post("/stop", s.handleStopAcquisition)
			r.Get("/parameters", s.handleGetParameters)
			r.Patch("/parameters", s.handleSetParameters)
			r.Put("/regions", s.handleSetRegions)
			r.Post("/autofocus", s.handleRunAutofocus)
			r.Post("/autofocus/abort", s.handleAbortAutofocus)
		})

		// Run history endpoints
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/events", s.handleListRunEvents)
			})
		})

		// Telemetry query endpoints (PromQL passthrough)
		r.Route("/telemetry", func(r chi.Router) {
			r.Get("/query", s.handleTelemetryQuery)
			r.Get("/query_range", s.handleTelemetryQueryRange)
		})

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
