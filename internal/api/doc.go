// Package api implements the HTTP REST API and WebSocket server for scopecore.
//
// This package provides:
//   - REST endpoints for channel configuration CRUD, acquisition control,
//     run history, and telemetry queries
//   - WebSocket hub broadcasting bus notifications to lab clients in real time
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - TLS support for deployments outside a trusted bench network
//
// # Architecture
//
// The API server sits between lab clients (acquisition GUIs, analysis
// notebooks, dashboards) and the instrument core. Mutating acquisition
// endpoints call the controller's direct methods so the caller gets a
// concrete success or failure; state-machine rejections surface as 409
// responses rather than silently dropped commands. Notifications published
// on the internal event bus are fanned out to WebSocket clients subscribed
// to the matching event kind ("acquisition_progress", "frame_captured", ...).
//
// # Security
//
// The server carries no authentication layer: it is designed to listen on
// the instrument's isolated bench network. Enable TLS and bind to a
// specific interface when that assumption does not hold.
//
// # Graceful Degradation
//
// Telemetry query endpoints return 503 when no time-series backend is
// configured, and the system status endpoint omits sections for components
// that were not wired in. Everything else works with the core alone.
package api
