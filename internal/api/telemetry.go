package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/calderlab/scopecore/internal/infrastructure/tsdb"
)

// handleTelemetryQuery executes a PromQL instant query against the
// time-series backend and passes the Prometheus API response through
// unchanged.
//
// Query parameters:
//   - query: PromQL expression (required)
func (s *Server) handleTelemetryQuery(w http.ResponseWriter, r *http.Request) {
	if s.tsdb == nil {
		writeUnavailable(w, "telemetry backend not enabled")
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeBadRequest(w, "query parameter is required")
		return
	}

	result, err := s.tsdb.QueryInstant(r.Context(), query)
	if err != nil {
		if errors.Is(err, tsdb.ErrNotConnected) {
			writeUnavailable(w, "telemetry backend not reachable")
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result) //nolint:errcheck // Best-effort write to response
}

// handleTelemetryQueryRange executes a PromQL range query.
//
// Query parameters:
//   - query: PromQL expression (required)
//   - start, end: RFC 3339 timestamps or Unix seconds (required)
//   - step: Go duration ("30s") or bare seconds (required)
func (s *Server) handleTelemetryQueryRange(w http.ResponseWriter, r *http.Request) {
	if s.tsdb == nil {
		writeUnavailable(w, "telemetry backend not enabled")
		return
	}

	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		writeBadRequest(w, "query parameter is required")
		return
	}

	start, err := parseQueryTime(q.Get("start"))
	if err != nil {
		writeBadRequest(w, "start: "+err.Error())
		return
	}
	end, err := parseQueryTime(q.Get("end"))
	if err != nil {
		writeBadRequest(w, "end: "+err.Error())
		return
	}
	step, err := parseQueryStep(q.Get("step"))
	if err != nil {
		writeBadRequest(w, "step: "+err.Error())
		return
	}

	result, err := s.tsdb.QueryRange(r.Context(), query, start, end, step)
	if err != nil {
		if errors.Is(err, tsdb.ErrNotConnected) {
			writeUnavailable(w, "telemetry backend not reachable")
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result) //nolint:errcheck // Best-effort write to response
}

// parseQueryTime accepts RFC 3339 timestamps and Unix seconds, the two
// formats the Prometheus HTTP API takes.
func parseQueryTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if sec, err := strconv.ParseFloat(raw, 64); err == nil {
		s := int64(sec)
		ns := int64((sec - float64(s)) * float64(time.Second))
		return time.Unix(s, ns).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// parseQueryStep accepts Go duration strings and bare seconds.
func parseQueryStep(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("step is required")
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("step must be positive")
		}
		return d, nil
	}
	if sec, err := strconv.ParseFloat(raw, 64); err == nil && sec > 0 {
		return time.Duration(sec * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid step %q", raw)
}
