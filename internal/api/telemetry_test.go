package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/tsdb"
)

// fakeMetricsBackend runs an HTTP server that answers the VictoriaMetrics
// health and Prometheus query endpoints, and wires a connected TSDB client
// into the test server.
func fakeMetricsBackend(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/query", "/api/v1/query_range":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client, err := tsdb.Connect(context.Background(), config.TSDBConfig{
		Enabled:       true,
		URL:           server.URL,
		BatchSize:     100,
		FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	env.srv.tsdb = client
	return server
}

// ─── Telemetry Endpoint Tests ──────────────────────────────────────

func TestTelemetryQuery_NotEnabled(t *testing.T) {
	env := testServer(t)
	router := env.srv.buildRouter()

	for _, path := range []string{
		"/api/v1/telemetry/query?query=up",
		"/api/v1/telemetry/query_range?query=up&start=1&end=2&step=1s",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestTelemetryQuery_Passthrough(t *testing.T) {
	env := testServer(t)
	fakeMetricsBackend(t, env)
	router := env.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/query?query=stage_position_z_mm", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}
}

func TestTelemetryQuery_MissingQuery(t *testing.T) {
	env := testServer(t)
	fakeMetricsBackend(t, env)
	router := env.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/query", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestTelemetryQueryRange_Passthrough(t *testing.T) {
	env := testServer(t)
	fakeMetricsBackend(t, env)
	router := env.srv.buildRouter()

	path := "/api/v1/telemetry/query_range?query=scan_progress_percent" +
		"&start=2026-03-10T09:00:00Z&end=2026-03-10T10:00:00Z&step=30s"
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}
}

func TestTelemetryQueryRange_BadParams(t *testing.T) {
	env := testServer(t)
	fakeMetricsBackend(t, env)
	router := env.srv.buildRouter()

	cases := []struct {
		name string
		path string
	}{
		{"missing query", "/api/v1/telemetry/query_range?start=1&end=2&step=1s"},
		{"missing start", "/api/v1/telemetry/query_range?query=up&end=2&step=1s"},
		{"bad start", "/api/v1/telemetry/query_range?query=up&start=yesterday&end=2&step=1s"},
		{"missing step", "/api/v1/telemetry/query_range?query=up&start=1&end=2"},
		{"zero step", "/api/v1/telemetry/query_range?query=up&start=1&end=2&step=0s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

// ─── Parameter Parsing Tests ───────────────────────────────────────

func TestParseQueryTime(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339", "2026-03-10T09:00:00Z", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), false},
		{"unix seconds", "1767999600", time.Unix(1767999600, 0).UTC(), false},
		{"fractional seconds", "1767999600.5", time.Unix(1767999600, int64(500*time.Millisecond)).UTC(), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseQueryTime(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseQueryTime(%q) = %v, want error", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQueryTime(%q) error: %v", tc.raw, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("parseQueryTime(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseQueryStep(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"duration", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"bare seconds", "15", 15 * time.Second, false},
		{"fractional seconds", "0.5", 500 * time.Millisecond, false},
		{"zero", "0s", 0, true},
		{"negative", "-10s", 0, true},
		{"empty", "", 0, true},
		{"garbage", "fast", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseQueryStep(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseQueryStep(%q) = %v, want error", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQueryStep(%q) error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("parseQueryStep(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
