// Package tsdb provides time-series database connectivity for scopecore.
//
// It writes to VictoriaMetrics using InfluxDB line protocol over HTTP and
// queries using PromQL. Zero external dependencies — uses only net/http.
//
// # Purpose
//
// This package is the lightweight alternative to the InfluxDB backend for
// instrument telemetry:
//   - scan progress and per-frame capture points
//   - autofocus sweep results (best plane, focus measure)
//   - stage position samples
//
// The telemetry recorder builds the points; this package only moves them.
// PromQL queries back the telemetry endpoints of the HTTP API.
//
// # Usage
//
//	cfg := config.TSDBConfig{
//	    Enabled:       true,
//	    URL:           "http://localhost:8428",
//	    BatchSize:     1000,
//	    FlushInterval: 1,
//	}
//
//	client, err := tsdb.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePoint("stage_position",
//	    map[string]string{"instrument": "scope-01"},
//	    map[string]interface{}{"x_mm": 12.5, "y_mm": 30.0, "z_mm": 3.001})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are batched internally and flushed on size threshold or timer.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// Batch flush is a single HTTP POST with newline-delimited line protocol.
// VictoriaMetrics processes these with minimal overhead.
package tsdb
