// Package influxdb provides InfluxDB connectivity for scopecore.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking point writes, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for instrument telemetry:
//   - scan progress and per-frame capture points
//   - autofocus sweep results (best plane, focus measure)
//   - stage position samples
//
// The telemetry recorder builds the points; this package only moves them.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "scopecore",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
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
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This keeps high-frequency telemetry such as stage
// position samples off the acquisition path.
package influxdb
