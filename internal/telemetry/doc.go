// Package telemetry converts bus notifications into time-series points.
//
// The Recorder subscribes to acquisition and hardware notifications and
// writes one point per event: scan progress, per-frame captures, autofocus
// outcomes and stage position samples. Points carry the instrument ID as a
// tag and, while a run is active, the experiment ID.
//
// The backend is abstracted behind the Writer interface, which both the
// influxdb and tsdb infrastructure clients satisfy. Writes are non-blocking
// in both backends, so handlers never stall the bus dispatcher.
package telemetry
