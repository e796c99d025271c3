package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStatus represents the complete system status response.
type SystemStatus struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Acquisition   AcquisitionStatus `json:"acquisition"`
	Bus           BusStatus         `json:"bus"`
	Actor         ActorStatus       `json:"actor"`
	Sink          *SinkStatus       `json:"sink,omitempty"`
	Runtime       RuntimeStatus     `json:"runtime"`
	WebSocket     WSStatus          `json:"websocket"`
	MQTT          *MQTTStatus       `json:"mqtt,omitempty"`
	Database      *DatabaseStatus   `json:"database,omitempty"`
}

// AcquisitionStatus contains the controller's lifecycle state.
type AcquisitionStatus struct {
	State       string `json:"state"`
	Running     bool   `json:"running"`
	ActiveRunID string `json:"active_run_id,omitempty"`
}

// BusStatus contains event bus counters.
type BusStatus struct {
	Depth     int    `json:"depth"`
	Processed uint64 `json:"processed"`
	Faults    uint64 `json:"faults"`
}

// ActorStatus contains command actor counters.
type ActorStatus struct {
	QueueDepth    int    `json:"queue_depth"`
	Processed     uint64 `json:"processed"`
	Faults        uint64 `json:"faults"`
	PoolFallbacks uint64 `json:"pool_fallbacks"`
}

// SinkStatus contains save-pipeline counters.
type SinkStatus struct {
	Queued  int `json:"queued"`
	Flushes int `json:"flushes"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStatus contains WebSocket hub statistics.
type WSStatus struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTStatus contains MQTT client statistics.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

// DatabaseStatus contains database connection pool statistics.
type DatabaseStatus struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystemStatus returns a snapshot of every core component's counters.
func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Acquisition: AcquisitionStatus{
			State:   s.controller.State().String(),
			Running: s.controller.Running(),
		},
		Bus: BusStatus{
			Depth:     s.b.Depth(),
			Processed: s.b.Processed(),
			Faults:    s.b.Faults(),
		},
		Actor: ActorStatus{
			QueueDepth:    s.a.QueueDepth(),
			Processed:     s.a.Processed(),
			Faults:        s.a.Faults(),
			PoolFallbacks: s.a.PoolFallbacks(),
		},
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.recorder != nil {
		status.Acquisition.ActiveRunID = s.recorder.ActiveRunID()
	}

	if s.hub != nil {
		status.WebSocket = WSStatus{
			ConnectedClients: s.hub.ClientCount(),
		}
	}

	if s.sink != nil {
		status.Sink = &SinkStatus{
			Queued:  s.sink.Count(),
			Flushes: s.sink.Flushes(),
		}
	}

	if s.mqtt != nil {
		status.MQTT = &MQTTStatus{
			Connected: s.mqtt.IsConnected(),
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		status.Database = &DatabaseStatus{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
