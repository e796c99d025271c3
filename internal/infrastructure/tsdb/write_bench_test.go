package tsdb

import (
	"testing"
	"time"
)

func BenchmarkFormatLineProtocol_Simple(b *testing.B) {
	tags := map[string]string{"instrument": "scope-01"}
	fields := map[string]interface{}{"z_mm": 3.001}
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		formatLineProtocol("stage_position", tags, fields, ts)
	}
}

func BenchmarkFormatLineProtocol_MultiField(b *testing.B) {
	tags := map[string]string{"instrument": "scope-01"}
	fields := map[string]interface{}{
		"x_mm":     12.5,
		"y_mm":     30.0,
		"z_mm":     3.001,
		"piezo_um": 150.0,
	}
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		formatLineProtocol("stage_position", tags, fields, ts)
	}
}

func BenchmarkFormatLineProtocol_ManyTags(b *testing.B) {
	tags := map[string]string{
		"instrument":    "scope-01",
		"experiment_id": "exp-2026-02-05",
		"channel":       "488",
		"objective":     "20x",
		"mode":          "fluorescence",
	}
	fields := map[string]interface{}{"z_mm": 3.001}
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		formatLineProtocol("frame_captured", tags, fields, ts)
	}
}

func BenchmarkEscapeTag(b *testing.B) {
	for i := 0; i < b.N; i++ {
		escapeTag("channel=488,objective 20x")
	}
}
