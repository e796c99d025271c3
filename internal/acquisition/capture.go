package acquisition

import (
	"fmt"
	"time"
)

// CaptureInfo identifies one frame within a run: its coordinates on every
// scan axis plus the stage position it was taken at.
type CaptureInfo struct {
	ExperimentID string    `json:"experiment_id"`
	RegionID     string    `json:"region_id"`
	FOVIndex     int       `json:"fov_index"`
	ZIndex       int       `json:"z_index"`
	Timepoint    int       `json:"timepoint"`
	Channel      string    `json:"channel"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Z            float64   `json:"z"`
	CapturedAt   time.Time `json:"captured_at"`

	// FrameSeq is the frame's ordinal within the run, starting at 0.
	FrameSeq int `json:"frame_seq"`
}

// Key returns a path-like identifier unique within a run, used by sinks
// as a storage key.
func (c CaptureInfo) Key() string {
	return fmt.Sprintf("%s/t%d/%s/f%d/z%d/%s",
		c.ExperimentID, c.Timepoint, c.RegionID, c.FOVIndex, c.ZIndex, c.Channel)
}
