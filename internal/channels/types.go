package channels

import "time"

// Config is one imaging channel configuration: everything the instrument
// applies before capturing a frame in this channel. Configurations are
// unique per (name, objective) pair so the same channel name can carry
// different settings under different magnifications.
type Config struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Objective             string    `json:"objective"`
	ExposureMs            float64   `json:"exposure_ms"`
	AnalogGain            float64   `json:"analog_gain"`
	IlluminationSource    int       `json:"illumination_source"`
	IlluminationIntensity float64   `json:"illumination_intensity"`
	FilterPosition        int       `json:"filter_position"`
	ZOffsetUm             float64   `json:"z_offset_um"`
	CameraSN              string    `json:"camera_sn,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Clone returns an independent copy. Config holds no reference types, so a
// value copy is a full copy; the method keeps call sites explicit about
// handing out cache-independent data.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
