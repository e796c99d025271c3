package channels

import (
	"fmt"
	"strings"
)

// Validation limits. Exposure and Z offset bounds are generous envelopes
// that catch unit mistakes (seconds where milliseconds were meant, mm where
// um were meant) rather than tight hardware limits, which the services
// enforce at apply time.
const (
	maxNameLength   = 100
	maxExposureMs   = 10000
	maxAnalogGain   = 48
	maxZOffsetMagUm = 200
	minFilterPos    = 1
	maxIntensityPct = 100
	maxObjectiveLen = 50
	maxCameraSNLen  = 64
)

// Validate checks every field of a configuration before persistence.
func Validate(c *Config) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidConfig)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidConfig, maxNameLength)
	}
	objective := strings.TrimSpace(c.Objective)
	if objective == "" {
		return fmt.Errorf("%w: objective cannot be empty", ErrInvalidConfig)
	}
	if len(objective) > maxObjectiveLen {
		return fmt.Errorf("%w: objective exceeds %d characters", ErrInvalidConfig, maxObjectiveLen)
	}
	if c.ExposureMs <= 0 || c.ExposureMs > maxExposureMs {
		return fmt.Errorf("%w: exposure %.2fms outside (0, %d]", ErrInvalidConfig, c.ExposureMs, maxExposureMs)
	}
	if c.AnalogGain < 0 || c.AnalogGain > maxAnalogGain {
		return fmt.Errorf("%w: analog gain %.2f outside [0, %d]", ErrInvalidConfig, c.AnalogGain, maxAnalogGain)
	}
	if c.IlluminationSource < 0 {
		return fmt.Errorf("%w: illumination source %d is negative", ErrInvalidConfig, c.IlluminationSource)
	}
	if c.IlluminationIntensity < 0 || c.IlluminationIntensity > maxIntensityPct {
		return fmt.Errorf("%w: illumination intensity %.1f%% outside [0, %d]",
			ErrInvalidConfig, c.IlluminationIntensity, maxIntensityPct)
	}
	if c.FilterPosition < minFilterPos {
		return fmt.Errorf("%w: filter position %d below %d", ErrInvalidConfig, c.FilterPosition, minFilterPos)
	}
	if c.ZOffsetUm < -maxZOffsetMagUm || c.ZOffsetUm > maxZOffsetMagUm {
		return fmt.Errorf("%w: z offset %.2fum outside [-%d, %d]",
			ErrInvalidConfig, c.ZOffsetUm, maxZOffsetMagUm, maxZOffsetMagUm)
	}
	if len(c.CameraSN) > maxCameraSNLen {
		return fmt.Errorf("%w: camera serial exceeds %d characters", ErrInvalidConfig, maxCameraSNLen)
	}
	return nil
}
