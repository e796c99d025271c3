package acquisition

import (
	"fmt"

	"github.com/calderlab/scopecore/internal/channels"
	"github.com/calderlab/scopecore/internal/hardware"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/scan"
)

// AutofocusPolicy controls the contrast autofocus sub-scan run before
// imaging a field of view.
type AutofocusPolicy struct {
	// Enabled turns the sub-scan on. When false the nominal FOV Z is used
	// as-is.
	Enabled bool `json:"enabled"`

	// EveryNFOVs runs autofocus on every Nth field of view within a
	// region (1 = every field). Fields in between reuse the last focused
	// plane.
	EveryNFOVs int `json:"every_n_fovs"`

	// NPlanes is the number of Z planes swept per sub-scan.
	NPlanes int `json:"n_planes"`

	// DeltaZUm is the spacing between swept planes, micrometres.
	DeltaZUm float64 `json:"delta_z_um"`

	// StopThreshold ends the sweep early once a plane's sharpness falls
	// below this fraction of the running maximum, on the assumption the
	// peak has been passed. 0 disables early stopping.
	StopThreshold float64 `json:"stop_threshold"`
}

// Parameters is the complete, immutable description of one acquisition
// run. The controller builds it from the current draft when a run starts
// and the worker reads it; nothing mutates it mid-run.
type Parameters struct {
	ExperimentID string `json:"experiment_id"`

	// OutputRoot is the directory the run's dataset is saved under. Sinks
	// join it with each capture's key.
	OutputRoot string `json:"output_root"`

	// Channels are the resolved channel configurations imaged at every
	// (time point, FOV, Z plane) tuple, in order.
	Channels []channels.Config `json:"channels"`

	// Regions are the stage positions to visit, scanned in order.
	Regions []scan.Region `json:"regions"`

	// NZ and DeltaZUm define the Z stack per field of view.
	NZ       int     `json:"n_z"`
	DeltaZUm float64 `json:"delta_z_um"`

	// NT and TimeIntervalS define the time series. The interval is
	// measured start-to-start; a cycle that overruns it starts the next
	// time point immediately.
	NT            int     `json:"n_t"`
	TimeIntervalS float64 `json:"time_interval_s"`

	Autofocus AutofocusPolicy `json:"autofocus"`

	// UseReflectionAF prefers the hardware reflection autofocus sensor
	// over the contrast sweep where the rig has one.
	UseReflectionAF bool `json:"use_reflection_af"`

	// UsePiezo moves the Z stack on the piezo objective scanner instead
	// of the stage Z axis.
	UsePiezo bool `json:"use_piezo"`

	// UseFluidics runs the fluidics sequence for each time point before
	// imaging it.
	UseFluidics bool `json:"use_fluidics"`

	// TriggerMode selects software or hardware-strobed capture for the
	// whole run.
	TriggerMode hardware.TriggerMode `json:"trigger_mode"`
}

// Plan returns the scan accounting for the run.
func (p *Parameters) Plan() scan.Plan {
	return scan.Plan{
		Regions:  p.Regions,
		NZ:       p.NZ,
		NT:       p.NT,
		Channels: len(p.Channels),
	}
}

// Validate rejects runs that cannot execute: empty or degenerate plans and
// fields of view outside the stage travel limits. All failures wrap
// ErrInvalidParameters.
func (p *Parameters) Validate(limits config.StageConfig) error {
	if p.ExperimentID == "" {
		return fmt.Errorf("%w: experiment id is empty", ErrInvalidParameters)
	}
	if err := p.Plan().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if err := scan.CheckBounds(p.Regions, limits); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if p.NZ > 1 && p.DeltaZUm <= 0 {
		return fmt.Errorf("%w: n_z %d needs a positive delta_z", ErrInvalidParameters, p.NZ)
	}
	if p.Autofocus.Enabled {
		if p.Autofocus.NPlanes < 1 {
			return fmt.Errorf("%w: autofocus n_planes %d must be at least 1", ErrInvalidParameters, p.Autofocus.NPlanes)
		}
		if p.Autofocus.DeltaZUm <= 0 {
			return fmt.Errorf("%w: autofocus delta_z must be positive", ErrInvalidParameters)
		}
		if p.Autofocus.EveryNFOVs < 1 {
			return fmt.Errorf("%w: autofocus every_n_fovs %d must be at least 1", ErrInvalidParameters, p.Autofocus.EveryNFOVs)
		}
	}
	return nil
}

// Clone returns a deep copy. The worker gets its own copy so later draft
// edits cannot touch a run in flight.
func (p *Parameters) Clone() *Parameters {
	cp := *p
	cp.Channels = make([]channels.Config, len(p.Channels))
	copy(cp.Channels, p.Channels)
	cp.Regions = make([]scan.Region, len(p.Regions))
	for i, r := range p.Regions {
		cp.Regions[i] = r
		cp.Regions[i].FOVs = make([]scan.FOV, len(r.FOVs))
		copy(cp.Regions[i].FOVs, r.FOVs)
	}
	return &cp
}
