package scan

import (
	"errors"
	"fmt"

	"github.com/calderlab/scopecore/internal/infrastructure/config"
)

// ErrInvalidPlan is wrapped by the validation errors below.
var ErrInvalidPlan = errors.New("scan: invalid plan")

// FOV is one field of view: a stage position visited by the scan.
// Coordinates are millimetres; Z is the nominal focus for the position,
// refined by autofocus when the run enables it.
type FOV struct {
	// Index is the FOV's position within its region, starting at 0. The
	// autofocus every-N policy counts on it.
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Region is a named group of fields of view scanned consecutively, such as
// one well of a plate.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	FOVs []FOV  `json:"fovs"`
}

// Grid builds a rows x cols region centred on (centerX, centerY) with the
// given pitch between neighbouring fields. Fields are ordered in a
// serpentine: left to right on the first row, right to left on the next,
// which minimizes stage travel between consecutive positions.
func Grid(id, name string, centerX, centerY, z float64, rows, cols int, pitchMm float64) Region {
	fovs := make([]FOV, 0, rows*cols)
	startX := centerX - pitchMm*float64(cols-1)/2
	startY := centerY - pitchMm*float64(rows-1)/2

	idx := 0
	for r := 0; r < rows; r++ {
		y := startY + pitchMm*float64(r)
		for c := 0; c < cols; c++ {
			col := c
			if r%2 == 1 {
				col = cols - 1 - c
			}
			fovs = append(fovs, FOV{
				Index: idx,
				X:     startX + pitchMm*float64(col),
				Y:     y,
				Z:     z,
			})
			idx++
		}
	}

	return Region{ID: id, Name: name, FOVs: fovs}
}

// Single builds a one-FOV region at the given position. Used when an
// acquisition captures only the current field of view.
func Single(id, name string, x, y, z float64) Region {
	return Region{
		ID:   id,
		Name: name,
		FOVs: []FOV{{Index: 0, X: x, Y: y, Z: z}},
	}
}

// Plan is the whole-scan accounting for a set of regions and the axes
// multiplied across them.
type Plan struct {
	Regions  []Region
	NZ       int
	NT       int
	Channels int
}

// TotalFOVs returns the number of fields of view across all regions.
func (p Plan) TotalFOVs() int {
	n := 0
	for _, r := range p.Regions {
		n += len(r.FOVs)
	}
	return n
}

// LeafCount returns the number of captures the plan produces: one per
// (time point, FOV, Z plane, channel) tuple.
func (p Plan) LeafCount() int {
	return p.NT * p.TotalFOVs() * p.NZ * p.Channels
}

// Validate rejects plans that cannot run: no regions, an empty region, or
// axis counts below one.
func (p Plan) Validate() error {
	if len(p.Regions) == 0 {
		return fmt.Errorf("%w: no regions", ErrInvalidPlan)
	}
	for _, r := range p.Regions {
		if len(r.FOVs) == 0 {
			return fmt.Errorf("%w: region %q has no fields of view", ErrInvalidPlan, r.ID)
		}
	}
	if p.NZ < 1 {
		return fmt.Errorf("%w: n_z %d must be at least 1", ErrInvalidPlan, p.NZ)
	}
	if p.NT < 1 {
		return fmt.Errorf("%w: n_t %d must be at least 1", ErrInvalidPlan, p.NT)
	}
	if p.Channels < 1 {
		return fmt.Errorf("%w: no channels selected", ErrInvalidPlan)
	}
	return nil
}

// CheckBounds rejects regions containing positions outside the stage's
// travel limits, before any motion is attempted.
func CheckBounds(regions []Region, limits config.StageConfig) error {
	for _, r := range regions {
		for _, f := range r.FOVs {
			if f.X < limits.XMinMm || f.X > limits.XMaxMm {
				return fmt.Errorf("%w: region %q fov %d x %.3f outside [%.3f, %.3f]",
					ErrInvalidPlan, r.ID, f.Index, f.X, limits.XMinMm, limits.XMaxMm)
			}
			if f.Y < limits.YMinMm || f.Y > limits.YMaxMm {
				return fmt.Errorf("%w: region %q fov %d y %.3f outside [%.3f, %.3f]",
					ErrInvalidPlan, r.ID, f.Index, f.Y, limits.YMinMm, limits.YMaxMm)
			}
			if f.Z < limits.ZMinMm || f.Z > limits.ZMaxMm {
				return fmt.Errorf("%w: region %q fov %d z %.3f outside [%.3f, %.3f]",
					ErrInvalidPlan, r.ID, f.Index, f.Z, limits.ZMinMm, limits.ZMaxMm)
			}
		}
	}
	return nil
}
