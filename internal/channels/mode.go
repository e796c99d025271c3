package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/calderlab/scopecore/internal/actor"
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/hardware"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
)

// Apply writes a configuration to the hardware services: exposure and gain
// on the camera, source power on the illumination (left off; capture or the
// operator switches it on), and the emission filter position. The Z offset
// is the scan worker's to apply around each capture.
func Apply(ctx context.Context, rig *hardware.Rig, cfg *Config) error {
	if err := rig.Camera.Configure(cfg.ExposureMs, cfg.AnalogGain); err != nil {
		return fmt.Errorf("applying %s camera settings: %w", cfg.Name, err)
	}
	if err := rig.Illumination.Set(cfg.IlluminationSource, cfg.IlluminationIntensity, false); err != nil {
		return fmt.Errorf("applying %s illumination: %w", cfg.Name, err)
	}
	if err := rig.Filter.SetPosition(ctx, cfg.FilterPosition); err != nil {
		return fmt.Errorf("applying %s filter position: %w", cfg.Name, err)
	}
	return nil
}

// Mode tracks the instrument's active imaging mode and performs mode
// switches. A switch resolves the named configuration for the requested
// objective, applies it to the hardware, and publishes
// MicroscopeModeChanged.
type Mode struct {
	registry *Registry
	rig      *hardware.Rig
	b        *bus.Bus
	log      *logging.Logger

	mu        sync.RWMutex
	objective string
	active    *Config // nil until the first successful switch
}

// NewMode creates a mode tracker starting on defaultObjective with no
// active configuration.
func NewMode(registry *Registry, rig *hardware.Rig, b *bus.Bus, defaultObjective string, log *logging.Logger) *Mode {
	return &Mode{
		registry:  registry,
		rig:       rig,
		b:         b,
		log:       log.With("component", "mode"),
		objective: defaultObjective,
	}
}

// RegisterHandlers registers the mode switch handler on the actor.
func (m *Mode) RegisterHandlers(a *actor.Actor) {
	actor.Handle(a, func(cmd bus.SetMicroscopeModeCommand) error {
		return m.Switch(context.Background(), cmd.ConfigurationName, cmd.Objective)
	})
}

// Switch resolves and applies the named configuration under the given
// objective. An empty objective means "stay on the current one".
func (m *Mode) Switch(ctx context.Context, name, objective string) error {
	if objective == "" {
		objective = m.Objective()
	}

	cfg, err := m.registry.Resolve(ctx, name, objective)
	if err != nil {
		return fmt.Errorf("resolving mode %s @ %s: %w", name, objective, err)
	}
	if err := Apply(ctx, m.rig, cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.objective = objective
	m.active = cfg
	m.mu.Unlock()

	m.b.Publish(bus.MicroscopeModeChanged{ConfigurationName: cfg.Name, Objective: objective})
	m.log.Info("microscope mode set", "configuration", cfg.Name, "objective", objective)
	return nil
}

// Objective returns the objective currently in use.
func (m *Mode) Objective() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objective
}

// Active returns a copy of the active configuration, or nil if no mode has
// been applied yet.
func (m *Mode) Active() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil
	}
	return m.active.Clone()
}
