package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/calderlab/scopecore/internal/actor"
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/channels"
	"github.com/calderlab/scopecore/internal/fsm"
	"github.com/calderlab/scopecore/internal/hardware"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
	"github.com/calderlab/scopecore/internal/scan"
	"github.com/google/uuid"
)

// Draft accumulates acquisition settings between runs. Slice fields are
// replaced wholesale, never mutated in place, so a snapshot taken at run
// start stays stable.
type Draft struct {
	NZ            int     `json:"n_z"`
	DeltaZUm      float64 `json:"delta_z_um"`
	NT            int     `json:"n_t"`
	TimeIntervalS float64 `json:"time_interval_s"`

	ChannelNames []string      `json:"channels"`
	Regions      []scan.Region `json:"regions"`

	UseAutofocus    bool `json:"use_autofocus"`
	UseReflectionAF bool `json:"use_reflection_af"`
	UsePiezo        bool `json:"use_piezo"`
	UseFluidics     bool `json:"use_fluidics"`
	TriggerHardware bool `json:"trigger_hardware"`
}

// ChannelResolver resolves a channel name under an objective to its full
// configuration. *channels.Registry implements it.
type ChannelResolver interface {
	Resolve(ctx context.Context, name, objective string) (*channels.Config, error)
}

// ModeTracker reports the instrument's active objective and channel
// configuration. *channels.Mode implements it.
type ModeTracker interface {
	Objective() string
	Active() *channels.Config
}

// Controller owns the acquisition lifecycle. It is a state machine over
// State, edits a Draft while idle, freezes it into Parameters at run
// start, and hands the scan to a worker on the actor's pool so command
// processing stays responsive while a run lasts hours.
type Controller struct {
	machine  *fsm.Machine[State]
	b        *bus.Bus
	a        *actor.Actor
	rig      *hardware.Rig
	registry ChannelResolver
	mode     ModeTracker
	sink     Sink
	cfg      config.AcquisitionConfig
	limits   config.StageConfig
	log      *logging.Logger

	mu      sync.Mutex
	draft   Draft
	current *Parameters

	// abort is the run's shared cancellation flag; afAbort and afRunning
	// cover the standalone autofocus sweep.
	abort     atomic.Bool
	afAbort   atomic.Bool
	afRunning atomic.Bool
}

// NewController wires a controller over the given collaborators. Command
// handlers are attached separately via RegisterHandlers.
func NewController(b *bus.Bus, a *actor.Actor, rig *hardware.Rig, registry ChannelResolver, mode ModeTracker, sink Sink, cfg config.AcquisitionConfig, limits config.StageConfig, log *logging.Logger) *Controller {
	c := &Controller{
		machine:  fsm.New("acquisition", StateIdle, transitions()),
		b:        b,
		a:        a,
		rig:      rig,
		registry: registry,
		mode:     mode,
		sink:     sink,
		cfg:      cfg,
		limits:   limits,
		log:      log.With("component", "acquisition"),
		draft:    Draft{NZ: 1, NT: 1},
	}
	c.machine.SetLogger(c.log)

	c.machine.OnTransition(func(from, to State) {
		if to == StateIdle {
			c.mu.Lock()
			c.current = nil
			c.mu.Unlock()
		}
		c.b.Publish(bus.AcquisitionControllerStateChanged{
			OldState: from.String(),
			NewState: to.String(),
		})
	})

	c.machine.RegisterValidCommands(StateIdle,
		bus.StartAcquisitionCommand{}.Kind(),
		bus.SetAcquisitionParametersCommand{}.Kind(),
		bus.RunAutofocusCommand{}.Kind(),
		bus.AbortAutofocusCommand{}.Kind(),
	)
	c.machine.RegisterValidCommands(StateStarting, bus.StopAcquisitionCommand{}.Kind())
	c.machine.RegisterValidCommands(StateAcquiring, bus.StopAcquisitionCommand{}.Kind())
	c.machine.RegisterValidCommands(StateStopping)

	return c
}

// RegisterHandlers subscribes the controller's commands on the actor.
// Commands not valid in the current state are logged and dropped; the
// direct methods below return errors for API callers instead.
func (c *Controller) RegisterHandlers() {
	actor.Handle(c.a, func(cmd bus.StartAcquisitionCommand) error {
		if !c.commandValid(cmd) {
			return nil
		}
		return c.Start(cmd.ExperimentID, cmd.AcquireCurrentFOV)
	})
	actor.Handle(c.a, func(cmd bus.StopAcquisitionCommand) error {
		if !c.commandValid(cmd) {
			return nil
		}
		return c.RequestAbort()
	})
	actor.Handle(c.a, func(cmd bus.SetAcquisitionParametersCommand) error {
		if !c.commandValid(cmd) {
			return nil
		}
		return c.ApplyParameters(cmd)
	})
	actor.Handle(c.a, func(cmd bus.RunAutofocusCommand) error {
		if !c.commandValid(cmd) {
			return nil
		}
		return c.StartAutofocus()
	})
	actor.Handle(c.a, func(bus.AbortAutofocusCommand) error {
		c.AbortAutofocus()
		return nil
	})
}

func (c *Controller) commandValid(cmd bus.Event) bool {
	if c.machine.CommandValid(cmd.Kind()) {
		return true
	}
	c.log.Warn("command not valid in current state",
		"command", cmd.Kind(),
		"state", c.machine.Current().String())
	return false
}

// Start freezes the draft into a Parameters snapshot, validates it, and
// launches the run's worker. The controller must be idle. An empty
// experiment id gets a generated one.
func (c *Controller) Start(experimentID string, acquireCurrentFOV bool) error {
	if err := c.machine.RequireState("start acquisition", StateIdle); err != nil {
		return err
	}
	if c.afRunning.Load() {
		return ErrAutofocusBusy
	}

	if experimentID == "" {
		experimentID = uuid.New().String()
	}
	params, err := c.buildParameters(experimentID, acquireCurrentFOV)
	if err != nil {
		return err
	}

	if err := c.machine.TransitionTo(StateStarting); err != nil {
		return err
	}

	c.abort.Store(false)
	c.mu.Lock()
	c.current = params
	c.mu.Unlock()

	c.b.Publish(bus.AcquisitionStateChanged{ExperimentID: params.ExperimentID, InProgress: true})
	c.log.Info("acquisition starting",
		"experiment_id", params.ExperimentID,
		"regions", len(params.Regions),
		"leaf_count", params.Plan().LeafCount())

	w := newWorker(params, c.rig, c.sink, c.b, c.machine, &c.abort, c.cfg.SinkRetry, c.log)
	c.a.SubmitWork(w.run)
	return nil
}

// buildParameters resolves the draft's channel names under the current
// objective and assembles the validated run snapshot.
func (c *Controller) buildParameters(experimentID string, acquireCurrentFOV bool) (*Parameters, error) {
	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()

	objective := c.mode.Objective()
	chans := make([]channels.Config, 0, len(draft.ChannelNames))
	for _, name := range draft.ChannelNames {
		cfg, err := c.registry.Resolve(context.Background(), name, objective)
		if err != nil {
			if errors.Is(err, channels.ErrNotFound) {
				return nil, fmt.Errorf("%w: channel %q not found for objective %q", ErrInvalidParameters, name, objective)
			}
			return nil, fmt.Errorf("resolving channel %q: %w", name, err)
		}
		chans = append(chans, *cfg)
	}

	regions := draft.Regions
	if acquireCurrentFOV {
		x, y, z := c.rig.Stage.Position()
		regions = []scan.Region{scan.Single("current", "current position", x, y, z)}
	}

	trigger := hardware.TriggerSoftware
	if draft.TriggerHardware {
		trigger = hardware.TriggerHardware
	}

	params := &Parameters{
		ExperimentID:  experimentID,
		OutputRoot:    c.cfg.OutputRoot,
		Channels:      chans,
		Regions:       regions,
		NZ:            draft.NZ,
		DeltaZUm:      draft.DeltaZUm,
		NT:            draft.NT,
		TimeIntervalS: draft.TimeIntervalS,
		Autofocus: AutofocusPolicy{
			Enabled:       draft.UseAutofocus,
			EveryNFOVs:    c.cfg.Autofocus.EveryNFOVs,
			NPlanes:       c.cfg.Autofocus.NPlanes,
			DeltaZUm:      c.cfg.Autofocus.DeltaZUm,
			StopThreshold: c.cfg.Autofocus.StopThreshold,
		},
		UseReflectionAF: draft.UseReflectionAF,
		UsePiezo:        draft.UsePiezo,
		UseFluidics:     draft.UseFluidics,
		TriggerMode:     trigger,
	}
	if err := params.Validate(c.limits); err != nil {
		return nil, err
	}
	return params.Clone(), nil
}

// RequestAbort raises the run's shared cancellation flag. The worker
// honors it at the next leaf boundary, so abort latency is bounded by one
// hardware step.
func (c *Controller) RequestAbort() error {
	if err := c.machine.RequireState("stop acquisition", StateStarting, StateAcquiring); err != nil {
		return err
	}
	c.abort.Store(true)
	c.log.Info("acquisition abort requested")
	return nil
}

// ApplyParameters merges the command's set fields into the draft. Nil
// fields stay unchanged. Only allowed while idle, so a running snapshot is
// never edited.
func (c *Controller) ApplyParameters(cmd bus.SetAcquisitionParametersCommand) error {
	if err := c.machine.RequireState("set acquisition parameters", StateIdle); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d := &c.draft
	if cmd.NZ != nil {
		d.NZ = *cmd.NZ
	}
	if cmd.NT != nil {
		d.NT = *cmd.NT
	}
	if cmd.DeltaZUm != nil {
		d.DeltaZUm = *cmd.DeltaZUm
	}
	if cmd.TimeIntervalS != nil {
		d.TimeIntervalS = *cmd.TimeIntervalS
	}
	if cmd.Channels != nil {
		d.ChannelNames = append([]string(nil), cmd.Channels...)
	}
	if cmd.UseAutofocus != nil {
		d.UseAutofocus = *cmd.UseAutofocus
	}
	if cmd.UseReflectionAF != nil {
		d.UseReflectionAF = *cmd.UseReflectionAF
	}
	if cmd.UsePiezo != nil {
		d.UsePiezo = *cmd.UsePiezo
	}
	if cmd.UseFluidics != nil {
		d.UseFluidics = *cmd.UseFluidics
	}
	if cmd.TriggerHardware != nil {
		d.TriggerHardware = *cmd.TriggerHardware
	}
	return nil
}

// SetRegions replaces the draft's scan regions. Only allowed while idle.
func (c *Controller) SetRegions(regions []scan.Region) error {
	if err := c.machine.RequireState("set regions", StateIdle); err != nil {
		return err
	}

	cp := make([]scan.Region, len(regions))
	for i, r := range regions {
		cp[i] = r
		cp[i].FOVs = append([]scan.FOV(nil), r.FOVs...)
	}

	c.mu.Lock()
	c.draft.Regions = cp
	c.mu.Unlock()
	return nil
}

// StartAutofocus launches a standalone contrast sweep at the current
// position using the active channel configuration's optics. The sweep runs
// on the worker pool and reports through AutofocusCompleted.
func (c *Controller) StartAutofocus() error {
	if err := c.machine.RequireState("run autofocus", StateIdle); err != nil {
		return err
	}
	active := c.mode.Active()
	if active == nil {
		return fmt.Errorf("run autofocus: no active channel configuration")
	}
	if !c.afRunning.CompareAndSwap(false, true) {
		return ErrAutofocusBusy
	}
	c.afAbort.Store(false)

	pol := AutofocusPolicy{
		Enabled:       true,
		EveryNFOVs:    1,
		NPlanes:       c.cfg.Autofocus.NPlanes,
		DeltaZUm:      c.cfg.Autofocus.DeltaZUm,
		StopThreshold: c.cfg.Autofocus.StopThreshold,
	}
	trigger := c.rig.Camera.TriggerMode()

	c.a.SubmitWork(func() error {
		defer c.afRunning.Store(false)
		c.runStandaloneAF(active, pol, trigger)
		return nil
	})
	return nil
}

func (c *Controller) runStandaloneAF(ch *channels.Config, pol AutofocusPolicy, trigger hardware.TriggerMode) {
	ctx := context.Background()

	if err := c.rig.Camera.StartStreaming(); err != nil {
		c.b.Publish(bus.AutofocusCompleted{Error: err.Error()})
		return
	}

	res, err := runContrastAF(ctx, c.rig, ch.IlluminationSource, ch.IlluminationIntensity,
		pol, trigger, &c.afAbort, c.log)

	if stopErr := c.rig.Camera.StopStreaming(); stopErr != nil {
		c.log.Error("stopping streaming after autofocus", "error", stopErr)
	}

	done := bus.AutofocusCompleted{
		Success:     err == nil && !res.Aborted,
		Aborted:     res.Aborted,
		BestPlane:   res.BestPlane,
		BestMeasure: res.BestMeasure,
	}
	if err != nil {
		done.Error = err.Error()
	}
	c.b.Publish(done)
	c.log.Info("standalone autofocus finished",
		"success", done.Success,
		"best_plane", done.BestPlane,
		"aborted", done.Aborted)
}

// AbortAutofocus raises the sweep cancellation flag. Harmless when no
// sweep is running.
func (c *Controller) AbortAutofocus() {
	c.afAbort.Store(true)
}

// State returns the controller's lifecycle state.
func (c *Controller) State() State { return c.machine.Current() }

// Running reports whether a run is in flight.
func (c *Controller) Running() bool { return !c.machine.In(StateIdle) }

// Current returns a copy of the in-flight run's snapshot, or nil while
// idle.
func (c *Controller) Current() *Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.Clone()
}

// DraftSettings returns a copy of the staged draft.
func (c *Controller) DraftSettings() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.draft
	d.ChannelNames = append([]string(nil), c.draft.ChannelNames...)
	d.Regions = make([]scan.Region, len(c.draft.Regions))
	for i, r := range c.draft.Regions {
		d.Regions[i] = r
		d.Regions[i].FOVs = append([]scan.FOV(nil), r.FOVs...)
	}
	return d
}
