package bus

import "time"

// Event is a value record delivered through the Bus. The concrete type is
// the identity used for subscription; two events of the same type always
// reach the same handlers.
//
// Events must be plain immutable values. Handlers receive the same value the
// publisher created, so anything mutable smuggled inside would be shared
// across goroutines.
type Event interface {
	// Kind returns the stable snake_case name of the event, used for MQTT
	// topics, websocket payloads, run history rows and log fields.
	Kind() string
}

// =============================================================================
// Acquisition Commands
// =============================================================================

// StartAcquisitionCommand requests that a multi-dimensional acquisition be
// started with the currently staged parameters.
type StartAcquisitionCommand struct {
	// ExperimentID names the output dataset. Empty means the controller
	// generates one.
	ExperimentID string `json:"experiment_id"`

	// AcquireCurrentFOV restricts the scan to a single region containing
	// only the current stage position.
	AcquireCurrentFOV bool `json:"acquire_current_fov"`
}

// Kind implements Event.
func (StartAcquisitionCommand) Kind() string { return "start_acquisition" }

// StopAcquisitionCommand requests that the running acquisition stop at the
// next cancellation boundary. It is a no-op when nothing is running.
type StopAcquisitionCommand struct{}

// Kind implements Event.
func (StopAcquisitionCommand) Kind() string { return "stop_acquisition" }

// QueuePriority implements Prioritized. Stop must overtake queued work.
func (StopAcquisitionCommand) QueuePriority() Priority { return PriorityStop }

// SetAcquisitionParametersCommand stages parameters for the next
// acquisition. Nil fields are left unchanged, so a client can adjust one
// knob without re-sending the whole set.
type SetAcquisitionParametersCommand struct {
	NZ              *int     `json:"n_z,omitempty"`
	NT              *int     `json:"n_t,omitempty"`
	DeltaZUm        *float64 `json:"delta_z_um,omitempty"`
	TimeIntervalS   *float64 `json:"time_interval_s,omitempty"`
	Channels        []string `json:"channels,omitempty"`
	UseAutofocus    *bool    `json:"use_autofocus,omitempty"`
	UseReflectionAF *bool    `json:"use_reflection_af,omitempty"`
	UsePiezo        *bool    `json:"use_piezo,omitempty"`
	UseFluidics     *bool    `json:"use_fluidics,omitempty"`
	TriggerHardware *bool    `json:"trigger_hardware,omitempty"`
}

// Kind implements Event.
func (SetAcquisitionParametersCommand) Kind() string { return "set_acquisition_parameters" }

// RunAutofocusCommand requests a standalone contrast autofocus sweep at the
// current XY position.
type RunAutofocusCommand struct{}

// Kind implements Event.
func (RunAutofocusCommand) Kind() string { return "run_autofocus" }

// AbortAutofocusCommand cancels a running autofocus sweep. The objective is
// left at the best plane found so far.
type AbortAutofocusCommand struct{}

// Kind implements Event.
func (AbortAutofocusCommand) Kind() string { return "abort_autofocus" }

// QueuePriority implements Prioritized.
func (AbortAutofocusCommand) QueuePriority() Priority { return PriorityStop }

// =============================================================================
// Microscope Commands
// =============================================================================

// SetMicroscopeModeCommand applies a named channel configuration: exposure,
// gain, illumination source and intensity, filter position and focus offset
// in one transition.
type SetMicroscopeModeCommand struct {
	// ConfigurationName is the channel configuration to apply, for example
	// "BF LED matrix full" or "Fluorescence 488 nm Ex".
	ConfigurationName string `json:"configuration_name"`

	// Objective selects the objective-specific variant of the
	// configuration. Empty means the instrument's current objective.
	Objective string `json:"objective,omitempty"`
}

// Kind implements Event.
func (SetMicroscopeModeCommand) Kind() string { return "set_microscope_mode" }

// MoveStageToCommand moves the motorized stage to an absolute position in
// millimetres. Nil axes are left where they are.
type MoveStageToCommand struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

// Kind implements Event.
func (MoveStageToCommand) Kind() string { return "move_stage_to" }

// MoveStageRelativeCommand moves the stage by a delta in millimetres.
type MoveStageRelativeCommand struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
	DZ float64 `json:"dz"`
}

// Kind implements Event.
func (MoveStageRelativeCommand) Kind() string { return "move_stage_relative" }

// HomeStageCommand re-references the stage against its limit switches and
// zeroes the coordinate system.
type HomeStageCommand struct{}

// Kind implements Event.
func (HomeStageCommand) Kind() string { return "home_stage" }

// SetIlluminationCommand configures one illumination source and switches it
// on or off.
type SetIlluminationCommand struct {
	// Source is the illumination channel number, for example a laser line
	// or an LED matrix pattern.
	Source int `json:"source"`

	// Intensity is the output power in percent, 0 to 100.
	Intensity float64 `json:"intensity"`

	// On switches the source on when true, off when false.
	On bool `json:"on"`
}

// Kind implements Event.
func (SetIlluminationCommand) Kind() string { return "set_illumination" }

// SetFilterPositionCommand rotates the emission filter wheel to a numbered
// position.
type SetFilterPositionCommand struct {
	Position int `json:"position"`
}

// Kind implements Event.
func (SetFilterPositionCommand) Kind() string { return "set_filter_position" }

// SetPiezoPositionCommand moves the objective piezo to an absolute
// displacement in micrometres.
type SetPiezoPositionCommand struct {
	PositionUm float64 `json:"position_um"`
}

// Kind implements Event.
func (SetPiezoPositionCommand) Kind() string { return "set_piezo_position" }

// =============================================================================
// Acquisition Notifications
// =============================================================================

// AcquisitionStateChanged reports that an acquisition began or ended.
// InProgress false always follows a terminal AcquisitionWorkerFinished.
type AcquisitionStateChanged struct {
	ExperimentID string `json:"experiment_id"`
	InProgress   bool   `json:"in_progress"`
}

// Kind implements Event.
func (AcquisitionStateChanged) Kind() string { return "acquisition_state_changed" }

// AcquisitionProgress reports scan position while an acquisition runs.
// Exactly one is published per completed region within each time point.
type AcquisitionProgress struct {
	CurrentRegion    int     `json:"current_region"`
	TotalRegions     int     `json:"total_regions"`
	CurrentTimepoint int     `json:"current_timepoint"`
	TotalTimepoints  int     `json:"total_timepoints"`
	ProgressPercent  float64 `json:"progress_percent"`
}

// Kind implements Event.
func (AcquisitionProgress) Kind() string { return "acquisition_progress" }

// AcquisitionWorkerFinished is the single terminal notification of an
// acquisition run. Exactly one is published per started run, whether the run
// completed, was aborted, or failed.
type AcquisitionWorkerFinished struct {
	ExperimentID string `json:"experiment_id"`

	// Success is true only for a full, unaborted, error-free run.
	Success bool `json:"success"`

	// Aborted is true when the run ended because a stop was requested.
	Aborted bool `json:"aborted"`

	// Error carries the failure message when Success is false and the run
	// was not a clean abort.
	Error string `json:"error,omitempty"`
}

// Kind implements Event.
func (AcquisitionWorkerFinished) Kind() string { return "acquisition_worker_finished" }

// AcquisitionControllerStateChanged reports a transition of the acquisition
// state machine (idle, starting, acquiring, stopping).
type AcquisitionControllerStateChanged struct {
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
}

// Kind implements Event.
func (AcquisitionControllerStateChanged) Kind() string {
	return "acquisition_controller_state_changed"
}

// FrameCaptured reports that one frame was handed to the save sink. The
// indices identify the frame's place in the scan so downstream consumers can
// reassemble the dataset without parsing filenames.
type FrameCaptured struct {
	ExperimentID string    `json:"experiment_id"`
	Region       string    `json:"region"`
	FOVIndex     int       `json:"fov_index"`
	ZIndex       int       `json:"z_index"`
	Timepoint    int       `json:"timepoint"`
	Channel      string    `json:"channel"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Z            float64   `json:"z"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Kind implements Event.
func (FrameCaptured) Kind() string { return "frame_captured" }

// AutofocusCompleted reports the outcome of a contrast autofocus sweep.
type AutofocusCompleted struct {
	// Success is true when the sweep ran to completion or stopped early on
	// a confident peak.
	Success bool `json:"success"`

	// Aborted is true when the sweep was cancelled mid-flight.
	Aborted bool `json:"aborted"`

	// BestPlane is the index of the plane the objective was left at.
	BestPlane int `json:"best_plane"`

	// BestMeasure is the focus measure at that plane.
	BestMeasure float64 `json:"best_measure"`

	Error string `json:"error,omitempty"`
}

// Kind implements Event.
func (AutofocusCompleted) Kind() string { return "autofocus_completed" }

// =============================================================================
// Hardware Notifications
// =============================================================================

// StagePositionChanged reports the stage position after a completed move, in
// millimetres.
type StagePositionChanged struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Kind implements Event.
func (StagePositionChanged) Kind() string { return "stage_position_changed" }

// IlluminationChanged reports the state of an illumination source after a
// completed change.
type IlluminationChanged struct {
	Source    int     `json:"source"`
	Intensity float64 `json:"intensity"`
	On        bool    `json:"on"`
}

// Kind implements Event.
func (IlluminationChanged) Kind() string { return "illumination_changed" }

// FilterPositionChanged reports the filter wheel position after a completed
// move.
type FilterPositionChanged struct {
	Position int `json:"position"`
}

// Kind implements Event.
func (FilterPositionChanged) Kind() string { return "filter_position_changed" }

// PiezoPositionChanged reports the piezo displacement after a completed
// move, in micrometres.
type PiezoPositionChanged struct {
	PositionUm float64 `json:"position_um"`
}

// Kind implements Event.
func (PiezoPositionChanged) Kind() string { return "piezo_position_changed" }

// MicroscopeModeChanged reports that a channel configuration was applied.
type MicroscopeModeChanged struct {
	ConfigurationName string `json:"configuration_name"`
	Objective         string `json:"objective"`
}

// Kind implements Event.
func (MicroscopeModeChanged) Kind() string { return "microscope_mode_changed" }
