package remote

import (
	"encoding/json"
	"fmt"

	"github.com/calderlab/scopecore/internal/bus"
)

// decodeCommand turns a command kind and JSON payload into the typed bus
// command. Kinds with no parameters accept an empty payload; every other
// kind requires a JSON object matching the command's fields.
func decodeCommand(kind string, payload []byte) (bus.Event, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	switch kind {
	case "start_acquisition":
		return unmarshalCommand[bus.StartAcquisitionCommand](kind, payload)
	case "stop_acquisition":
		return bus.StopAcquisitionCommand{}, nil
	case "set_acquisition_parameters":
		return unmarshalCommand[bus.SetAcquisitionParametersCommand](kind, payload)
	case "run_autofocus":
		return bus.RunAutofocusCommand{}, nil
	case "abort_autofocus":
		return bus.AbortAutofocusCommand{}, nil
	case "set_microscope_mode":
		cmd, err := unmarshalCommand[bus.SetMicroscopeModeCommand](kind, payload)
		if err != nil {
			return nil, err
		}
		if cmd.ConfigurationName == "" {
			return nil, fmt.Errorf("%w: %s: configuration_name is required",
				ErrMalformedPayload, kind)
		}
		return cmd, nil
	case "move_stage_to":
		return unmarshalCommand[bus.MoveStageToCommand](kind, payload)
	case "move_stage_relative":
		return unmarshalCommand[bus.MoveStageRelativeCommand](kind, payload)
	case "home_stage":
		return bus.HomeStageCommand{}, nil
	case "set_illumination":
		return unmarshalCommand[bus.SetIlluminationCommand](kind, payload)
	case "set_filter_position":
		return unmarshalCommand[bus.SetFilterPositionCommand](kind, payload)
	case "set_piezo_position":
		return unmarshalCommand[bus.SetPiezoPositionCommand](kind, payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, kind)
	}
}

// unmarshalCommand decodes payload into a zero value of C. Range checks
// live in the executing services; the bridge only enforces JSON shape.
func unmarshalCommand[C bus.Event](kind string, payload []byte) (C, error) {
	var cmd C
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, kind, err)
	}
	return cmd, nil
}
