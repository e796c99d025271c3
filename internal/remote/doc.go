// Package remote mirrors the in-process event bus onto MQTT.
//
// The bridge is the instrument's LAN control surface. Lab clients publish
// command envelopes and receive every notification the core emits, without
// linking against the core or holding an HTTP connection open.
//
// # Architecture
//
// The bridge translates between two buses:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Lab clients   │   MQTT   │  remote.Bridge  │   in-process
//	│ (GUI, scripts)  │◄────────►│   (this pkg)    │◄────────────► bus.Bus
//	└─────────────────┘          └─────────────────┘
//
// # Topics
//
// Inbound commands arrive on scopecore/command/{kind}, where {kind} is the
// snake_case name of a bus command type, for example:
//
//	scopecore/command/start_acquisition   {"experiment_id":"exp-1"}
//	scopecore/command/move_stage_to       {"x":12.5,"y":30.0}
//	scopecore/command/stop_acquisition    (empty payload allowed)
//
// Outbound notifications are published on scopecore/event/{kind} with the
// event's fields as the JSON payload. The topic carries the kind, so
// payloads are the bare event fields with no wrapping envelope.
//
// The retained online/offline status on scopecore/system/status is owned by
// the MQTT client itself (connect handler and last-will), not by this
// package.
//
// # Command handling
//
// A decoded command is published on the bus exactly as if an HTTP handler
// had issued it; the actor router then queues it at the priority declared
// on its type. Malformed payloads and unknown kinds are logged and dropped.
// The bridge never replies on MQTT directly: results surface as the
// notifications the command's execution publishes.
//
// # Usage
//
//	bridge, err := remote.New(remote.Options{
//	    Broker: mqttClient,
//	    Bus:    eventBus,
//	    Logger: logger,
//	    QoS:    1,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
package remote
