package remote

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
	"github.com/calderlab/scopecore/internal/infrastructure/mqtt"
)

// Broker is the MQTT surface the bridge needs. *mqtt.Client satisfies it;
// tests substitute a mock so no broker is required.
type Broker interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool
}

// Bridge connects the event bus to an MQTT broker: commands in, events out.
//
// Thread Safety: all methods are safe for concurrent use. Start and Stop
// are expected to be called once each from the composition root.
type Bridge struct {
	broker Broker
	b      *bus.Bus
	log    *logging.Logger
	qos    byte

	mu      sync.Mutex
	subs    []bus.Subscription
	started bool

	stopOnce sync.Once
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Broker is the MQTT client. Required.
	Broker Broker

	// Bus is the in-process event bus. Required.
	Bus *bus.Bus

	// Logger is optional; nil discards.
	Logger *logging.Logger

	// QoS is used for both the command subscription and event publishes.
	QoS byte
}

// New creates a bridge. Nothing is subscribed until Start.
func New(opts Options) (*Bridge, error) {
	if opts.Broker == nil {
		return nil, ErrBrokerRequired
	}
	if opts.Bus == nil {
		return nil, ErrBusRequired
	}

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Bridge{
		broker: opts.Broker,
		b:      opts.Bus,
		log:    log.With("component", "remote"),
		qos:    opts.QoS,
	}, nil
}

// Start subscribes to the command wildcard and begins mirroring bus
// notifications to MQTT.
func (br *Bridge) Start() error {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.started {
		return nil
	}

	commandTopic := mqtt.Topics{}.AllCommands()
	if err := br.broker.Subscribe(commandTopic, br.qos, br.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}

	br.subs = append(br.subs,
		mirror[bus.AcquisitionStateChanged](br),
		mirror[bus.AcquisitionProgress](br),
		mirror[bus.AcquisitionWorkerFinished](br),
		mirror[bus.AcquisitionControllerStateChanged](br),
		mirror[bus.FrameCaptured](br),
		mirror[bus.AutofocusCompleted](br),
		mirror[bus.StagePositionChanged](br),
		mirror[bus.IlluminationChanged](br),
		mirror[bus.FilterPositionChanged](br),
		mirror[bus.PiezoPositionChanged](br),
		mirror[bus.MicroscopeModeChanged](br),
	)
	br.started = true

	br.log.Info("remote bridge started",
		"command_topic", commandTopic,
		"mirrored_events", len(br.subs))
	return nil
}

// Stop detaches the bridge from both buses. Events already queued on the
// bus may still be delivered to other subscribers; none reach MQTT after
// Stop returns.
func (br *Bridge) Stop() {
	br.stopOnce.Do(func() {
		br.mu.Lock()
		subs := br.subs
		br.subs = nil
		started := br.started
		br.started = false
		br.mu.Unlock()

		if !started {
			return
		}

		for _, sub := range subs {
			br.b.Unsubscribe(sub)
		}
		if err := br.broker.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil {
			br.log.Warn("command unsubscribe failed", "error", err)
		}

		br.log.Info("remote bridge stopped")
	})
}

// mirror subscribes the bridge to one notification type and forwards each
// occurrence to MQTT.
func mirror[E bus.Event](br *Bridge) bus.Subscription {
	return bus.On(br.b, func(ev E) error {
		br.publishEvent(ev)
		return nil
	})
}

// publishEvent sends one notification to scopecore/event/{kind}. Events are
// transient: while the broker is away they are dropped, not buffered.
func (br *Bridge) publishEvent(ev bus.Event) {
	if !br.broker.IsConnected() {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		br.log.Error("event marshal failed", "event", ev.Kind(), "error", err)
		return
	}

	topic := mqtt.Topics{}.Event(ev.Kind())
	if err := br.broker.Publish(topic, payload, br.qos, false); err != nil {
		br.log.Warn("event publish failed", "event", ev.Kind(), "error", err)
	}
}

// handleCommand decodes one inbound command message and publishes it on the
// bus. Rejected messages are logged and dropped; remote clients learn of
// outcomes from the event stream, not from per-command replies.
func (br *Bridge) handleCommand(topic string, payload []byte) error {
	kind, ok := mqtt.ParseCommandTopic(topic)
	if !ok {
		br.log.Warn("command on malformed topic", "topic", topic)
		return nil
	}

	cmd, err := decodeCommand(kind, payload)
	if err != nil {
		br.log.Warn("command rejected", "kind", kind, "error", err)
		return nil
	}

	br.log.Debug("remote command accepted", "kind", kind)
	br.b.Publish(cmd)
	return nil
}
