// Package mqtt provides MQTT client connectivity for scopecore.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// scopecore uses MQTT as its LAN control surface. Lab clients (acquisition
// GUIs, scripting hosts, facility dashboards) publish command envelopes to
// scopecore/command/{kind}; the core mirrors every bus notification to
// scopecore/event/{kind} and keeps a retained status on
// scopecore/system/status.
//
//	Lab clients ↔ MQTT Broker ↔ scopecore
//
// The remote bridge (internal/remote) owns the command decoding and event
// mirroring; this package only moves bytes.
//
// # Security Considerations
//
//   - TLS is required for deployments beyond a trusted lab LAN (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all inbound commands
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a notification
//	topic := mqtt.Topics{}.Event("acquisition_progress")
//	client.Publish(topic, []byte(`{"progress_percent":50}`), 1, false)
package mqtt
