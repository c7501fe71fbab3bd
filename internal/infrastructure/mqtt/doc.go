// Package mqtt provides MQTT client connectivity for the Smarteefi bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the bridge status topic
//   - Connection health monitoring
//
// # Architecture
//
// The bridge exposes Smarteefi devices to Home Assistant over MQTT using
// HA's discovery convention. The broker (typically Mosquitto) decouples the
// bridge from Home Assistant itself.
//
//	Home Assistant ↔ MQTT Broker ↔ Smarteefi Bridge ↔ Smarteefi Cloud
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Discovery.Prefix, cfg.Discovery.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all entity commands from Home Assistant
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish entity state (retained, so HA restarts see current state)
//	client.PublishRetained(topics.State("switch_a1b2c3_1"), []byte(`{"state":"ON"}`))
package mqtt
