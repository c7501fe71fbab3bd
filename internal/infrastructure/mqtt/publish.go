package mqtt

import (
	"fmt"
)

// maxPayloadSize caps publish payloads at 1MB. Discovery configs are the
// largest thing the bridge sends and they are a few hundred bytes; anything
// near this limit is a bug.
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic.
//
// The bridge publishes state, availability and discovery messages retained
// (so Home Assistant sees current state on restart) and health messages
// unretained.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "smarteefi/switch_a1b2c3_1/state")
//   - payload: The message payload (nil clears a retained message)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should keep the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishRetained publishes a retained message at the configured QoS.
//
// This is the path for state, availability and discovery publishes, where
// a subscriber connecting later (a restarted Home Assistant) must still
// receive the current value.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
