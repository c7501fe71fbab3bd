package mqtt

import "fmt"

// Default topic prefixes. Both are configurable; Home Assistant installations
// that relocate the discovery prefix set discovery.prefix in config.yaml.
const (
	// DefaultDiscoveryPrefix is the Home Assistant MQTT discovery prefix.
	DefaultDiscoveryPrefix = "homeassistant"

	// DefaultTopicPrefix is the base for all bridge state/command/availability
	// topics.
	DefaultTopicPrefix = "smarteefi"
)

// Topics builds MQTT topic strings for the bridge.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("homeassistant", "smarteefi")
//	stateTopic := topics.State("switch_a1b2c3_1")
//	// Returns: "smarteefi/switch_a1b2c3_1/state"
type Topics struct {
	// DiscoveryPrefix is the Home Assistant discovery prefix.
	DiscoveryPrefix string

	// Prefix is the base for bridge-owned topics.
	Prefix string
}

// NewTopics returns a Topics builder. Empty arguments fall back to the
// defaults.
func NewTopics(discoveryPrefix, prefix string) Topics {
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{DiscoveryPrefix: discoveryPrefix, Prefix: prefix}
}

// =============================================================================
// Home Assistant Discovery Topics
// =============================================================================

// DiscoveryConfig returns the retained discovery config topic for an entity.
// Publishing an empty retained payload here removes the entity from Home
// Assistant.
//
// Example: homeassistant/switch/smarteefi/switch_a1b2c3_1/config
func (t Topics) DiscoveryConfig(component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.DiscoveryPrefix, component, t.Prefix, objectID)
}

// =============================================================================
// Entity Topics
// =============================================================================

// State returns the topic for entity state updates published by the bridge.
//
// Example: smarteefi/switch_a1b2c3_1/state
func (t Topics) State(objectID string) string {
	return fmt.Sprintf("%s/%s/state", t.Prefix, objectID)
}

// Command returns the topic Home Assistant publishes on/off commands to.
//
// Example: smarteefi/switch_a1b2c3_1/set
func (t Topics) Command(objectID string) string {
	return fmt.Sprintf("%s/%s/set", t.Prefix, objectID)
}

// PercentageCommand returns the topic for fan speed percentage commands.
//
// Example: smarteefi/fan_a1b2c3_1/percentage/set
func (t Topics) PercentageCommand(objectID string) string {
	return fmt.Sprintf("%s/%s/percentage/set", t.Prefix, objectID)
}

// PositionCommand returns the topic for cover position commands.
//
// Example: smarteefi/cover_a1b2c3_1/position/set
func (t Topics) PositionCommand(objectID string) string {
	return fmt.Sprintf("%s/%s/position/set", t.Prefix, objectID)
}

// BrightnessCommand returns the topic for light brightness commands.
//
// Example: smarteefi/light_a1b2c3_1/brightness/set
func (t Topics) BrightnessCommand(objectID string) string {
	return fmt.Sprintf("%s/%s/brightness/set", t.Prefix, objectID)
}

// RGBCommand returns the topic for light RGB colour commands.
//
// Example: smarteefi/light_a1b2c3_1/rgb/set
func (t Topics) RGBCommand(objectID string) string {
	return fmt.Sprintf("%s/%s/rgb/set", t.Prefix, objectID)
}

// Availability returns the per-entity availability topic.
//
// Example: smarteefi/switch_a1b2c3_1/availability
func (t Topics) Availability(objectID string) string {
	return fmt.Sprintf("%s/%s/availability", t.Prefix, objectID)
}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeStatus returns the bridge-wide availability topic. This is used as
// the MQTT Last Will topic so Home Assistant marks every entity unavailable
// if the bridge dies.
//
// Example: smarteefi/bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.Prefix)
}

// BridgeHealth returns the topic for periodic bridge health reports.
//
// Example: smarteefi/bridge/health
func (t Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/bridge/health", t.Prefix)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands returns a pattern matching all on/off command topics.
//
// Pattern: smarteefi/+/set
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/+/set", t.Prefix)
}

// AllAttributeCommands returns a pattern matching attribute command topics
// (percentage, position, brightness, rgb).
//
// Pattern: smarteefi/+/+/set
func (t Topics) AllAttributeCommands() string {
	return fmt.Sprintf("%s/+/+/set", t.Prefix)
}

// HomeAssistantStatus returns the Home Assistant birth/will topic. The bridge
// republishes discovery when Home Assistant announces it came online.
//
// Example: homeassistant/status
func (t Topics) HomeAssistantStatus() string {
	return fmt.Sprintf("%s/status", t.DiscoveryPrefix)
}
