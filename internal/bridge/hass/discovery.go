package hass

import (
	"encoding/json"
	"fmt"

	"github.com/smarteefi-community/smarteefi-bridge/internal/device"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/mqtt"
	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

// Manufacturer shown in the Home Assistant device registry.
const manufacturer = "Smarteefi"

// availabilityBlock is one entry of an entity's availability list.
type availabilityBlock struct {
	// Topic is an MQTT topic carrying online/offline updates.
	Topic string `json:"topic"`

	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`
}

// deviceBlock groups entities from the same controller under one device in
// the Home Assistant UI.
type deviceBlock struct {
	// Identifiers uniquely identify the controller (its serial number).
	Identifiers []string `json:"identifiers"`

	Name         string `json:"name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

// entityConfig carries the fields shared by every discovery payload.
type entityConfig struct {
	Name     string `json:"name"`
	UniqueID string `json:"unique_id"`
	ObjectID string `json:"object_id"`

	// Availability lists the entity topic and the bridge LWT topic;
	// AvailabilityMode "all" means both must report online.
	Availability     []availabilityBlock `json:"availability"`
	AvailabilityMode string              `json:"availability_mode"`

	Device deviceBlock `json:"device"`

	StateTopic string `json:"state_topic"`
	QOS        int    `json:"qos,omitempty"`
}

// switchConfig is the discovery payload for an MQTT switch.
type switchConfig struct {
	entityConfig

	CommandTopic  string `json:"command_topic"`
	ValueTemplate string `json:"value_template"`
	PayloadOn     string `json:"payload_on"`
	PayloadOff    string `json:"payload_off"`
	StateOn       string `json:"state_on"`
	StateOff      string `json:"state_off"`
}

// fanConfig is the discovery payload for an MQTT fan with percentage speed.
type fanConfig struct {
	entityConfig

	CommandTopic            string `json:"command_topic"`
	StateValueTemplate      string `json:"state_value_template"`
	PayloadOn               string `json:"payload_on"`
	PayloadOff              string `json:"payload_off"`
	PercentageCommandTopic  string `json:"percentage_command_topic"`
	PercentageStateTopic    string `json:"percentage_state_topic"`
	PercentageValueTemplate string `json:"percentage_value_template"`
	SpeedRangeMin           int    `json:"speed_range_min"`
	SpeedRangeMax           int    `json:"speed_range_max"`
}

// lightConfig is the discovery payload for an MQTT light with brightness
// and RGB colour (default schema, separate command topics per attribute).
type lightConfig struct {
	entityConfig

	CommandTopic            string `json:"command_topic"`
	StateValueTemplate      string `json:"state_value_template"`
	PayloadOn               string `json:"payload_on"`
	PayloadOff              string `json:"payload_off"`
	BrightnessCommandTopic  string `json:"brightness_command_topic"`
	BrightnessStateTopic    string `json:"brightness_state_topic"`
	BrightnessValueTemplate string `json:"brightness_value_template"`
	BrightnessScale         int    `json:"brightness_scale"`
	RGBCommandTopic         string `json:"rgb_command_topic"`
	RGBStateTopic           string `json:"rgb_state_topic"`
	RGBValueTemplate        string `json:"rgb_value_template"`
}

// coverConfig is the discovery payload for an MQTT cover with position.
type coverConfig struct {
	entityConfig

	CommandTopic     string `json:"command_topic"`
	ValueTemplate    string `json:"value_template"`
	PayloadOpen      string `json:"payload_open"`
	PayloadClose     string `json:"payload_close"`
	StateOpen        string `json:"state_open"`
	StateClosed      string `json:"state_closed"`
	SetPositionTopic string `json:"set_position_topic"`
	PositionTopic    string `json:"position_topic"`
	PositionTemplate string `json:"position_template"`
}

// discoveryPayload builds the retained discovery config for a device.
//
// Parameters:
//   - d: mirror device to announce
//   - topics: topic layout for the configured prefixes
//   - qos: QoS level advertised to Home Assistant
//
// Returns:
//   - []byte: JSON payload for the discovery config topic
//   - error: if the device type has no discovery mapping
func discoveryPayload(d device.Device, topics mqtt.Topics, qos int) ([]byte, error) {
	base := entityConfig{
		Name:     d.Name,
		UniqueID: fmt.Sprintf("smarteefi_%s", d.ObjectID),
		ObjectID: d.ObjectID,
		Availability: []availabilityBlock{
			{
				Topic:               topics.Availability(d.ObjectID),
				PayloadAvailable:    mqtt.StatusOnline,
				PayloadNotAvailable: mqtt.StatusOffline,
			},
			{
				Topic:               topics.BridgeStatus(),
				PayloadAvailable:    mqtt.StatusOnline,
				PayloadNotAvailable: mqtt.StatusOffline,
			},
		},
		AvailabilityMode: "all",
		Device: deviceBlock{
			Identifiers:  []string{fmt.Sprintf("smarteefi_%s", d.Serial)},
			Name:         fmt.Sprintf("Smarteefi %s", d.Serial),
			Manufacturer: manufacturer,
			Model:        "Wi-Fi controller",
		},
		StateTopic: topics.State(d.ObjectID),
		QOS:        qos,
	}

	state := topics.State(d.ObjectID)

	switch d.Type {
	case smarteefi.TypeSwitch:
		return json.Marshal(switchConfig{
			entityConfig:  base,
			CommandTopic:  topics.Command(d.ObjectID),
			ValueTemplate: "{{ value_json.state }}",
			PayloadOn:     payloadOn,
			PayloadOff:    payloadOff,
			StateOn:       payloadOn,
			StateOff:      payloadOff,
		})

	case smarteefi.TypeFan:
		return json.Marshal(fanConfig{
			entityConfig:            base,
			CommandTopic:            topics.Command(d.ObjectID),
			StateValueTemplate:      "{{ value_json.state }}",
			PayloadOn:               payloadOn,
			PayloadOff:              payloadOff,
			PercentageCommandTopic:  topics.PercentageCommand(d.ObjectID),
			PercentageStateTopic:    state,
			PercentageValueTemplate: "{{ value_json.percentage }}",
			SpeedRangeMin:           1,
			SpeedRangeMax:           100,
		})

	case smarteefi.TypeLight:
		return json.Marshal(lightConfig{
			entityConfig:            base,
			CommandTopic:            topics.Command(d.ObjectID),
			StateValueTemplate:      "{{ value_json.state }}",
			PayloadOn:               payloadOn,
			PayloadOff:              payloadOff,
			BrightnessCommandTopic:  topics.BrightnessCommand(d.ObjectID),
			BrightnessStateTopic:    state,
			BrightnessValueTemplate: "{{ value_json.brightness }}",
			BrightnessScale:         255,
			RGBCommandTopic:         topics.RGBCommand(d.ObjectID),
			RGBStateTopic:           state,
			RGBValueTemplate:        "{{ value_json.rgb | join(',') }}",
		})

	case smarteefi.TypeCover:
		return json.Marshal(coverConfig{
			entityConfig:     base,
			CommandTopic:     topics.Command(d.ObjectID),
			ValueTemplate:    "{{ value_json.state }}",
			PayloadOpen:      payloadOpen,
			PayloadClose:     payloadClose,
			StateOpen:        stateOpen,
			StateClosed:      stateClosed,
			SetPositionTopic: topics.PositionCommand(d.ObjectID),
			PositionTopic:    state,
			PositionTemplate: "{{ value_json.position }}",
		})

	default:
		return nil, fmt.Errorf("no discovery mapping for type %q", d.Type)
	}
}
