package hass

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smarteefi-community/smarteefi-bridge/internal/device"
	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

// Command and state payload constants shared with the discovery configs.
const (
	payloadOn    = "ON"
	payloadOff   = "OFF"
	payloadOpen  = "OPEN"
	payloadClose = "CLOSE"
	stateOpen    = "open"
	stateClosed  = "closed"
)

// entityState is the bridge's view of one entity, published as retained JSON
// on the entity's state topic. Fields irrelevant to the entity kind are
// omitted from the wire payload.
type entityState struct {
	// State is ON/OFF for switches, fans, and lights; open/closed for covers.
	State string `json:"state"`

	// Percentage is the fan speed as 0-100 (quantised to quarters).
	Percentage *int `json:"percentage,omitempty"`

	// Brightness is the light brightness 0-255.
	Brightness *uint8 `json:"brightness,omitempty"`

	// RGB is the light colour as [r, g, b].
	RGB *[3]uint8 `json:"rgb,omitempty"`

	// Position is the assumed cover position 0-100.
	Position *int `json:"position,omitempty"`
}

func (s entityState) encode() ([]byte, error) {
	return json.Marshal(s)
}

// StateJSON renders a mirrored device's last known status as the same JSON
// document the bridge publishes on the entity's state topic. It exists for
// local callers such as the REST API.
func StateJSON(d device.Device) ([]byte, error) {
	state, err := decodeStatus(d.Type, d.Smap, d.Status)
	if err != nil {
		return nil, err
	}
	return state.encode()
}

// decodeStatus translates a raw vendor status word into an entity state.
//
// The cover position is not carried in the status word; open reports 100 and
// closed reports 0, matching what the controller can actually confirm.
func decodeStatus(typ smarteefi.DeviceType, smap, status uint32) (entityState, error) {
	switch typ {
	case smarteefi.TypeSwitch:
		return entityState{State: onOff(smarteefi.SwitchOn(smap, status))}, nil

	case smarteefi.TypeFan:
		speed := smarteefi.FanSpeed(status)
		pct := smarteefi.FanSpeedToPercentage(speed)
		return entityState{State: onOff(speed > 0), Percentage: &pct}, nil

	case smarteefi.TypeLight:
		r, g, b := smarteefi.LightColor(status)
		brightness := smarteefi.LightBrightness(status)
		rgb := [3]uint8{r, g, b}
		return entityState{
			State:      onOff(status != 0),
			Brightness: &brightness,
			RGB:        &rgb,
		}, nil

	case smarteefi.TypeCover:
		open := smarteefi.CoverOpen(smap, status)
		pos := 0
		if open {
			pos = 100
		}
		state := stateClosed
		if open {
			state = stateOpen
		}
		return entityState{State: state, Position: &pos}, nil

	default:
		return entityState{}, fmt.Errorf("no status decoder for type %q", typ)
	}
}

func onOff(on bool) string {
	if on {
		return payloadOn
	}
	return payloadOff
}

// parseOnOff parses an ON/OFF command payload (case-insensitive, as Home
// Assistant preserves whatever casing the discovery config advertised).
func parseOnOff(payload string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case payloadOn:
		return true, nil
	case payloadOff:
		return false, nil
	default:
		return false, fmt.Errorf("invalid on/off payload %q", payload)
	}
}

// parsePercent parses a 0-100 numeric payload (fan percentage, cover
// position, light intensity style values).
func parsePercent(payload string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, fmt.Errorf("invalid percentage payload %q", payload)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("percentage %d out of range", v)
	}
	return v, nil
}

// parseBrightness parses a 0-255 brightness payload.
func parseBrightness(payload string) (uint8, error) {
	v, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, fmt.Errorf("invalid brightness payload %q", payload)
	}
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("brightness %d out of range", v)
	}
	return uint8(v), nil
}

// parseRGB parses an "r,g,b" payload as published by Home Assistant's MQTT
// light in the default schema.
func parseRGB(payload string) (r, g, b uint8, err error) {
	parts := strings.Split(strings.TrimSpace(payload), ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid rgb payload %q", payload)
	}

	var vals [3]uint8
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return 0, 0, 0, fmt.Errorf("invalid rgb component %q", p)
		}
		vals[i] = uint8(v)
	}
	return vals[0], vals[1], vals[2], nil
}
