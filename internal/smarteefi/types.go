package smarteefi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DeviceType classifies a Smarteefi output as a Home Assistant entity kind.
type DeviceType string

// Supported device types. The cloud reports these verbatim in the devices
// response; anything else is skipped during enumeration.
const (
	TypeSwitch DeviceType = "switch"
	TypeFan    DeviceType = "fan"
	TypeLight  DeviceType = "light"
	TypeCover  DeviceType = "cover"
)

// Valid reports whether the device type is one the bridge supports.
func (t DeviceType) Valid() bool {
	switch t {
	case TypeSwitch, TypeFan, TypeLight, TypeCover:
		return true
	}
	return false
}

// DiscoveryComponent returns the Home Assistant discovery component name.
// Smarteefi types map one-to-one onto HA components.
func (t DeviceType) DiscoveryComponent() string {
	return string(t)
}

// DeviceID is the parsed form of the vendor's serial:module:smap identifier.
//
// The serial identifies the controller, the module is an internal index the
// vendor carries but the protocol ignores, and the smap (switch map) is a
// bitmask selecting one output on the controller.
type DeviceID struct {
	Serial string
	Module int
	Smap   uint32
}

// ParseDeviceID parses a serial:module:smap identifier.
//
// Returns ErrInvalidDeviceID if the string does not have exactly three
// segments or the numeric segments do not parse.
func ParseDeviceID(s string) (DeviceID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" {
		return DeviceID{}, fmt.Errorf("%w: %q", ErrInvalidDeviceID, s)
	}

	module, err := strconv.Atoi(parts[1])
	if err != nil {
		return DeviceID{}, fmt.Errorf("%w: module %q: %w", ErrInvalidDeviceID, parts[1], err)
	}

	smap, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return DeviceID{}, fmt.Errorf("%w: smap %q: %w", ErrInvalidDeviceID, parts[2], err)
	}

	return DeviceID{Serial: parts[0], Module: module, Smap: uint32(smap)}, nil
}

// String returns the canonical serial:module:smap form.
func (id DeviceID) String() string {
	return fmt.Sprintf("%s:%d:%d", id.Serial, id.Module, id.Smap)
}

// MatchKey returns the serial:smap key used to match push status updates.
// Status datagrams carry serial and smap only, not the module index. The
// serial is lowercased because the cloud and the controllers do not agree
// on casing.
func (id DeviceID) MatchKey() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(id.Serial), id.Smap)
}

// Device is one entry from the cloud's device enumeration.
type Device struct {
	// ID is the vendor identifier in serial:module:smap form.
	ID string `json:"id"`

	// Name is the display name configured in the Smarteefi app.
	Name string `json:"name"`

	// Type is the entity kind (switch, fan, light, cover).
	Type DeviceType `json:"type"`

	// CloudID is an opaque vendor identifier forwarded with commands.
	CloudID string `json:"cloudid"`
}

// ParsedID returns the parsed device identifier.
func (d Device) ParsedID() (DeviceID, error) {
	return ParseDeviceID(d.ID)
}

// ObjectID returns the MQTT object ID for this device, used in topics and
// Home Assistant discovery. Example: "switch_a1b2c3_4".
//
// Colons are not legal in MQTT topic segments, so the ID is flattened to
// type_serial_smap in lower case.
func (d Device) ObjectID() string {
	id, err := d.ParsedID()
	if err != nil {
		// Fall back to a sanitised raw ID so a malformed device is still
		// addressable rather than colliding on an empty string.
		sanitised := strings.NewReplacer(":", "_", "/", "_", "+", "_", "#", "_").Replace(d.ID)
		return fmt.Sprintf("%s_%s", d.Type, strings.ToLower(sanitised))
	}
	return fmt.Sprintf("%s_%s_%d", d.Type, strings.ToLower(id.Serial), id.Smap)
}

// =============================================================================
// Status bitmask codec
// =============================================================================

// Fan speed bits. Speed 3 is encoded as bits 1 and 2 together (0x30).
const (
	fanSpeedBit1 uint32 = 0x10
	fanSpeedBit2 uint32 = 0x20
	fanSpeedBit4 uint32 = 0x40

	// MaxFanSpeed is the number of discrete fan speeds.
	MaxFanSpeed = 4

	// fanSpeedPercentStep is the percentage covered by one speed step.
	fanSpeedPercentStep = 100 / MaxFanSpeed
)

// SwitchOn decodes a switch status word. A switch is on when the status is
// non-zero and shares at least one bit with the switch map.
func SwitchOn(smap, status uint32) bool {
	return status != 0 && smap&status != 0
}

// SwitchStatus encodes the desired switch state as a status word.
func SwitchStatus(smap uint32, on bool) uint32 {
	if on {
		return smap
	}
	return 0
}

// FanSpeed decodes a fan status word into a speed from 0 (off) to 4.
func FanSpeed(status uint32) int {
	if status == 0 {
		return 0
	}

	r1 := status&fanSpeedBit1 != 0
	r2 := status&fanSpeedBit2 != 0
	r3 := status&fanSpeedBit4 != 0

	switch {
	case r3:
		return 4
	case r2 && r1:
		return 3
	case r2:
		return 2
	case r1:
		return 1
	}
	return 0
}

// FanSpeedStatus encodes a fan speed (1-4) as a status word.
// Speed 0 encodes as 0 (off).
func FanSpeedStatus(speed int) uint32 {
	switch speed {
	case 1:
		return fanSpeedBit1
	case 2:
		return fanSpeedBit2
	case 3:
		return fanSpeedBit1 | fanSpeedBit2
	case 4:
		return fanSpeedBit4
	}
	return 0
}

// FanSpeedToPercentage converts a discrete speed (0-4) to a percentage.
func FanSpeedToPercentage(speed int) int {
	if speed <= 0 {
		return 0
	}
	if speed > MaxFanSpeed {
		speed = MaxFanSpeed
	}
	return speed * fanSpeedPercentStep
}

// PercentageToFanSpeed converts a percentage (0-100) to a discrete speed.
// Percentages round up so any non-zero percentage maps to at least speed 1.
func PercentageToFanSpeed(percentage int) int {
	if percentage <= 0 {
		return 0
	}
	if percentage > 100 {
		percentage = 100
	}
	return int(math.Ceil(float64(percentage) / float64(fanSpeedPercentStep)))
}

// LightColor decodes the RGB colour packed into the top three bytes of a
// light status word.
func LightColor(status uint32) (r, g, b uint8) {
	r = uint8((status & 0xFF000000) >> 24)
	g = uint8((status & 0x00FF0000) >> 16)
	b = uint8((status & 0x0000FF00) >> 8)
	return r, g, b
}

// LightBrightness decodes the brightness of a light status word as the
// maximum of its colour channels (0-255).
func LightBrightness(status uint32) uint8 {
	r, g, b := LightColor(status)
	return max(r, g, b)
}

// LightStatus encodes an RGB colour as a light status word.
func LightStatus(r, g, b uint8) uint32 {
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8
}

// CoverOpen decodes a cover status word. A cover reports open when the
// status equals the switch map exactly.
func CoverOpen(smap, status uint32) bool {
	return status == smap
}

// RGBToHex formats a colour as "#RRGGBB" for the set-rgb-color command.
func RGBToHex(r, g, b uint8) string {
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// BrightnessToIntensity converts a 0-255 brightness to the 0-100 intensity
// scale used by the set-intensity command.
func BrightnessToIntensity(brightness uint8) int {
	return int(math.Round(float64(brightness) / 255 * 100))
}

// IntensityToBrightness converts a 0-100 intensity back to 0-255 brightness.
func IntensityToBrightness(intensity int) uint8 {
	if intensity <= 0 {
		return 0
	}
	if intensity > 100 {
		intensity = 100
	}
	return uint8(math.Round(float64(intensity) / 100 * 255))
}
