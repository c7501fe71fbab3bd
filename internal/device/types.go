package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

// Device is one row of the local device mirror: a single Smarteefi output
// (switch, fan, light, or cover) as the bridge last saw it.
//
// ID is the vendor identifier in serial:module:smap form. Serial and Smap
// are denormalised from it so push-status datagrams, which carry only the
// serial and switch map, can be matched without re-parsing.
type Device struct {
	// ID is the vendor device identifier (serial:module:smap).
	ID string `json:"id"`

	// Serial is the controller serial number, lowercased.
	Serial string `json:"serial"`

	// Smap is the switch map bitmask selecting the output on the controller.
	Smap uint32 `json:"smap"`

	// ObjectID is the MQTT object identifier used in topics and discovery.
	ObjectID string `json:"object_id"`

	// Name is the display name from the Smarteefi app.
	Name string `json:"name"`

	// Type is the entity kind: switch, fan, light, or cover.
	Type smarteefi.DeviceType `json:"type"`

	// CloudID is the vendor cloud identifier, opaque to the bridge.
	CloudID string `json:"cloud_id"`

	// Status is the last known raw status bitmask.
	Status uint32 `json:"status"`

	// Available reports whether the device is currently reachable.
	Available bool `json:"available"`

	// LastSeen is when the bridge last received a status for this device.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromCloud builds a mirror Device from a cloud enumeration entry.
//
// Parameters:
//   - cd: device as returned by the cloud device list
//
// Returns:
//   - *Device: mirror row with identity fields populated
//   - error: ErrInvalidDevice if the vendor ID or type is malformed
func FromCloud(cd smarteefi.Device) (*Device, error) {
	id, err := cd.ParsedID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
	}
	if !cd.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDevice, cd.Type)
	}

	return &Device{
		ID:        cd.ID,
		Serial:    strings.ToLower(id.Serial),
		Smap:      id.Smap,
		ObjectID:  cd.ObjectID(),
		Name:      cd.Name,
		Type:      cd.Type,
		CloudID:   cd.CloudID,
		Available: true,
	}, nil
}

// MatchKey returns the serial:smap key used to route push-status datagrams,
// which do not carry the module segment of the full ID.
func (d *Device) MatchKey() string {
	return fmt.Sprintf("%s:%d", d.Serial, d.Smap)
}

// Validate checks that the device has the fields persistence requires.
func (d *Device) Validate() error {
	if d.ID == "" || d.Serial == "" || d.ObjectID == "" || d.Name == "" {
		return fmt.Errorf("%w: missing required field", ErrInvalidDevice)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDevice, d.Type)
	}
	return nil
}

// Clone returns a copy of the device that callers can modify without
// affecting the registry cache.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.LastSeen != nil {
		t := *d.LastSeen
		cp.LastSeen = &t
	}
	return &cp
}
