package hass

import (
	"encoding/json"
	"testing"

	"github.com/smarteefi-community/smarteefi-bridge/internal/device"
	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name   string
		typ    smarteefi.DeviceType
		smap   uint32
		status uint32
		want   string // expected JSON payload
	}{
		{"switch on", smarteefi.TypeSwitch, 4, 4, `{"state":"ON"}`},
		{"switch off", smarteefi.TypeSwitch, 4, 0, `{"state":"OFF"}`},
		{"switch other output on", smarteefi.TypeSwitch, 4, 8, `{"state":"OFF"}`},
		{"fan off", smarteefi.TypeFan, 16, 0, `{"state":"OFF","percentage":0}`},
		{"fan speed 1", smarteefi.TypeFan, 16, 0x10, `{"state":"ON","percentage":25}`},
		{"fan speed 3", smarteefi.TypeFan, 16, 0x30, `{"state":"ON","percentage":75}`},
		{"fan speed 4", smarteefi.TypeFan, 16, 0x40, `{"state":"ON","percentage":100}`},
		// Non-zero status with no speed bit set: the controller is not
		// driving any winding, so the fan reports off.
		{"fan stray status bits", smarteefi.TypeFan, 16, 0x0F, `{"state":"OFF","percentage":0}`},
		{"light off", smarteefi.TypeLight, 1, 0, `{"state":"OFF","brightness":0,"rgb":[0,0,0]}`},
		{"light red", smarteefi.TypeLight, 1, 0xFF000000, `{"state":"ON","brightness":255,"rgb":[255,0,0]}`},
		{"light mixed", smarteefi.TypeLight, 1, 0x20801000, `{"state":"ON","brightness":128,"rgb":[32,128,16]}`},
		{"cover open", smarteefi.TypeCover, 2, 2, `{"state":"open","position":100}`},
		{"cover closed", smarteefi.TypeCover, 2, 0, `{"state":"closed","position":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := decodeStatus(tt.typ, tt.smap, tt.status)
			if err != nil {
				t.Fatalf("decodeStatus failed: %v", err)
			}
			got, err := state.encode()
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("payload = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeStatusUnknownType(t *testing.T) {
	if _, err := decodeStatus(smarteefi.DeviceType("thermostat"), 1, 0); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestStateJSON(t *testing.T) {
	payload, err := StateJSON(device.Device{
		Type:   smarteefi.TypeFan,
		Smap:   16,
		Status: 0x20,
	})
	if err != nil {
		t.Fatalf("StateJSON failed: %v", err)
	}
	if string(payload) != `{"state":"ON","percentage":50}` {
		t.Errorf("StateJSON = %s", payload)
	}

	if _, err := StateJSON(device.Device{Type: smarteefi.DeviceType("thermostat")}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestEntityStateOmitsIrrelevantFields(t *testing.T) {
	payload, err := entityState{State: payloadOn}.encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(m) != 1 {
		t.Errorf("switch state payload has %d fields, want state only: %s", len(m), payload)
	}
}

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
		wantErr bool
	}{
		{"ON", true, false},
		{"OFF", false, false},
		{"on", true, false},
		{" Off ", false, false},
		{"TOGGLE", false, true},
		{"", false, true},
	}

	for _, tt := range tests {
		got, err := parseOnOff(tt.payload)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseOnOff(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("parseOnOff(%q) = %v, want %v", tt.payload, got, tt.want)
		}
	}
}

func TestParsePercent(t *testing.T) {
	for _, bad := range []string{"-1", "101", "abc", ""} {
		if _, err := parsePercent(bad); err == nil {
			t.Errorf("parsePercent(%q) should fail", bad)
		}
	}
	if got, err := parsePercent(" 42 "); err != nil || got != 42 {
		t.Errorf("parsePercent(42) = %d, %v", got, err)
	}
}

func TestParseBrightness(t *testing.T) {
	for _, bad := range []string{"-1", "256", "x"} {
		if _, err := parseBrightness(bad); err == nil {
			t.Errorf("parseBrightness(%q) should fail", bad)
		}
	}
	if got, err := parseBrightness("255"); err != nil || got != 255 {
		t.Errorf("parseBrightness(255) = %d, %v", got, err)
	}
}

func TestParseRGB(t *testing.T) {
	r, g, b, err := parseRGB("255, 128,16")
	if err != nil {
		t.Fatalf("parseRGB failed: %v", err)
	}
	if r != 255 || g != 128 || b != 16 {
		t.Errorf("parseRGB = %d,%d,%d", r, g, b)
	}

	for _, bad := range []string{"1,2", "1,2,3,4", "256,0,0", "a,b,c", ""} {
		if _, _, _, err := parseRGB(bad); err == nil {
			t.Errorf("parseRGB(%q) should fail", bad)
		}
	}
}
