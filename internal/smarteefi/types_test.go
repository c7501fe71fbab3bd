package smarteefi

import (
	"errors"
	"testing"
)

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DeviceID
		wantErr bool
	}{
		{
			name:  "valid id",
			input: "a1b2c3:1:4",
			want:  DeviceID{Serial: "a1b2c3", Module: 1, Smap: 4},
		},
		{
			name:  "large smap",
			input: "ffeedd:2:64",
			want:  DeviceID{Serial: "ffeedd", Module: 2, Smap: 64},
		},
		{
			name:    "missing segment",
			input:   "a1b2c3:1",
			wantErr: true,
		},
		{
			name:    "too many segments",
			input:   "a1b2c3:1:4:9",
			wantErr: true,
		},
		{
			name:    "empty serial",
			input:   ":1:4",
			wantErr: true,
		},
		{
			name:    "non-numeric module",
			input:   "a1b2c3:x:4",
			wantErr: true,
		},
		{
			name:    "non-numeric smap",
			input:   "a1b2c3:1:x",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeviceID(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDeviceID) {
					t.Fatalf("ParseDeviceID(%q) error = %v, want ErrInvalidDeviceID", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDeviceID(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDeviceID(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDeviceID_String_RoundTrip(t *testing.T) {
	id := DeviceID{Serial: "a1b2c3", Module: 1, Smap: 4}

	parsed, err := ParseDeviceID(id.String())
	if err != nil {
		t.Fatalf("ParseDeviceID(%q) error = %v", id.String(), err)
	}
	if parsed != id {
		t.Errorf("round-trip = %+v, want %+v", parsed, id)
	}
}

func TestDeviceID_MatchKey(t *testing.T) {
	id := DeviceID{Serial: "A1B2C3", Module: 7, Smap: 4}
	if got := id.MatchKey(); got != "a1b2c3:4" {
		t.Errorf("MatchKey() = %q, want %q", got, "a1b2c3:4")
	}
}

func TestDeviceType_Valid(t *testing.T) {
	for _, valid := range []DeviceType{TypeSwitch, TypeFan, TypeLight, TypeCover} {
		if !valid.Valid() {
			t.Errorf("Valid(%q) = false, want true", valid)
		}
	}
	if DeviceType("sensor").Valid() {
		t.Error("Valid(sensor) = true, want false")
	}
	if DeviceType("").Valid() {
		t.Error("Valid(empty) = true, want false")
	}
}

func TestDevice_ObjectID(t *testing.T) {
	tests := []struct {
		name   string
		device Device
		want   string
	}{
		{
			name:   "switch",
			device: Device{ID: "A1B2C3:1:4", Type: TypeSwitch},
			want:   "switch_a1b2c3_4",
		},
		{
			name:   "fan",
			device: Device{ID: "ffeedd:2:1", Type: TypeFan},
			want:   "fan_ffeedd_1",
		},
		{
			name:   "malformed id falls back to sanitised raw",
			device: Device{ID: "odd/id", Type: TypeLight},
			want:   "light_odd_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.ObjectID(); got != tt.want {
				t.Errorf("ObjectID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSwitchOn(t *testing.T) {
	tests := []struct {
		name   string
		smap   uint32
		status uint32
		want   bool
	}{
		{name: "on when bit set", smap: 4, status: 4, want: true},
		{name: "off when zero", smap: 4, status: 0, want: false},
		{name: "off when different bit", smap: 4, status: 2, want: false},
		{name: "on when superset", smap: 4, status: 6, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SwitchOn(tt.smap, tt.status); got != tt.want {
				t.Errorf("SwitchOn(%d, %d) = %v, want %v", tt.smap, tt.status, got, tt.want)
			}
		})
	}
}

func TestSwitchStatus(t *testing.T) {
	if got := SwitchStatus(4, true); got != 4 {
		t.Errorf("SwitchStatus(4, true) = %d, want 4", got)
	}
	if got := SwitchStatus(4, false); got != 0 {
		t.Errorf("SwitchStatus(4, false) = %d, want 0", got)
	}
}

func TestFanSpeed(t *testing.T) {
	tests := []struct {
		name   string
		status uint32
		want   int
	}{
		{name: "off", status: 0, want: 0},
		{name: "speed 1", status: 0x10, want: 1},
		{name: "speed 2", status: 0x20, want: 2},
		{name: "speed 3", status: 0x30, want: 3},
		{name: "speed 4", status: 0x40, want: 4},
		{name: "speed 4 wins over lower bits", status: 0x70, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FanSpeed(tt.status); got != tt.want {
				t.Errorf("FanSpeed(%#x) = %d, want %d", tt.status, got, tt.want)
			}
		})
	}
}

func TestFanSpeedStatus_RoundTrip(t *testing.T) {
	for speed := 0; speed <= MaxFanSpeed; speed++ {
		status := FanSpeedStatus(speed)
		if got := FanSpeed(status); got != speed {
			t.Errorf("FanSpeed(FanSpeedStatus(%d)) = %d, want %d", speed, got, speed)
		}
	}
}

func TestFanSpeedPercentageConversion(t *testing.T) {
	tests := []struct {
		percentage string
		pct        int
		speed      int
	}{
		{percentage: "0", pct: 0, speed: 0},
		{percentage: "1", pct: 1, speed: 1},
		{percentage: "25", pct: 25, speed: 1},
		{percentage: "26", pct: 26, speed: 2},
		{percentage: "50", pct: 50, speed: 2},
		{percentage: "75", pct: 75, speed: 3},
		{percentage: "100", pct: 100, speed: 4},
		{percentage: "150 clamps", pct: 150, speed: 4},
	}

	for _, tt := range tests {
		t.Run(tt.percentage, func(t *testing.T) {
			if got := PercentageToFanSpeed(tt.pct); got != tt.speed {
				t.Errorf("PercentageToFanSpeed(%d) = %d, want %d", tt.pct, got, tt.speed)
			}
		})
	}

	if got := FanSpeedToPercentage(3); got != 75 {
		t.Errorf("FanSpeedToPercentage(3) = %d, want 75", got)
	}
	if got := FanSpeedToPercentage(0); got != 0 {
		t.Errorf("FanSpeedToPercentage(0) = %d, want 0", got)
	}
}

func TestLightCodec(t *testing.T) {
	status := LightStatus(0xFF, 0x80, 0x10)

	r, g, b := LightColor(status)
	if r != 0xFF || g != 0x80 || b != 0x10 {
		t.Errorf("LightColor() = (%#x, %#x, %#x), want (0xff, 0x80, 0x10)", r, g, b)
	}

	if got := LightBrightness(status); got != 0xFF {
		t.Errorf("LightBrightness() = %#x, want 0xff", got)
	}

	if got := LightBrightness(0); got != 0 {
		t.Errorf("LightBrightness(0) = %d, want 0", got)
	}
}

func TestCoverOpen(t *testing.T) {
	if !CoverOpen(4, 4) {
		t.Error("CoverOpen(4, 4) = false, want true")
	}
	if CoverOpen(4, 0) {
		t.Error("CoverOpen(4, 0) = true, want false")
	}
	if CoverOpen(4, 6) {
		t.Error("CoverOpen(4, 6) = true, want false")
	}
}

func TestRGBToHex(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    string
	}{
		{r: 255, g: 255, b: 255, want: "#FFFFFF"},
		{r: 0, g: 0, b: 0, want: "#000000"},
		{r: 255, g: 128, b: 16, want: "#FF8010"},
	}

	for _, tt := range tests {
		if got := RGBToHex(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("RGBToHex(%d, %d, %d) = %q, want %q", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestIntensityConversion(t *testing.T) {
	tests := []struct {
		brightness uint8
		intensity  int
	}{
		{brightness: 0, intensity: 0},
		{brightness: 255, intensity: 100},
		{brightness: 128, intensity: 50},
	}

	for _, tt := range tests {
		if got := BrightnessToIntensity(tt.brightness); got != tt.intensity {
			t.Errorf("BrightnessToIntensity(%d) = %d, want %d", tt.brightness, got, tt.intensity)
		}
	}

	if got := IntensityToBrightness(100); got != 255 {
		t.Errorf("IntensityToBrightness(100) = %d, want 255", got)
	}
	if got := IntensityToBrightness(0); got != 0 {
		t.Errorf("IntensityToBrightness(0) = %d, want 0", got)
	}
	if got := IntensityToBrightness(150); got != 255 {
		t.Errorf("IntensityToBrightness(150) = %d, want 255", got)
	}
}
