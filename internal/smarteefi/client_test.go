package smarteefi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testToken = "test-token-123"

// newTestClient returns a client pointed at an httptest server.
func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, testToken, 5*time.Second)
	return client, server
}

// decodeBody decodes a request body into a generic map for assertions.
func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
	return body
}

func TestValidateToken(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/validatehatoken" {
			t.Errorf("path = %q, want /user/validatehatoken", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}

		body := decodeBody(t, r)
		userDevice, _ := body["UserDevice"].(map[string]any)
		if userDevice["hatoken"] != testToken {
			t.Errorf("hatoken = %v, want %q", userDevice["hatoken"], testToken)
		}

		json.NewEncoder(w).Encode(map[string]any{"result": "success"})
	}))
	defer server.Close()

	if err := client.ValidateToken(context.Background()); err != nil {
		t.Errorf("ValidateToken() error = %v", err)
	}
}

func TestValidateToken_Rejected(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": "failure", "message": "invalid token"})
	}))
	defer server.Close()

	err := client.ValidateToken(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("ValidateToken() error = %v, want ErrAuthFailed", err)
	}
}

func TestDevices(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/devices" {
			t.Errorf("path = %q, want /user/devices", r.URL.Path)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"result": "success",
			"devices": []map[string]any{
				{"id": "a1b2c3:1:1", "name": "Hall Light", "type": "switch", "cloudid": "17"},
				{"id": "a1b2c3:1:4", "name": "Ceiling Fan", "type": "fan", "cloudid": "18"},
			},
		})
	}))
	defer server.Close()

	devices, err := client.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("Devices() returned %d devices, want 2", len(devices))
	}

	if devices[0].ID != "a1b2c3:1:1" {
		t.Errorf("devices[0].ID = %q, want %q", devices[0].ID, "a1b2c3:1:1")
	}
	if devices[0].Type != TypeSwitch {
		t.Errorf("devices[0].Type = %q, want switch", devices[0].Type)
	}
	if devices[1].Name != "Ceiling Fan" {
		t.Errorf("devices[1].Name = %q, want %q", devices[1].Name, "Ceiling Fan")
	}
}

func TestDevices_AuthFailed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 401",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "http 403",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "non-success result",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"result": "failure"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(tt.handler)
			defer server.Close()

			_, err := client.Devices(context.Background())
			if !errors.Is(err, ErrAuthFailed) {
				t.Errorf("Devices() error = %v, want ErrAuthFailed", err)
			}
		})
	}
}

func TestDevices_TransientFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := client.Devices(context.Background())
		if !errors.Is(err, ErrRequestFailed) {
			t.Errorf("Devices() error = %v, want ErrRequestFailed", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", testToken, time.Second)

		_, err := client.Devices(context.Background())
		if !errors.Is(err, ErrRequestFailed) {
			t.Errorf("Devices() error = %v, want ErrRequestFailed", err)
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := client.Devices(context.Background())
		if !errors.Is(err, ErrUnexpectedResponse) {
			t.Errorf("Devices() error = %v, want ErrUnexpectedResponse", err)
		}
	})
}

func TestStatuses(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/getdevicestatus" {
			t.Errorf("path = %q, want /user/getdevicestatus", r.URL.Path)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"result": "success",
			"statuses": []map[string]any{
				{"serial": "a1b2c3", "smap": 4, "statusmap": 4},
				{"serial": "a1b2c3", "smap": 1, "statusmap": 0},
			},
		})
	}))
	defer server.Close()

	statuses, err := client.Statuses(context.Background())
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}

	if len(statuses) != 2 {
		t.Fatalf("Statuses() returned %d entries, want 2", len(statuses))
	}
	if statuses[0].MatchKey() != "a1b2c3:4" {
		t.Errorf("statuses[0].MatchKey() = %q, want %q", statuses[0].MatchKey(), "a1b2c3:4")
	}
	if statuses[0].Status != 4 {
		t.Errorf("statuses[0].Status = %d, want 4", statuses[0].Status)
	}
}

// commandCapture records the DeviceStatus envelope of the last command.
type commandCapture struct {
	path     string
	envelope map[string]any
}

func captureCommand(t *testing.T, capture *commandCapture) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		capture.path = r.URL.Path
		body := decodeBody(t, r)
		capture.envelope, _ = body["DeviceStatus"].(map[string]any)
		json.NewEncoder(w).Encode(map[string]any{"result": "success"})
	}
}

func testDevice() Device {
	return Device{ID: "a1b2c3:1:4", Name: "Test", Type: TypeSwitch, CloudID: "17"}
}

func TestSetSwitch(t *testing.T) {
	var capture commandCapture
	client, server := newTestClient(captureCommand(t, &capture))
	defer server.Close()

	if err := client.SetSwitch(context.Background(), testDevice(), true); err != nil {
		t.Fatalf("SetSwitch() error = %v", err)
	}

	if capture.path != "/user/setdevicestatus" {
		t.Errorf("path = %q, want /user/setdevicestatus", capture.path)
	}
	if capture.envelope["command"] != "set-status" {
		t.Errorf("command = %v, want set-status", capture.envelope["command"])
	}
	if capture.envelope["value"] != "1" {
		t.Errorf("value = %v, want %q", capture.envelope["value"], "1")
	}
	if capture.envelope["devid"] != "a1b2c3:1:4" {
		t.Errorf("devid = %v, want a1b2c3:1:4", capture.envelope["devid"])
	}
	if capture.envelope["cloudid"] != "17" {
		t.Errorf("cloudid = %v, want 17", capture.envelope["cloudid"])
	}
	if capture.envelope["hatoken"] != testToken {
		t.Errorf("hatoken = %v, want %q", capture.envelope["hatoken"], testToken)
	}
}

func TestSetFanSpeed(t *testing.T) {
	var capture commandCapture
	client, server := newTestClient(captureCommand(t, &capture))
	defer server.Close()

	if err := client.SetFanSpeed(context.Background(), testDevice(), 3); err != nil {
		t.Fatalf("SetFanSpeed() error = %v", err)
	}

	if capture.envelope["command"] != "set-speed" {
		t.Errorf("command = %v, want set-speed", capture.envelope["command"])
	}
	if capture.envelope["value"] != "3" {
		t.Errorf("value = %v, want %q", capture.envelope["value"], "3")
	}
}

func TestSetFanSpeed_Invalid(t *testing.T) {
	// Validation failures must not hit the network.
	client := NewClient("http://127.0.0.1:1", testToken, time.Second)

	for _, speed := range []int{0, 5, -1} {
		err := client.SetFanSpeed(context.Background(), testDevice(), speed)
		if !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("SetFanSpeed(%d) error = %v, want ErrInvalidSpeed", speed, err)
		}
	}
}

func TestSetRGBColor(t *testing.T) {
	var capture commandCapture
	client, server := newTestClient(captureCommand(t, &capture))
	defer server.Close()

	if err := client.SetRGBColor(context.Background(), testDevice(), 255, 128, 16); err != nil {
		t.Fatalf("SetRGBColor() error = %v", err)
	}

	if capture.envelope["command"] != "set-rgb-color" {
		t.Errorf("command = %v, want set-rgb-color", capture.envelope["command"])
	}
	if capture.envelope["value"] != "#FF8010" {
		t.Errorf("value = %v, want #FF8010", capture.envelope["value"])
	}
}

func TestSetIntensity(t *testing.T) {
	var capture commandCapture
	client, server := newTestClient(captureCommand(t, &capture))
	defer server.Close()

	if err := client.SetIntensity(context.Background(), testDevice(), 60); err != nil {
		t.Fatalf("SetIntensity() error = %v", err)
	}

	if capture.envelope["command"] != "set-intensity" {
		t.Errorf("command = %v, want set-intensity", capture.envelope["command"])
	}
	if capture.envelope["value"] != "60" {
		t.Errorf("value = %v, want %q", capture.envelope["value"], "60")
	}
}

func TestSetIntensity_Invalid(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", testToken, time.Second)

	for _, intensity := range []int{0, -5, 101} {
		err := client.SetIntensity(context.Background(), testDevice(), intensity)
		if !errors.Is(err, ErrInvalidIntensity) {
			t.Errorf("SetIntensity(%d) error = %v, want ErrInvalidIntensity", intensity, err)
		}
	}
}

func TestMoveCover(t *testing.T) {
	tests := []struct {
		name      string
		opening   bool
		delta     int
		wantValue string
		wantDelta float64
	}{
		{name: "fully open", opening: true, delta: 0, wantValue: "1", wantDelta: 0},
		{name: "fully close", opening: false, delta: 0, wantValue: "0", wantDelta: 0},
		{name: "open by 30", opening: true, delta: 30, wantValue: "1", wantDelta: 30},
		{name: "close by 45", opening: false, delta: 45, wantValue: "0", wantDelta: 45},
		{name: "negative delta normalised", opening: false, delta: -20, wantValue: "0", wantDelta: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capture commandCapture
			client, server := newTestClient(captureCommand(t, &capture))
			defer server.Close()

			dev := Device{ID: "a1b2c3:1:8", Name: "Blind", Type: TypeCover, CloudID: "19"}
			if err := client.MoveCover(context.Background(), dev, tt.opening, tt.delta); err != nil {
				t.Fatalf("MoveCover() error = %v", err)
			}

			if capture.envelope["value"] != tt.wantValue {
				t.Errorf("value = %v, want %q", capture.envelope["value"], tt.wantValue)
			}
			if capture.envelope["duration"] != tt.wantDelta {
				t.Errorf("duration = %v, want %v", capture.envelope["duration"], tt.wantDelta)
			}
		})
	}
}

func TestCommand_Timeout(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		json.NewEncoder(w).Encode(map[string]any{"result": "success"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.SetSwitch(ctx, testDevice(), true)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("SetSwitch() error = %v, want ErrRequestFailed", err)
	}
}
