package smarteefi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// API endpoint paths under the configured base URL.
const (
	pathValidateToken = "/user/validatehatoken"
	pathDevices       = "/user/devices"
	pathGetStatus     = "/user/getdevicestatus"
	pathSetStatus     = "/user/setdevicestatus"
)

// Command verbs accepted by the cloud.
const (
	cmdSetStatus    = "set-status"
	cmdSetSpeed     = "set-speed"
	cmdSetRGBColor  = "set-rgb-color"
	cmdSetIntensity = "set-intensity"
)

// resultSuccess is the result value the cloud returns on success.
const resultSuccess = "success"

// maxResponseSize caps response bodies read from the cloud.
const maxResponseSize = 4 << 20 // 4 MB

// Client talks to the Smarteefi cloud's Home Assistant API surface.
//
// All requests are JSON POSTs authenticated with the per-installation API
// token generated in the Smarteefi app.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a cloud client.
//
// Parameters:
//   - baseURL: API root, e.g. "https://www.smarteefi.com/api/homeassistant_v1"
//   - token: Per-installation API token
//   - timeout: Per-request timeout
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// userDeviceRequest is the token-only request envelope.
type userDeviceRequest struct {
	UserDevice struct {
		HAToken string `json:"hatoken"`
	} `json:"UserDevice"`
}

// deviceStatusRequest is the command request envelope.
type deviceStatusRequest struct {
	DeviceStatus struct {
		HAToken string `json:"hatoken"`
		DevID   string `json:"devid"`
		CloudID string `json:"cloudid"`
		Command string `json:"command"`
		Value   string `json:"value"`
		// Duration carries the cover movement delta in percent; zero for
		// full open/close and for every other entity kind.
		Duration int `json:"duration"`
	} `json:"DeviceStatus"`
}

// DeviceStatus is one device's raw status word as reported by the cloud or
// by a local push datagram.
type DeviceStatus struct {
	Serial string `json:"serial"`
	Smap   uint32 `json:"smap"`
	Status uint32 `json:"statusmap"`
}

// MatchKey returns the serial:smap key used to route the status to entities.
// The serial is lowercased to match DeviceID.MatchKey.
func (s DeviceStatus) MatchKey() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(s.Serial), s.Smap)
}

// apiResponse is the common response envelope.
type apiResponse struct {
	Result   string         `json:"result"`
	Message  string         `json:"message,omitempty"`
	Devices  []Device       `json:"devices,omitempty"`
	Statuses []DeviceStatus `json:"statuses,omitempty"`
}

// ValidateToken checks the API token against the cloud.
//
// Returns:
//   - nil if the token is accepted
//   - ErrAuthFailed if the cloud rejects it
//   - ErrRequestFailed for network/server problems (token state unknown)
func (c *Client) ValidateToken(ctx context.Context) error {
	_, err := c.postToken(ctx, pathValidateToken)
	return err
}

// Devices enumerates all devices bound to the API token.
//
// Devices with types the bridge does not support are returned as-is; the
// caller filters them. Returns ErrAuthFailed if the token was rejected.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	resp, err := c.postToken(ctx, pathDevices)
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// Statuses fetches the current raw status word for every device bound to
// the token. Used by the poll loop to diff state between pushes.
func (c *Client) Statuses(ctx context.Context) ([]DeviceStatus, error) {
	resp, err := c.postToken(ctx, pathGetStatus)
	if err != nil {
		return nil, err
	}
	return resp.Statuses, nil
}

// SetSwitch turns a switch (or light, or cover relay) fully on or off.
func (c *Client) SetSwitch(ctx context.Context, d Device, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	return c.sendCommand(ctx, d, cmdSetStatus, value, 0)
}

// SetFanSpeed sets a fan to a discrete speed from 1 to 4.
// Use SetSwitch(ctx, d, false) to turn the fan off.
func (c *Client) SetFanSpeed(ctx context.Context, d Device, speed int) error {
	if speed < 1 || speed > MaxFanSpeed {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, speed)
	}
	return c.sendCommand(ctx, d, cmdSetSpeed, strconv.Itoa(speed), 0)
}

// SetRGBColor sets a light's colour.
func (c *Client) SetRGBColor(ctx context.Context, d Device, r, g, b uint8) error {
	return c.sendCommand(ctx, d, cmdSetRGBColor, RGBToHex(r, g, b), 0)
}

// SetIntensity sets a light's intensity on the vendor's 0-100 scale.
// Intensity 0 is rejected; turn the light off with SetSwitch instead.
func (c *Client) SetIntensity(ctx context.Context, d Device, intensity int) error {
	if intensity < 1 || intensity > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidIntensity, intensity)
	}
	return c.sendCommand(ctx, d, cmdSetIntensity, strconv.Itoa(intensity), 0)
}

// MoveCover moves a cover.
//
// The cloud protocol expresses movement as a direction plus a percentage
// delta: opening=true with delta 0 drives fully open, opening=false with
// delta 0 drives fully closed, and a non-zero delta moves by that many
// percentage points in the given direction.
func (c *Client) MoveCover(ctx context.Context, d Device, opening bool, delta int) error {
	value := "0"
	if opening {
		value = "1"
	}
	if delta < 0 {
		delta = -delta
	}
	return c.sendCommand(ctx, d, cmdSetStatus, value, delta)
}

// postToken POSTs the token-only envelope to a path and parses the response.
func (c *Client) postToken(ctx context.Context, path string) (*apiResponse, error) {
	var req userDeviceRequest
	req.UserDevice.HAToken = c.token
	return c.do(ctx, path, req)
}

// sendCommand POSTs a command envelope for one device.
func (c *Client) sendCommand(ctx context.Context, d Device, command, value string, duration int) error {
	var req deviceStatusRequest
	req.DeviceStatus.HAToken = c.token
	req.DeviceStatus.DevID = d.ID
	req.DeviceStatus.CloudID = d.CloudID
	req.DeviceStatus.Command = command
	req.DeviceStatus.Value = value
	req.DeviceStatus.Duration = duration

	_, err := c.do(ctx, pathSetStatus, req)
	return err
}

// do executes one JSON POST and maps failures onto the package's sentinel
// errors. HTTP 401/403 and an explicit non-success result both map to
// ErrAuthFailed; transport and server errors map to ErrRequestFailed.
func (c *Client) do(ctx context.Context, path string, body any) (*apiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}

	if parsed.Result != resultSuccess {
		// The cloud reports a failed result for a bad token without a 401,
		// so a non-success result on a token-authenticated call means the
		// token is no longer valid.
		return nil, fmt.Errorf("%w: result %q %s", ErrAuthFailed, parsed.Result, parsed.Message)
	}

	return &parsed, nil
}
