package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smarteefi-community/smarteefi-bridge/internal/bridge/hass"
	"github.com/smarteefi-community/smarteefi-bridge/internal/device"
	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

// handleListDevices returns all mirrored devices, with optional query filters.
//
// Query parameters:
//   - type: filter by entity kind (switch, fan, light, cover)
//   - serial: filter by controller serial (case-insensitive)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List()

	if typ := r.URL.Query().Get("type"); typ != "" {
		devices = filterDevices(devices, func(d device.Device) bool {
			return string(d.Type) == typ
		})
	}
	if serial := r.URL.Query().Get("serial"); serial != "" {
		want := strings.ToLower(serial)
		devices = filterDevices(devices, func(d device.Device) bool {
			return d.Serial == want
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by its object ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// deviceStateResponse is the decoded entity state plus availability, as the
// bridge would publish it over MQTT.
type deviceStateResponse struct {
	ObjectID  string          `json:"object_id"`
	State     json.RawMessage `json:"state"`
	Available bool            `json:"available"`
	LastSeen  *time.Time      `json:"last_seen,omitempty"`
}

// handleGetDeviceState returns the last known state of one entity, decoded
// from the mirrored status word.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	state, err := hass.StateJSON(*dev)
	if err != nil {
		s.logger.Error("failed to decode device state", "object_id", dev.ObjectID, "error", err)
		writeInternalError(w, "failed to decode device state")
		return
	}

	writeJSON(w, http.StatusOK, deviceStateResponse{
		ObjectID:  dev.ObjectID,
		State:     state,
		Available: dev.Available,
		LastSeen:  dev.LastSeen,
	})
}

// CommandRequest is the body of POST /devices/{objectID}/command.
//
// Attribute selects the command topic variant: empty for the primary on/off
// (or open/close) command, or one of percentage, brightness, rgb, position.
// Payload is exactly what the entity would receive over MQTT, e.g. "ON",
// "75", or "255,128,0".
type CommandRequest struct {
	Attribute string `json:"attribute"`
	Payload   string `json:"payload"`
}

// handleCommand executes a single entity command through the bridge,
// bypassing MQTT. Intended for diagnostics and local automation scripts.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Payload == "" {
		writeBadRequest(w, "payload is required")
		return
	}

	if err := s.bridge.Command(r.Context(), dev.ObjectID, req.Attribute, req.Payload); err != nil {
		switch {
		case errors.Is(err, smarteefi.ErrAuthFailed):
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, "cloud rejected the API token")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, ErrCodeUpstream, "cloud request timed out")
		default:
			writeBadRequest(w, "command failed: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "object_id": dev.ObjectID})
}

// handleRefresh re-runs cloud discovery: enumerate devices, diff against the
// mirror, and publish or retract Home Assistant entities accordingly.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Refresh(r.Context()); err != nil {
		s.logger.Error("refresh via API failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "refresh failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "devices": s.registry.Count()})
}

// lookupDevice resolves the {objectID} URL parameter, writing a 404 when the
// entity is unknown.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	objectID := chi.URLParam(r, "objectID")

	dev, err := s.registry.GetByObjectID(r.Context(), objectID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		s.logger.Error("failed to get device", "object_id", objectID, "error", err)
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}

// filterDevices returns the devices matching the predicate.
func filterDevices(devices []device.Device, keep func(device.Device) bool) []device.Device {
	filtered := make([]device.Device, 0, len(devices))
	for _, d := range devices {
		if keep(d) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
