package api

import (
	"net/http"
	"time"
)

// handleHealth returns the bridge health summary. It is unauthenticated so
// container orchestrators and uptime monitors can probe it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"devices":        s.registry.Count(),
		"mqtt_connected": s.mqtt != nil && s.mqtt.IsConnected(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}
	if s.mqtt != nil {
		body["mqtt_subscriptions"] = s.mqtt.SubscriptionCount()
	}
	if s.db != nil {
		stats := s.db.Stats()
		body["db_open_connections"] = stats.OpenConnections
		body["db_in_use"] = stats.InUse
	}

	writeJSON(w, http.StatusOK, body)
}
