package hass

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus is the coarse bridge condition advertised in health reports.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthMessage is the retained JSON payload published on the bridge
// health topic.
type HealthMessage struct {
	BridgeID      string       `json:"bridge_id"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	DeviceCount   int          `json:"device_count"`
	MQTTConnected bool         `json:"mqtt_connected"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Timestamp     string       `json:"timestamp"`
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID is the bridge identifier for health messages.
	BridgeID string

	// Topic is the MQTT topic health reports are published on.
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher
}

// HealthReporter publishes periodic retained health reports so operators
// (and Home Assistant, via an MQTT sensor if they choose) can watch the
// bridge. A degraded condition set by the bridge (cloud unreachable, token
// rejected) sticks until cleared.
type HealthReporter struct {
	bridgeID  string
	topic     string
	interval  time.Duration
	publisher HealthPublisher
	startTime time.Time

	// Mutable condition, updated by the bridge
	deviceCount    int
	degradedReason string
	mu             sync.RWMutex

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
// Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		topic:     cfg.Topic,
		interval:  interval,
		publisher: cfg.Publisher,
		startTime: time.Now(),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort during shutdown, nothing we can do if it fails
		//nolint:errcheck
		h.publishStatus(HealthStopping, "")
	})
}

// SetDeviceCount updates the managed device count.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.mu.Lock()
	h.deviceCount = count
	h.mu.Unlock()
}

// SetDegraded marks the bridge degraded with the given reason and publishes
// immediately so operators see the transition without waiting a full
// interval.
func (h *HealthReporter) SetDegraded(reason string) {
	h.mu.Lock()
	h.degradedReason = reason
	h.mu.Unlock()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish degraded health", err)
	}
}

// SetHealthy clears a degraded condition.
func (h *HealthReporter) SetHealthy() {
	h.mu.Lock()
	wasDegraded := h.degradedReason != ""
	h.degradedReason = ""
	h.mu.Unlock()

	if wasDegraded {
		if err := h.PublishNow(); err != nil {
			h.logError("failed to publish recovered health", err)
		}
	}
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge condition.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	h.mu.RLock()
	reason := h.degradedReason
	h.mu.RUnlock()
	if reason != "" {
		return HealthDegraded, reason
	}

	return HealthHealthy, ""
}

// publishStatus publishes a health status message (QoS 1, retained).
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.mu.RLock()
	deviceCount := h.deviceCount
	h.mu.RUnlock()

	msg := HealthMessage{
		BridgeID:      h.bridgeID,
		Status:        status,
		Reason:        reason,
		DeviceCount:   deviceCount,
		MQTTConnected: h.publisher.IsConnected(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
