package hass

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// fakeHealthPublisher records health publishes.
type fakeHealthPublisher struct {
	mu        sync.Mutex
	messages  []publishedMessage
	connected bool
}

func (f *fakeHealthPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, publishedMessage{topic, string(payload), retained})
	return nil
}

func (f *fakeHealthPublisher) IsConnected() bool { return f.connected }

func (f *fakeHealthPublisher) last(t *testing.T) HealthMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		t.Fatal("no health messages published")
	}
	var msg HealthMessage
	if err := json.Unmarshal([]byte(f.messages[len(f.messages)-1].Payload), &msg); err != nil {
		t.Fatalf("invalid health JSON: %v", err)
	}
	return msg
}

func newTestReporter(pub *fakeHealthPublisher) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		BridgeID:  "test-bridge",
		Topic:     "smarteefi/bridge/health",
		Interval:  time.Hour, // periodic ticks not exercised
		Publisher: pub,
	})
}

func TestHealthReporterPublishNow(t *testing.T) {
	pub := &fakeHealthPublisher{connected: true}
	h := newTestReporter(pub)
	h.SetDeviceCount(4)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow failed: %v", err)
	}

	msg := pub.last(t)
	if msg.Status != HealthHealthy {
		t.Errorf("status = %s, want healthy", msg.Status)
	}
	if msg.BridgeID != "test-bridge" {
		t.Errorf("bridge_id = %s", msg.BridgeID)
	}
	if msg.DeviceCount != 4 {
		t.Errorf("device_count = %d, want 4", msg.DeviceCount)
	}
	if !msg.MQTTConnected {
		t.Error("mqtt_connected should be true")
	}
}

func TestHealthReporterDegraded(t *testing.T) {
	pub := &fakeHealthPublisher{connected: true}
	h := newTestReporter(pub)

	h.SetDegraded("cloud unreachable")
	msg := pub.last(t)
	if msg.Status != HealthDegraded || msg.Reason != "cloud unreachable" {
		t.Errorf("got %s (%s), want degraded (cloud unreachable)", msg.Status, msg.Reason)
	}

	h.SetHealthy()
	msg = pub.last(t)
	if msg.Status != HealthHealthy {
		t.Errorf("status after recovery = %s", msg.Status)
	}
}

func TestHealthReporterMQTTDisconnected(t *testing.T) {
	pub := &fakeHealthPublisher{connected: false}
	h := newTestReporter(pub)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow failed: %v", err)
	}
	msg := pub.last(t)
	if msg.Status != HealthDegraded || msg.Reason != "MQTT disconnected" {
		t.Errorf("got %s (%s), want degraded (MQTT disconnected)", msg.Status, msg.Reason)
	}
}

func TestHealthReporterStopPublishesStopping(t *testing.T) {
	pub := &fakeHealthPublisher{connected: true}
	h := newTestReporter(pub)

	h.Start(context.Background())
	h.Stop()
	h.Stop() // idempotent

	msg := pub.last(t)
	if msg.Status != HealthStopping {
		t.Errorf("final status = %s, want stopping", msg.Status)
	}
}
