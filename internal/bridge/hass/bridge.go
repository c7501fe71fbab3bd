package hass

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smarteefi-community/smarteefi-bridge/internal/device"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/config"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/mqtt"
	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

// Bridge operation constants.
const (
	// commandTimeout bounds a single vendor API call triggered by an MQTT
	// command.
	commandTimeout = 10 * time.Second

	// refreshTimeout bounds one full enumerate-and-poll cycle.
	refreshTimeout = 60 * time.Second
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishRetained sends a retained message at the client's configured
	// QoS. Used for discovery and availability, where late subscribers
	// must still see the current value.
	PublishRetained(topic string, payload []byte) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// CloudClient is the vendor API surface the bridge depends on.
// Satisfied by *smarteefi.Client; faked in tests.
type CloudClient interface {
	Devices(ctx context.Context) ([]smarteefi.Device, error)
	Statuses(ctx context.Context) ([]smarteefi.DeviceStatus, error)
	SetSwitch(ctx context.Context, d smarteefi.Device, on bool) error
	SetFanSpeed(ctx context.Context, d smarteefi.Device, speed int) error
	SetRGBColor(ctx context.Context, d smarteefi.Device, r, g, b uint8) error
	SetIntensity(ctx context.Context, d smarteefi.Device, intensity int) error
	MoveCover(ctx context.Context, d smarteefi.Device, opening bool, delta int) error
}

// PushSource delivers local UDP status datagrams.
// Satisfied by *smarteefi.StatusListener. Optional — if nil, the bridge
// relies on polling alone.
type PushSource interface {
	SetOnStatus(callback func(smarteefi.DeviceStatus))
}

// MetricsRecorder receives telemetry about bridge activity.
// Satisfied by the InfluxDB client wrapper. Optional — if nil, no telemetry
// is recorded.
type MetricsRecorder interface {
	WriteEntityState(deviceID, entityType string, fields map[string]any)
	WriteCommandLatency(deviceID, verb string, duration time.Duration, success bool)
	WriteRefreshResult(deviceCount int, duration time.Duration, success bool)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge orchestrates bidirectional translation between Home Assistant and
// the Smarteefi cloud. It handles:
//   - Publishing MQTT discovery configs so HA creates the entities
//   - Receiving HA commands via MQTT and translating them to vendor calls
//   - Translating polled and pushed vendor status into entity state
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      *config.Config
	mqtt     MQTTClient
	cloud    CloudClient
	registry *device.Registry
	push     PushSource      // Optional UDP push source
	metrics  MetricsRecorder // Optional telemetry sink
	topics   mqtt.Topics
	health   *HealthReporter
	qos      byte

	// Last published state payload per object ID, for change suppression
	states    map[string]string
	positions map[string]int  // assumed cover positions
	available map[string]bool // last published entity availability
	stateMu   sync.Mutex

	// Per-device command serialisation
	inflight   map[string]*sync.Mutex
	inflightMu sync.Mutex

	// Shutdown coordination. workerMu orders startWorker's done-check-and-Add
	// against Stop's close(done), so no worker starts after wg.Wait begins.
	done      chan struct{}
	wg        sync.WaitGroup
	workerMu  sync.Mutex
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *config.Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// CloudClient is the vendor API client.
	CloudClient CloudClient

	// Registry is the device mirror registry.
	Registry *device.Registry

	// PushSource is the optional UDP status listener.
	PushSource PushSource

	// Metrics is the optional telemetry sink.
	Metrics MetricsRecorder

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.CloudClient == nil {
		return nil, fmt.Errorf("cloud client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	// Bridge-level context aborts in-flight vendor calls on Stop()
	ctx, ctxCancel := context.WithCancel(context.Background())

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTTClient,
		cloud:     opts.CloudClient,
		registry:  opts.Registry,
		push:      opts.PushSource,
		metrics:   opts.Metrics,
		topics:    mqtt.NewTopics(opts.Config.Discovery.Prefix, opts.Config.Discovery.TopicPrefix),
		qos:       byte(opts.Config.MQTT.QoS),
		states:    make(map[string]string),
		positions: make(map[string]int),
		available: make(map[string]bool),
		inflight:  make(map[string]*sync.Mutex),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Topic:     b.topics.BridgeHealth(),
		Publisher: opts.MQTTClient,
	})
	b.health.SetLogger(logger)

	return b, nil
}

// Topics returns the topic layout the bridge publishes and subscribes on.
func (b *Bridge) Topics() mqtt.Topics {
	return b.topics
}

// Start begins bridge operation.
//
// Discovery is published immediately from the persisted mirror so Home
// Assistant sees the entities even if the first cloud round-trip is slow,
// then the refresh loop reconciles against the cloud.
func (b *Bridge) Start(ctx context.Context) error {
	// Announce entities known from the last run
	for _, d := range b.registry.List() {
		if err := b.publishDiscovery(d); err != nil {
			b.logger.Error("failed to publish discovery", "object_id", d.ObjectID, "error", err)
		}
	}
	b.health.SetDeviceCount(b.registry.Count())

	if err := b.mqtt.Subscribe(b.topics.AllCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.AllAttributeCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to attribute commands: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.HomeAssistantStatus(), b.qos, b.handleHomeAssistantStatus); err != nil {
		return fmt.Errorf("subscribe to home assistant status: %w", err)
	}

	if b.push != nil {
		b.push.SetOnStatus(b.handlePushStatus)
	}

	b.health.Start(ctx)

	b.startWorker(b.refreshLoop)

	b.logger.Info("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", b.registry.Count(),
		"poll_interval", b.cfg.GetPollInterval())
	return nil
}

// startWorker launches fn on a tracked goroutine unless the bridge is
// stopping. Paho invokes message handlers on its own goroutines, which
// could otherwise race a wg.Add against Stop's wg.Wait.
//
// Returns false if the bridge is stopping and fn was not started.
func (b *Bridge) startWorker(fn func()) bool {
	b.workerMu.Lock()
	defer b.workerMu.Unlock()

	select {
	case <-b.done:
		return false
	default:
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
	return true
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.workerMu.Lock()
		close(b.done)
		b.workerMu.Unlock()

		// Abort in-flight vendor calls
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// =============================================================================
// Refresh Loop
// =============================================================================

// refreshLoop polls the cloud on the configured interval, backing off
// exponentially while the cloud is unreachable. An authentication failure
// ends the loop: the token cannot recover without operator action.
func (b *Bridge) refreshLoop() {
	interval := b.cfg.GetPollInterval()
	initial := b.cfg.GetInitialBackoff()
	if initial <= 0 {
		initial = time.Second
	}
	backoff := initial
	failures := 0

	timer := time.NewTimer(0) // immediate first refresh
	defer timer.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-timer.C:
		}

		err := b.Refresh(b.ctx)
		switch {
		case err == nil:
			if failures >= b.cfg.Cloud.FailureThreshold {
				b.logger.Info("cloud connection restored", "after_failures", failures)
			}
			failures = 0
			backoff = initial
			b.health.SetHealthy()
			timer.Reset(interval)

		case errors.Is(err, smarteefi.ErrAuthFailed):
			b.logger.Error("cloud rejected the API token; regenerate it in the Smarteefi app and restart",
				"error", err)
			b.health.SetDegraded("reauthentication required")
			return

		case errors.Is(err, context.Canceled):
			return

		default:
			failures++
			b.logger.Warn("cloud refresh failed",
				"consecutive_failures", failures,
				"retry_in", backoff,
				"error", err)
			if failures == b.cfg.Cloud.FailureThreshold {
				b.markAllUnavailable()
				b.health.SetDegraded("cloud unreachable")
			}
			timer.Reset(backoff)
			backoff = min(backoff*2, b.cfg.GetMaxBackoff())
		}
	}
}

// Refresh performs one full reconciliation cycle: enumerate the cloud
// device list, diff it against the mirror, adjust discovery, and apply
// current statuses.
//
// It is also the "(re)discover devices" operation: the API layer calls it
// when the operator adds devices in the Smarteefi app.
func (b *Bridge) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	start := time.Now()
	err := b.refresh(ctx)
	if b.metrics != nil {
		b.metrics.WriteRefreshResult(b.registry.Count(), time.Since(start), err == nil)
	}
	return err
}

func (b *Bridge) refresh(ctx context.Context) error {
	cloudDevices, err := b.cloud.Devices(ctx)
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}

	mirror := make([]device.Device, 0, len(cloudDevices))
	for _, cd := range cloudDevices {
		if !cd.Type.Valid() {
			b.logger.Warn("skipping device of unsupported type",
				"device_id", cd.ID, "type", string(cd.Type))
			continue
		}
		d, err := device.FromCloud(cd)
		if err != nil {
			b.logger.Warn("skipping malformed device",
				"device_id", cd.ID, "error", err)
			continue
		}
		mirror = append(mirror, *d)
	}

	added, removed, err := b.registry.Sync(ctx, mirror)
	if err != nil {
		return fmt.Errorf("reconciling device mirror: %w", err)
	}

	for i := range added {
		if err := b.publishDiscovery(added[i]); err != nil {
			b.logger.Error("failed to publish discovery",
				"object_id", added[i].ObjectID, "error", err)
		}
	}
	for i := range removed {
		b.retractEntity(removed[i])
	}
	b.health.SetDeviceCount(b.registry.Count())

	statuses, err := b.cloud.Statuses(ctx)
	if err != nil {
		return fmt.Errorf("fetching statuses: %w", err)
	}
	for _, ds := range statuses {
		b.applyStatus(ds, "poll")
	}

	b.markAllAvailable()
	return nil
}

// =============================================================================
// Status Handling (poll + push)
// =============================================================================

// handlePushStatus runs on the status listener's callback goroutine.
func (b *Bridge) handlePushStatus(ds smarteefi.DeviceStatus) {
	b.applyStatus(ds, "push")
}

// applyStatus routes one raw status word to its entity and publishes the
// decoded state if it changed.
func (b *Bridge) applyStatus(ds smarteefi.DeviceStatus, source string) {
	dev, err := b.registry.GetByMatchKey(ds.MatchKey())
	if err != nil {
		b.logger.Debug("status for unknown device", "match_key", ds.MatchKey(), "source", source)
		return
	}

	state, err := decodeStatus(dev.Type, dev.Smap, ds.Status)
	if err != nil {
		b.logger.Warn("cannot decode status",
			"object_id", dev.ObjectID, "status", ds.Status, "error", err)
		return
	}

	changed := b.publishState(dev, state)
	b.setAvailability(dev, true)

	if err := b.registry.UpdateStatus(b.ctx, dev.ID, ds.Status, time.Now()); err != nil {
		b.logger.Error("failed to persist status", "device_id", dev.ID, "error", err)
	}

	if changed {
		b.logger.Debug("entity state updated",
			"object_id", dev.ObjectID, "state", state.State, "source", source)
		if b.metrics != nil {
			b.metrics.WriteEntityState(dev.ID, string(dev.Type), map[string]any{
				"status": int64(ds.Status),
				"on":     state.State == payloadOn || state.State == stateOpen,
			})
		}
	}
}

// publishState publishes a retained state payload unless it matches the
// last published state for the entity. Returns true if published.
func (b *Bridge) publishState(dev *device.Device, state entityState) bool {
	payload, err := state.encode()
	if err != nil {
		b.logger.Error("failed to encode state", "object_id", dev.ObjectID, "error", err)
		return false
	}

	b.stateMu.Lock()
	if prev, seen := b.states[dev.ObjectID]; seen && prev == string(payload) {
		b.stateMu.Unlock()
		return false
	}
	b.states[dev.ObjectID] = string(payload)
	if state.Position != nil {
		b.positions[dev.ObjectID] = *state.Position
	}
	b.stateMu.Unlock()

	if err := b.mqtt.Publish(b.topics.State(dev.ObjectID), payload, b.qos,
		b.cfg.Discovery.RetainState); err != nil {
		b.logger.Error("failed to publish state", "object_id", dev.ObjectID, "error", err)
	}
	return true
}

// setAvailability publishes entity availability, suppressing repeats.
func (b *Bridge) setAvailability(dev *device.Device, online bool) {
	b.stateMu.Lock()
	prev, seen := b.available[dev.ObjectID]
	if seen && prev == online {
		b.stateMu.Unlock()
		return
	}
	b.available[dev.ObjectID] = online
	b.stateMu.Unlock()

	payload := mqtt.StatusOffline
	if online {
		payload = mqtt.StatusOnline
	}
	if err := b.mqtt.PublishRetained(b.topics.Availability(dev.ObjectID), []byte(payload)); err != nil {
		b.logger.Error("failed to publish availability", "object_id", dev.ObjectID, "error", err)
	}
	if err := b.registry.UpdateAvailability(b.ctx, dev.ID, online); err != nil {
		b.logger.Error("failed to persist availability", "device_id", dev.ID, "error", err)
	}
}

func (b *Bridge) markAllUnavailable() {
	devices := b.registry.List()
	for i := range devices {
		b.setAvailability(&devices[i], false)
	}
	b.logger.Warn("marked all entities unavailable", "count", len(devices))
}

func (b *Bridge) markAllAvailable() {
	devices := b.registry.List()
	for i := range devices {
		b.setAvailability(&devices[i], true)
	}
}

// =============================================================================
// Discovery
// =============================================================================

// publishDiscovery announces one entity to Home Assistant with a retained
// discovery config.
func (b *Bridge) publishDiscovery(d device.Device) error {
	payload, err := discoveryPayload(d, b.topics, int(b.qos))
	if err != nil {
		return err
	}

	topic := b.topics.DiscoveryConfig(d.Type.DiscoveryComponent(), d.ObjectID)
	if err := b.mqtt.PublishRetained(topic, payload); err != nil {
		return fmt.Errorf("publishing discovery config: %w", err)
	}

	b.logger.Info("entity announced",
		"object_id", d.ObjectID, "type", string(d.Type), "name", d.Name)
	return nil
}

// retractEntity removes an entity that disappeared from the cloud account:
// the retained discovery config is cleared (which deletes the entity in
// Home Assistant), along with its retained state and availability.
func (b *Bridge) retractEntity(d device.Device) {
	topics := []string{
		b.topics.DiscoveryConfig(d.Type.DiscoveryComponent(), d.ObjectID),
		b.topics.State(d.ObjectID),
		b.topics.Availability(d.ObjectID),
	}
	for _, topic := range topics {
		if err := b.mqtt.PublishRetained(topic, nil); err != nil {
			b.logger.Error("failed to clear retained topic", "topic", topic, "error", err)
		}
	}

	b.stateMu.Lock()
	delete(b.states, d.ObjectID)
	delete(b.positions, d.ObjectID)
	delete(b.available, d.ObjectID)
	b.stateMu.Unlock()

	b.logger.Info("entity retracted", "object_id", d.ObjectID, "name", d.Name)
}

// handleHomeAssistantStatus reacts to Home Assistant's birth message by
// republishing discovery and state, so a restarted HA instance rebuilds
// its entities without waiting for the next poll.
func (b *Bridge) handleHomeAssistantStatus(_ string, payload []byte) error {
	if string(payload) != mqtt.StatusOnline {
		return nil
	}

	b.logger.Info("home assistant came online, republishing discovery")

	b.startWorker(b.republishAll)
	return nil
}

// republishAll replays discovery, last known state and availability for
// every entity, so a restarted Home Assistant rebuilds without waiting
// for the next poll.
func (b *Bridge) republishAll() {
	for _, d := range b.registry.List() {
		select {
		case <-b.done:
			return
		default:
		}

		if err := b.publishDiscovery(d); err != nil {
			b.logger.Error("failed to republish discovery",
				"object_id", d.ObjectID, "error", err)
			continue
		}

		b.stateMu.Lock()
		payload, ok := b.states[d.ObjectID]
		online, seenAvail := b.available[d.ObjectID]
		b.stateMu.Unlock()

		if ok {
			if err := b.mqtt.Publish(b.topics.State(d.ObjectID),
				[]byte(payload), b.qos, b.cfg.Discovery.RetainState); err != nil {
				b.logger.Error("failed to republish state",
					"object_id", d.ObjectID, "error", err)
			}
		}
		if seenAvail {
			avail := mqtt.StatusOffline
			if online {
				avail = mqtt.StatusOnline
			}
			if err := b.mqtt.PublishRetained(b.topics.Availability(d.ObjectID),
				[]byte(avail)); err != nil {
				b.logger.Error("failed to republish availability",
					"object_id", d.ObjectID, "error", err)
			}
		}
	}
}

// =============================================================================
// Command Handling
// =============================================================================

// handleCommand runs on a paho goroutine and must not block; it validates
// the topic, then hands execution to a worker goroutine serialised per
// device.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	objectID, attribute, ok := b.parseCommandTopic(topic)
	if !ok {
		return nil // not a command topic (health, availability, etc.)
	}

	dev, err := b.registry.GetByObjectID(b.ctx, objectID)
	if err != nil {
		b.logger.Warn("command for unknown entity", "object_id", objectID, "topic", topic)
		return nil
	}

	commandID := uuid.NewString()
	b.logger.Info("received command",
		"command_id", commandID,
		"object_id", objectID,
		"attribute", attribute,
		"payload", string(payload))

	if !b.startWorker(func() {
		b.executeCommand(commandID, dev, attribute, string(payload))
	}) {
		b.logger.Warn("dropped command received during shutdown",
			"command_id", commandID, "object_id", objectID)
	}
	return nil
}

// parseCommandTopic extracts the object ID and optional attribute from a
// command topic. Valid shapes:
//
//	{prefix}/{object_id}/set
//	{prefix}/{object_id}/{attribute}/set
func (b *Bridge) parseCommandTopic(topic string) (objectID, attribute string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.topics.Prefix+"/")
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "set":
		return parts[0], "", true
	case len(parts) == 3 && parts[2] == "set":
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

// executeCommand translates one HA command into exactly one vendor call.
// Commands for the same device are serialised; distinct devices proceed in
// parallel.
func (b *Bridge) executeCommand(commandID string, dev *device.Device, attribute, payload string) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	start := time.Now()
	verb, err := b.runCommand(ctx, dev, attribute, payload)
	if err != nil {
		b.logger.Error("command failed",
			"command_id", commandID,
			"object_id", dev.ObjectID,
			"verb", verb,
			"error", err)
		return
	}

	b.logger.Debug("command completed",
		"command_id", commandID,
		"object_id", dev.ObjectID,
		"verb", verb,
		"duration", time.Since(start))
}

// Command executes a single entity command on behalf of a local caller such
// as the REST API, bypassing MQTT. It resolves the entity, runs the vendor
// call under the same per-device serialisation as MQTT commands, and echoes
// the optimistic state.
func (b *Bridge) Command(ctx context.Context, objectID, attribute, payload string) error {
	dev, err := b.registry.GetByObjectID(ctx, objectID)
	if err != nil {
		return err
	}
	_, err = b.runCommand(ctx, dev, attribute, payload)
	return err
}

// runCommand holds the per-device mutex across the vendor call so
// overlapping commands for one device cannot reorder on the wire.
func (b *Bridge) runCommand(ctx context.Context, dev *device.Device, attribute, payload string) (string, error) {
	mu := b.deviceMutex(dev.ID)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	verb, newState, err := b.dispatch(ctx, dev, attribute, payload)

	if b.metrics != nil && verb != "" {
		b.metrics.WriteCommandLatency(dev.ID, verb, time.Since(start), err == nil)
	}

	if err != nil {
		if errors.Is(err, smarteefi.ErrAuthFailed) {
			b.health.SetDegraded("reauthentication required")
		}
		return verb, err
	}

	// Optimistic state echo. The vendor does not confirm commands in the
	// response; the next poll or push corrects any divergence.
	if newState != nil {
		b.publishState(dev, *newState)
	}
	return verb, nil
}

// dispatch routes a command to the vendor call for the entity kind and
// attribute, returning the verb (for telemetry) and the optimistic state.
func (b *Bridge) dispatch(ctx context.Context, dev *device.Device, attribute, payload string) (string, *entityState, error) {
	vd := smarteefi.Device{ID: dev.ID, Name: dev.Name, Type: dev.Type, CloudID: dev.CloudID}

	switch attribute {
	case "":
		return b.dispatchPower(ctx, dev, vd, payload)

	case "percentage":
		if dev.Type != smarteefi.TypeFan {
			return "", nil, fmt.Errorf("percentage command for non-fan entity %s", dev.ObjectID)
		}
		pct, err := parsePercent(payload)
		if err != nil {
			return "", nil, err
		}
		if pct == 0 {
			if err := b.cloud.SetSwitch(ctx, vd, false); err != nil {
				return "set-status", nil, err
			}
			return "set-status", fanState(false, 0), nil
		}
		speed := smarteefi.PercentageToFanSpeed(pct)
		if err := b.cloud.SetFanSpeed(ctx, vd, speed); err != nil {
			return "set-speed", nil, err
		}
		return "set-speed", fanState(true, smarteefi.FanSpeedToPercentage(speed)), nil

	case "brightness":
		if dev.Type != smarteefi.TypeLight {
			return "", nil, fmt.Errorf("brightness command for non-light entity %s", dev.ObjectID)
		}
		brightness, err := parseBrightness(payload)
		if err != nil {
			return "", nil, err
		}
		// The vendor has no intensity 0; off is a plain set-status
		if brightness == 0 {
			if err := b.cloud.SetSwitch(ctx, vd, false); err != nil {
				return "set-status", nil, err
			}
			return "set-status", lightOff(), nil
		}
		if err := b.cloud.SetIntensity(ctx, vd, smarteefi.BrightnessToIntensity(brightness)); err != nil {
			return "set-intensity", nil, err
		}
		return "set-intensity", lightBrightnessState(brightness), nil

	case "rgb":
		if dev.Type != smarteefi.TypeLight {
			return "", nil, fmt.Errorf("rgb command for non-light entity %s", dev.ObjectID)
		}
		r, g, bl, err := parseRGB(payload)
		if err != nil {
			return "", nil, err
		}
		if err := b.cloud.SetRGBColor(ctx, vd, r, g, bl); err != nil {
			return "set-rgb-color", nil, err
		}
		return "set-rgb-color", lightColorState(r, g, bl), nil

	case "position":
		if dev.Type != smarteefi.TypeCover {
			return "", nil, fmt.Errorf("position command for non-cover entity %s", dev.ObjectID)
		}
		target, err := parsePercent(payload)
		if err != nil {
			return "", nil, err
		}
		return b.moveCover(ctx, dev, vd, target)

	default:
		return "", nil, fmt.Errorf("unknown command attribute %q", attribute)
	}
}

// dispatchPower handles the bare {object_id}/set topic: ON/OFF for switch,
// fan, and light; OPEN/CLOSE for covers.
func (b *Bridge) dispatchPower(ctx context.Context, dev *device.Device, vd smarteefi.Device, payload string) (string, *entityState, error) {
	if dev.Type == smarteefi.TypeCover {
		switch strings.ToUpper(strings.TrimSpace(payload)) {
		case payloadOpen:
			return b.moveCover(ctx, dev, vd, 100)
		case payloadClose:
			return b.moveCover(ctx, dev, vd, 0)
		default:
			return "", nil, fmt.Errorf("invalid cover command %q", payload)
		}
	}

	on, err := parseOnOff(payload)
	if err != nil {
		return "", nil, err
	}
	if err := b.cloud.SetSwitch(ctx, vd, on); err != nil {
		return "set-status", nil, err
	}

	switch dev.Type {
	case smarteefi.TypeFan:
		pct := 0
		if on {
			// Speed is not part of an ON command; assume full until the
			// next status corrects it
			pct = 100
		}
		return "set-status", fanState(on, pct), nil
	case smarteefi.TypeLight:
		if !on {
			return "set-status", lightOff(), nil
		}
		return "set-status", &entityState{State: payloadOn}, nil
	default:
		return "set-status", &entityState{State: onOff(on)}, nil
	}
}

// moveCover issues a direction-and-delta move toward the target position.
// The vendor protocol expresses moves relative to the current position; a
// delta of zero with an explicit direction means a full travel.
func (b *Bridge) moveCover(ctx context.Context, dev *device.Device, vd smarteefi.Device, target int) (string, *entityState, error) {
	prev := b.assumedPosition(dev)

	var opening bool
	var delta int
	switch {
	case target == 0:
		opening, delta = false, 0
	case target == 100:
		opening, delta = true, 0
	case target == prev:
		b.logger.Debug("cover already at position", "object_id", dev.ObjectID, "position", target)
		return "set-status", nil, nil
	case target > prev:
		opening, delta = true, target-prev
	default:
		opening, delta = false, prev-target
	}

	if err := b.cloud.MoveCover(ctx, vd, opening, delta); err != nil {
		return "set-status", nil, err
	}
	return "set-status", coverState(target), nil
}

// assumedPosition returns the last known cover position, falling back to
// the mirrored status word (open=100, closed=0).
func (b *Bridge) assumedPosition(dev *device.Device) int {
	b.stateMu.Lock()
	pos, ok := b.positions[dev.ObjectID]
	b.stateMu.Unlock()
	if ok {
		return pos
	}
	if smarteefi.CoverOpen(dev.Smap, dev.Status) {
		return 100
	}
	return 0
}

// deviceMutex returns the serialisation mutex for a device, creating it on
// first use.
func (b *Bridge) deviceMutex(id string) *sync.Mutex {
	b.inflightMu.Lock()
	defer b.inflightMu.Unlock()

	mu, ok := b.inflight[id]
	if !ok {
		mu = &sync.Mutex{}
		b.inflight[id] = mu
	}
	return mu
}

// =============================================================================
// Optimistic state constructors
// =============================================================================

func fanState(on bool, percentage int) *entityState {
	return &entityState{State: onOff(on), Percentage: &percentage}
}

func lightOff() *entityState {
	var brightness uint8
	return &entityState{State: payloadOff, Brightness: &brightness}
}

func lightBrightnessState(brightness uint8) *entityState {
	return &entityState{State: payloadOn, Brightness: &brightness}
}

func lightColorState(r, g, b uint8) *entityState {
	brightness := max(r, g, b)
	rgb := [3]uint8{r, g, b}
	return &entityState{State: payloadOn, Brightness: &brightness, RGB: &rgb}
}

func coverState(position int) *entityState {
	state := stateClosed
	if position > 0 {
		state = stateOpen
	}
	return &entityState{State: state, Position: &position}
}
