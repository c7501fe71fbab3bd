package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/config"
)

// Client is the bridge's connection to the MQTT broker.
//
// It layers three bridge concerns over paho.mqtt.golang: the Last Will and
// Testament on the bridge status topic (so Home Assistant marks every
// entity unavailable when the bridge dies), re-subscription of the command
// wildcards after a reconnect, and panic recovery around command handlers
// so one malformed payload cannot take the whole message loop down.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	// subscriptions tracks active subscriptions for restoration on reconnect.
	subMu         sync.RWMutex
	subscriptions map[string]subscription

	// connected tracks the last observed connection state.
	connMu    sync.RWMutex
	connected bool

	// Optional connection-event callbacks, set via SetOnConnect/SetOnDisconnect.
	callbackMu   sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)

	// Optional logger for handler errors and panics, set via SetLogger.
	loggerMu sync.RWMutex
	logger   Logger
}

// Logger is the logging surface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It configures the Last Will and Testament on the bridge status topic
// before connecting, attempts the initial connection with a timeout, and
// arranges for "online" to be published (and subscriptions restored) on
// every connect, including reconnects.
//
// Home Assistant subscribes to the bridge status topic for availability,
// so the will payload is the plain string "offline" rather than JSON.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - topics: Topic builder carrying the configured prefixes
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig, topics Topics) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        topics,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, topics)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have fired yet.
	// Mark connected here so IsConnected() is true on return; the handler
	// still does subscription restoration and the status publish.
	c.setConnected(true)

	return c, nil
}

// handleConnect runs on every successful (re)connection.
func (c *Client) handleConnect() {
	c.setConnected(true)

	// Re-establish the command wildcard subscriptions the bridge made
	// before the connection dropped.
	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	// Announce availability. Retained so late subscribers see it.
	c.client.Publish(c.topics.BridgeStatus(), byte(c.cfg.QoS), true, StatusOnline)

	if callback := c.connectCallback(); callback != nil {
		callback()
	}
}

// handleDisconnect runs when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) setConnected(connected bool) {
	c.connMu.Lock()
	c.connected = connected
	c.connMu.Unlock()
}

func (c *Client) connectCallback() func() {
	c.callbackMu.RLock()
	defer c.callbackMu.RUnlock()
	return c.onConnect
}

// Close gracefully disconnects from the MQTT broker.
//
// "offline" is published to the bridge status topic first, so Home
// Assistant marks entities unavailable immediately instead of waiting for
// the broker's will delivery. Then the connection is drained and closed.
//
// Returns:
//   - error: If disconnect fails (already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.topics.BridgeStatus(), byte(c.cfg.QoS), true, StatusOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
// The error parameter describes why.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for handler errors and recovered panics.
// If not set, handler errors are silently dropped.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
