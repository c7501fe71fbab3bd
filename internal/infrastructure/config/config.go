package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Smarteefi bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge         BridgeConfig         `yaml:"bridge"`
	Cloud          CloudConfig          `yaml:"cloud"`
	StatusListener StatusListenerConfig `yaml:"status_listener"`
	MQTT           MQTTConfig           `yaml:"mqtt"`
	Discovery      DiscoveryConfig      `yaml:"discovery"`
	Database       DatabaseConfig       `yaml:"database"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	API            APIConfig            `yaml:"api"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// BridgeConfig contains bridge identity settings.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// CloudConfig contains Smarteefi cloud API settings.
type CloudConfig struct {
	// BaseURL is the vendor API root. The default targets the production
	// Home Assistant API surface.
	BaseURL string `yaml:"base_url"`

	// APIToken is the per-installation token generated in the Smarteefi app.
	// Required. Prefer setting SMARTEEFI_CLOUD_API_TOKEN over storing it here.
	APIToken string `yaml:"api_token"`

	// RequestTimeout is the per-request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// PollInterval is how often device state is refreshed from the cloud (seconds).
	PollInterval int `yaml:"poll_interval"`

	// FailureThreshold is the number of consecutive refresh failures before
	// entities are marked unavailable.
	FailureThreshold int `yaml:"failure_threshold"`

	// Backoff controls retry delays after refresh failures.
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig contains exponential backoff settings (seconds).
type BackoffConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// StatusListenerConfig contains settings for the UDP push-status listener.
// Smarteefi controllers broadcast status datagrams on the local network;
// listening for them gives immediate state updates between polls.
type StatusListenerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DiscoveryConfig contains Home Assistant MQTT discovery settings.
type DiscoveryConfig struct {
	// Prefix is the Home Assistant discovery prefix ("homeassistant" unless
	// the HA installation overrides it).
	Prefix string `yaml:"prefix"`

	// TopicPrefix is the base for bridge state/command/availability topics.
	TopicPrefix string `yaml:"topic_prefix"`

	// RetainState publishes entity state retained so HA restarts pick up
	// the last known state immediately.
	RetainState bool `yaml:"retain_state"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// AuthToken protects mutating endpoints. Empty disables auth (dev only).
	AuthToken string `yaml:"auth_token"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTEEFI_SECTION_KEY
// For example: SMARTEEFI_CLOUD_API_TOKEN, SMARTEEFI_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config populated with the built-in defaults, without
// reading a file or the environment. Useful for tests and tooling; Load is
// the production path.
func Defaults() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:   "smarteefi-bridge-01",
			Name: "Smarteefi Bridge",
		},
		Cloud: CloudConfig{
			BaseURL:          "https://www.smarteefi.com/api/homeassistant_v1",
			RequestTimeout:   10,
			PollInterval:     30,
			FailureThreshold: 3,
			Backoff: BackoffConfig{
				InitialDelay: 2,
				MaxDelay:     300,
			},
		},
		StatusListener: StatusListenerConfig{
			Enabled: true,
			Bind:    "0.0.0.0",
			Port:    23294,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "smarteefi-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Discovery: DiscoveryConfig{
			Prefix:      "homeassistant",
			TopicPrefix: "smarteefi",
			RetainState: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/smarteefi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8119,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SMARTEEFI_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud - the API token is the main secret and should come from the
	// environment in production deployments.
	if v := os.Getenv("SMARTEEFI_CLOUD_API_TOKEN"); v != "" {
		cfg.Cloud.APIToken = v
	}
	if v := os.Getenv("SMARTEEFI_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}

	// MQTT
	if v := os.Getenv("SMARTEEFI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMARTEEFI_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SMARTEEFI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMARTEEFI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("SMARTEEFI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SMARTEEFI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("SMARTEEFI_API_AUTH_TOKEN"); v != "" {
		cfg.API.AuthToken = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Cloud.APIToken == "" {
		errs = append(errs, "cloud.api_token is required (generate it in the Smarteefi app and set SMARTEEFI_CLOUD_API_TOKEN)")
	}
	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.PollInterval < 1 {
		errs = append(errs, "cloud.poll_interval must be at least 1 second")
	}
	if c.Cloud.FailureThreshold < 1 {
		errs = append(errs, "cloud.failure_threshold must be at least 1")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Discovery.Prefix == "" {
		errs = append(errs, "discovery.prefix is required")
	}
	if c.Discovery.TopicPrefix == "" {
		errs = append(errs, "discovery.topic_prefix is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.StatusListener.Enabled && (c.StatusListener.Port < 1 || c.StatusListener.Port > 65535) {
		errs = append(errs, "status_listener.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the cloud request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Cloud.RequestTimeout) * time.Second
}

// GetPollInterval returns the cloud poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Cloud.PollInterval) * time.Second
}

// GetInitialBackoff returns the initial refresh retry delay as a Duration.
func (c *Config) GetInitialBackoff() time.Duration {
	return time.Duration(c.Cloud.Backoff.InitialDelay) * time.Second
}

// GetMaxBackoff returns the maximum refresh retry delay as a Duration.
func (c *Config) GetMaxBackoff() time.Duration {
	return time.Duration(c.Cloud.Backoff.MaxDelay) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
