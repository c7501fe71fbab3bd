package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
bridge:
  id: "test-bridge"
cloud:
  api_token: "abc123token"
  poll_interval: 15
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8119
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "test-bridge" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "test-bridge")
	}

	if cfg.Cloud.APIToken != "abc123token" {
		t.Errorf("Cloud.APIToken = %q, want %q", cfg.Cloud.APIToken, "abc123token")
	}

	if cfg.Cloud.PollInterval != 15 {
		t.Errorf("Cloud.PollInterval = %d, want 15", cfg.Cloud.PollInterval)
	}

	// Defaults survive a partial file
	if cfg.Cloud.BaseURL == "" {
		t.Error("Cloud.BaseURL default was not applied")
	}

	if cfg.Discovery.Prefix != "homeassistant" {
		t.Errorf("Discovery.Prefix = %q, want %q", cfg.Discovery.Prefix, "homeassistant")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// An empty api_token must fail validation.
	content := `
bridge:
  id: "test-bridge"
cloud:
  api_token: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty cloud.api_token, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validBase returns a config that passes validation; individual tests
	// break one field at a time.
	validBase := func() *Config {
		cfg := defaultConfig()
		cfg.Cloud.APIToken = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing bridge ID",
			mutate:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing API token",
			mutate:  func(c *Config) { c.Cloud.APIToken = "" },
			wantErr: true,
		},
		{
			name:    "missing base URL",
			mutate:  func(c *Config) { c.Cloud.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "poll interval too small",
			mutate:  func(c *Config) { c.Cloud.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "missing discovery prefix",
			mutate:  func(c *Config) { c.Discovery.Prefix = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid API port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "invalid API port ignored when API disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name:    "invalid status listener port",
			mutate:  func(c *Config) { c.StatusListener.Port = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Cloud: CloudConfig{
			RequestTimeout: 10,
			PollInterval:   30,
		},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetRequestTimeout().Seconds(); got != 10 {
		t.Errorf("GetRequestTimeout() = %v, want 10", got)
	}

	if got := cfg.GetPollInterval().Seconds(); got != 30 {
		t.Errorf("GetPollInterval() = %v, want 30", got)
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SMARTEEFI_CLOUD_API_TOKEN", "env-token")
	t.Setenv("SMARTEEFI_CLOUD_BASE_URL", "https://staging.example.com/api")
	t.Setenv("SMARTEEFI_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SMARTEEFI_MQTT_PORT", "8883")
	t.Setenv("SMARTEEFI_MQTT_USERNAME", "testuser")
	t.Setenv("SMARTEEFI_MQTT_PASSWORD", "testpass")
	t.Setenv("SMARTEEFI_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SMARTEEFI_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SMARTEEFI_API_AUTH_TOKEN", "api-secret")

	applyEnvOverrides(cfg)

	if cfg.Cloud.APIToken != "env-token" {
		t.Errorf("Cloud.APIToken = %q, want %q", cfg.Cloud.APIToken, "env-token")
	}

	if cfg.Cloud.BaseURL != "https://staging.example.com/api" {
		t.Errorf("Cloud.BaseURL = %q, want %q", cfg.Cloud.BaseURL, "https://staging.example.com/api")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.API.AuthToken != "api-secret" {
		t.Errorf("API.AuthToken = %q, want %q", cfg.API.AuthToken, "api-secret")
	}
}

func TestApplyEnvOverrides_InvalidPort(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SMARTEEFI_MQTT_PORT", "not-a-number")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883 for unparseable override", cfg.MQTT.Broker.Port)
	}
}
