// Smarteefi Bridge - Home Assistant integration for Smarteefi controllers
//
// This is the main entry point for the bridge. It mirrors the Smarteefi
// cloud device list into a local SQLite database, announces the devices to
// Home Assistant via MQTT discovery, and translates commands and state
// between the two sides.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/smarteefi-community/smarteefi-bridge/migrations"

	"github.com/smarteefi-community/smarteefi-bridge/internal/api"
	"github.com/smarteefi-community/smarteefi-bridge/internal/bridge/hass"
	"github.com/smarteefi-community/smarteefi-bridge/internal/device"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/config"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/database"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/influxdb"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/logging"
	"github.com/smarteefi-community/smarteefi-bridge/internal/infrastructure/mqtt"
	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Smarteefi bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, cfg.Bridge.ID, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise the device mirror from the last run, so entities come
	// back before the first cloud refresh completes.
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device mirror: %w", refreshErr)
	}
	log.Info("device mirror loaded", "devices", deviceRegistry.Count())

	// Connect to MQTT broker. The topics carry the bridge status topic
	// used for the last-will message.
	topics := mqtt.NewTopics(cfg.Discovery.Prefix, cfg.Discovery.TopicPrefix)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional telemetry)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the cloud client and verify the token before announcing
	// anything to Home Assistant. A bad token is a configuration error,
	// not a transient failure.
	cloudClient := smarteefi.NewClient(cfg.Cloud.BaseURL, cfg.Cloud.APIToken, cfg.GetRequestTimeout())
	if err := cloudClient.ValidateToken(ctx); err != nil {
		return fmt.Errorf("validating cloud API token (regenerate it in the Smarteefi app if it expired): %w", err)
	}
	log.Info("cloud API token validated", "base_url", cfg.Cloud.BaseURL)

	// Start the UDP push-status listener (optional)
	var statusListener *smarteefi.StatusListener
	if cfg.StatusListener.Enabled {
		statusListener, err = smarteefi.Listen(smarteefi.ListenerConfig{
			Bind: cfg.StatusListener.Bind,
			Port: cfg.StatusListener.Port,
		})
		if err != nil {
			return fmt.Errorf("starting status listener: %w", err)
		}
		statusListener.SetLogger(log)
		defer func() {
			log.Info("closing status listener")
			if closeErr := statusListener.Close(); closeErr != nil {
				log.Error("error closing status listener", "error", closeErr)
			}
		}()
		log.Info("status listener started", "addr", statusListener.Addr())
	} else {
		log.Info("status listener disabled, relying on cloud polling only")
	}

	// Create and start the bridge
	bridge, err := newBridge(cfg, mqttClient, cloudClient, statusListener, influxClient, deviceRegistry, log)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()
	log.Info("bridge started")

	// Start the local REST API (optional)
	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Registry: deviceRegistry,
			Bridge:   bridge,
			MQTT:     mqttClient,
			DB:       db,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge (publishes offline availability)
	// 3. Status listener (if enabled)
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Smarteefi bridge stopped")
	return nil
}

// newBridge assembles the bridge from its dependencies. The nil checks on
// the optional pieces matter: a nil *influxdb.Client must not become a
// non-nil interface value.
func newBridge(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	cloudClient *smarteefi.Client,
	statusListener *smarteefi.StatusListener,
	influxClient *influxdb.Client,
	registry *device.Registry,
	log *logging.Logger,
) (*hass.Bridge, error) {
	opts := hass.BridgeOptions{
		Config:      cfg,
		MQTTClient:  mqttClient,
		CloudClient: cloudClient,
		Registry:    registry,
		Logger:      log,
	}
	if statusListener != nil {
		opts.PushSource = statusListener
	}
	if influxClient != nil {
		opts.Metrics = influxClient
	}
	return hass.NewBridge(opts)
}

// getConfigPath returns the configuration file path.
// Uses SMARTEEFI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTEEFI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
