// Gray Logic Cloud Bridge
//
// This is the main entry point of the cloud device bridge. It discovers the
// devices of a cloud smart-home account, keeps a local state model of each
// supported device and mirrors that state onto the Gray Logic MQTT bus, where
// commands for the devices are accepted as well.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/api"
	"github.com/nerrad567/gray-logic-cloud/internal/audit"
	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cloud/internal/platform"
	"github.com/nerrad567/gray-logic-cloud/internal/publish"
	"github.com/nerrad567/gray-logic-cloud/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Cloud Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Registration store
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := accessory.NewSQLiteStore(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Cloud API
	cloudClient, err := cloud.New(cfg.Cloud)
	if err != nil {
		return fmt.Errorf("creating cloud client: %w", err)
	}

	// MQTT bus
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	qos := byte(cfg.MQTT.QoS) //nolint:gosec // Validated to 0-2 by config.Validate
	publishers := publish.Fanout{publish.NewMQTTPublisher(mqttClient, cfg.Bridge.ID, qos)}

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		publishers = append(publishers, publish.NewMetricsPublisher(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// WebSocket hub, fed with every service value
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.API.WebSocket, log)
		go hub.Run(ctx)
		publishers = append(publishers, hub)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Device platform
	plat := platform.New(platform.Config{
		Cloud:  cfg.Cloud,
		Sync:   cfg.Sync,
		Events: cfg.Events,
	}, cloudClient, store, publishers)
	plat.SetLogger(log)
	plat.SetAuditor(auditRepo)
	defer func() {
		log.Info("stopping device sync")
		plat.Close()
	}()

	health := platform.NewHealthReporter(platform.HealthReporterConfig{
		BridgeID:  cfg.Bridge.ID,
		Version:   version,
		Interval:  cfg.Bridge.HealthInterval,
		Publisher: mqttClient,
		Devices:   plat,
		Metrics:   healthMetrics(influxClient),
	})
	health.SetLogger(log)
	if err := health.PublishStarting(); err != nil {
		log.Warn("failed to publish starting status", "error", err)
	}

	result, err := plat.Discover(audit.WithActor(ctx, audit.SourceDiscovery, ""))
	if err != nil {
		return fmt.Errorf("discovering devices: %w", err)
	}
	log.Info("devices discovered",
		"registered", result.Registered,
		"restored", result.Restored,
		"unregistered", result.Unregistered,
	)

	if cfg.Events.Enabled {
		if err := plat.SubscribeEvents(mqttClient, cfg.Events.Topic, qos); err != nil {
			return err
		}
	} else {
		log.Info("push events disabled, polling device state")
	}
	if err := plat.SubscribeCommands(mqttClient, cfg.Bridge.ID, qos); err != nil {
		return err
	}

	// Local API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Platform: plat,
			Hub:      hub,
			Audit:    auditRepo,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	health.Start(ctx)
	defer health.Stop()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Health reporter (publishes "stopping")
	// 2. API server (if enabled)
	// 3. Device sync
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Gray Logic Cloud Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthMetrics returns the InfluxDB client as a metrics sink, or nil when
// InfluxDB is disabled. A typed nil would defeat the reporter's nil check.
func healthMetrics(c *influxdb.Client) platform.HealthMetrics {
	if c == nil {
		return nil
	}
	return c
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
