// wizbind - WiZ smart-bulb binding core
//
// This is the main entry point for the wizbind service. It discovers
// WiZ bulbs on the local network, validates and identifies them, and
// maintains the committed binding registry that downstream automation
// consumes. Bindings survive restarts; titles follow the imported
// home structure when one is configured.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/luxbind/wiz-core/migrations"

	"github.com/luxbind/wiz-core/internal/api"
	"github.com/luxbind/wiz-core/internal/events"
	"github.com/luxbind/wiz-core/internal/flow"
	"github.com/luxbind/wiz-core/internal/homeconfig"
	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/infrastructure/config"
	"github.com/luxbind/wiz-core/internal/infrastructure/database"
	"github.com/luxbind/wiz-core/internal/infrastructure/influxdb"
	"github.com/luxbind/wiz-core/internal/infrastructure/logging"
	"github.com/luxbind/wiz-core/internal/infrastructure/mqtt"
	"github.com/luxbind/wiz-core/internal/naming"
	"github.com/luxbind/wiz-core/internal/wizlan"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting wizbind",
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
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	// Binding entry registry
	entries := identity.NewStore(identity.NewSQLiteRepository(db.DB))
	entries.SetLogger(log)

	existing, err := entries.List(ctx)
	if err != nil {
		return fmt.Errorf("loading binding entries: %w", err)
	}
	log.Info("binding registry initialised", "entries", len(existing))

	// Home-structure store over the versioned key-value slots
	kv := database.NewKV(db)
	home := homeconfig.NewStore(kv)
	home.SetLogger(log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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

	// WiZ LAN protocol client and scanner
	lanClient := wizlan.NewClient(wizlan.ClientConfig{
		Port:    cfg.Wiz.Port,
		Timeout: cfg.Wiz.ConnectTimeoutDuration(),
	})
	lanClient.SetLogger(log)

	scanner := wizlan.NewScanner(wizlan.ScannerConfig{Port: cfg.Wiz.Port})
	scanner.SetLogger(log)

	validator := flow.NewValidator(flow.NewLANDialer(lanClient), cfg.Wiz.ConnectTimeoutDuration())
	validator.SetLogger(log)

	resolver := naming.NewResolver(cfg.Wiz.ProductName)
	resolver.SetLogger(log)

	// Event fan-out: MQTT bus, metrics, WebSocket clients
	sink := events.NewSink(mqttClient, influxClient)
	sink.SetLogger(log)

	// Binding flow manager
	flows := flow.NewManager(flow.Config{
		BroadcastAddress:    cfg.Wiz.BroadcastAddress,
		ScanWindow:          cfg.Wiz.ScanWindowDuration(),
		HomeLinkPrefix:      cfg.Wiz.HomeLinkPrefix,
		RediscoveryInterval: cfg.Wiz.RediscoveryIntervalDuration(),
	}, flow.Deps{
		Validator: validator,
		Scanner:   scanner,
		Entries:   entries,
		Home:      home,
		Fetcher:   homeconfig.NewFetcher(cfg.Wiz.FetchTimeoutDuration()),
		Resolver:  resolver,
		KV:        kv,
		Events:    sink,
		Logger:    log,
	})

	// Bundled home-structure file takes the place of a download when set
	if cfg.Wiz.HomeFile != "" {
		if importErr := flows.ImportHomeFile(ctx, cfg.Wiz.HomeFile); importErr != nil {
			log.Warn("bundled home file import failed", "path", cfg.Wiz.HomeFile, "error", importErr)
		} else {
			log.Info("bundled home file imported", "path", cfg.Wiz.HomeFile)
		}
	}

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Flows:    flows,
		Entries:  entries,
		Home:     home,
		MQTT:     mqttClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Binding events reach WebSocket clients through the hub
	sink.SetBroadcaster(apiServer.Hub())

	// Background session cleanup and periodic re-discovery
	go flows.RunJanitor(ctx)
	go flows.RunRediscovery(ctx)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("wizbind stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WIZBIND_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WIZBIND_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil when their subsystem is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
