// Gray Sync Core - Device Telemetry Synchronization Engine
//
// This is the main entry point for the Gray Sync Core application.
// Gray Sync keeps a local, queryable mirror of remote device telemetry:
//   - REST snapshots prime the full state of every configured device
//   - MQTT push deltas keep the mirror live between snapshots
//   - Updates fan out in order to the store, history, and WebSocket clients
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-sync-core/migrations"

	"github.com/nerrad567/gray-sync-core/internal/api"
	"github.com/nerrad567/gray-sync-core/internal/bus"
	"github.com/nerrad567/gray-sync-core/internal/catalog"
	"github.com/nerrad567/gray-sync-core/internal/gateway"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/database"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/rest"
	"github.com/nerrad567/gray-sync-core/internal/store"
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
	log.Info("starting Gray Sync Core",
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
	applied, pending, statusErr := db.GetMigrationStatus(ctx)
	if statusErr != nil {
		return fmt.Errorf("reading migration status: %w", statusErr)
	}
	log.Info("database migrations complete", "applied", len(applied), "pending", len(pending))

	// Build the materialized store, asset-aware when a catalog is configured
	var st *store.Store
	if cfg.Catalog.Enabled {
		repo := catalog.NewSQLiteRepository(db.DB)
		st = store.NewAssetAware(repo)
		log.Info("catalog enabled", "default_lang", cfg.Catalog.DefaultLang)
	} else {
		st = store.NewLightweight()
		log.Info("catalog disabled, store is value-only")
	}
	st.SetLogger(log)

	// The gateway attaches every consumer to the bus before the first prime
	consumers := []gateway.Consumer{st}

	// Connect to InfluxDB (optional history sink)
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

		consumers = append(consumers, influxdb.NewHistorySink(influxClient, log))
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub relays every update record to connected clients
	hub := api.NewHub(cfg.WebSocket, log.With("component", "ws"))
	consumers = append(consumers, hub)

	// Snapshot backend
	restClient, err := rest.New(cfg.REST)
	if err != nil {
		return fmt.Errorf("creating snapshot client: %w", err)
	}

	// Push transport
	transport := mqtt.NewTransport(cfg.MQTT, log.With("component", "mqtt"))

	// Synchronization gateway
	updates := bus.New()
	gw, err := gateway.New(gateway.Options{
		Devices:        cfg.Sync.Devices,
		Snapshotter:    restClient,
		Transport:      transport,
		Bus:            updates,
		Consumers:      consumers,
		Retry:          retryConfig(cfg.Sync.Retry),
		PrimeActivity:  cfg.Sync.PrimeActivity,
		ReconnectDelay: cfg.GetReconnectDelay(),
		Logger:         log.With("component", "sync"),
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	// API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Catalog:  cfg.Catalog,
		Logger:   log.With("component", "api"),
		Store:    st,
		DB:       db,
		Sync:     gw,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	// Verify infrastructure connections before going live
	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, synchronizing",
		"devices", cfg.Sync.Devices,
	)

	// Announce the first transition to live; reconnect cycles after that
	// are logged by the gateway itself.
	go func() {
		if waitErr := gw.WaitState(ctx, gateway.StateLive); waitErr == nil {
			log.Info("synchronization live", "devices", len(gw.Status().Subscribed))
		}
	}()

	// Run blocks until the context is cancelled or priming is exhausted.
	// A clean shutdown drains consumers before returning.
	if err := gw.Run(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	log.Info("Gray Sync Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// retryConfig converts the config's second-based retry settings to the
// gateway's duration-based policy.
func retryConfig(cfg config.SyncRetryConfig) gateway.RetryConfig {
	return gateway.RetryConfig{
		InitialDelay: time.Duration(cfg.InitialDelay) * time.Second,
		MaxDelay:     time.Duration(cfg.MaxDelay) * time.Second,
		MaxAttempts:  cfg.MaxAttempts,
	}
}

// healthCheck verifies infrastructure connections are healthy. The MQTT
// transport is excluded: the gateway opens it as part of its own state
// machine and reports failures through Status().
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
