// Scopecore - Microscope Automation Core
//
// This is the main entry point for the scopecore daemon. Scopecore is the
// command-and-control core of an automated light microscope, designed for:
//   - Unattended multi-day acquisition runs
//   - Deterministic hardware access through a single command actor
//   - Offline-first operation on the lab network
//   - Open interfaces (REST, WebSocket, MQTT)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/calderlab/scopecore/migrations"

	"github.com/calderlab/scopecore/internal/acquisition"
	"github.com/calderlab/scopecore/internal/actor"
	"github.com/calderlab/scopecore/internal/api"
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/channels"
	"github.com/calderlab/scopecore/internal/hardware"
	"github.com/calderlab/scopecore/internal/history"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/database"
	"github.com/calderlab/scopecore/internal/infrastructure/influxdb"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
	"github.com/calderlab/scopecore/internal/infrastructure/mqtt"
	"github.com/calderlab/scopecore/internal/infrastructure/tsdb"
	"github.com/calderlab/scopecore/internal/remote"
	"github.com/calderlab/scopecore/internal/telemetry"
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

// Shutdown tuning for an in-flight acquisition.
const (
	abortDrainTimeout = 10 * time.Second
	abortPollInterval = 50 * time.Millisecond
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
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
	log.Info("starting scopecore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration. The built-in defaults describe a fully simulated
	// instrument, so a missing file at the default path is fine; a path set
	// via SCOPECORE_CONFIG must exist.
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	switch {
	case err == nil:
		log.Info("configuration loaded", "path", configPath)
	case os.Getenv("SCOPECORE_CONFIG") == "" && errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
		log.Info("no configuration file found, using defaults", "path", configPath)
	default:
		return fmt.Errorf("loading config: %w", err)
	}

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
	log.Info("database migrations complete")

	// Connect the telemetry backend (optional). InfluxDB takes precedence
	// when both are enabled; the recorder only needs one point writer.
	var points telemetry.Writer
	var influxClient *influxdb.Client
	var tsdbClient *tsdb.Client
	switch {
	case cfg.InfluxDB.Enabled:
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		points = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	case cfg.TSDB.Enabled:
		tsdbClient, err = tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			return fmt.Errorf("connecting to VictoriaMetrics: %w", err)
		}
		defer func() {
			log.Info("closing VictoriaMetrics connection")
			if closeErr := tsdbClient.Close(); closeErr != nil {
				log.Error("error closing VictoriaMetrics", "error", closeErr)
			}
		}()
		tsdbClient.SetOnError(func(err error) {
			log.Error("VictoriaMetrics write error", "error", err)
		})
		points = tsdbClient
		log.Info("VictoriaMetrics connected", "url", cfg.TSDB.URL)
	default:
		log.Info("telemetry backends disabled")
	}

	// Start the event bus
	b := bus.New()
	defer func() {
		log.Info("stopping event bus")
		b.Stop()
	}()

	// Start the command actor
	a := actor.New(actor.Config{
		WorkerPoolSize: cfg.Acquisition.WorkerPool.Size,
		PollInterval:   cfg.ActorPollInterval(),
	}, log)
	a.Start()
	defer func() {
		log.Info("stopping command actor")
		a.Stop()
	}()
	log.Info("command actor started",
		"worker_pool_size", cfg.Acquisition.WorkerPool.Size,
	)

	// Build the instrument rig. Simulated drivers stand in for every device
	// until vendor adapters land, sharing one focus model so autofocus and
	// the camera agree on where the sample is sharp.
	rig := hardware.NewSimRig(cfg.Hardware, b, log)
	rig.RegisterHandlers(a)
	log.Info("hardware rig initialised",
		"drivers", "simulated",
		"fluidics", rig.Fluidics != nil,
	)

	// Initialise channel configuration registry
	registry := channels.NewRegistry(channels.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading channel registry: %w", refreshErr)
	}
	configs, err := registry.List(ctx)
	if err != nil {
		return fmt.Errorf("listing channel configurations: %w", err)
	}
	log.Info("channel registry initialised", "configurations", len(configs))

	// Microscope mode tracker (active channel + objective)
	mode := channels.NewMode(registry, rig, b, cfg.Instrument.DefaultObjective, log)
	mode.RegisterHandlers(a)

	// Acquisition controller with an in-memory save sink. The sink seam is
	// where a disk writer slots in alongside the real camera.
	sink := acquisition.NewMemorySink(0)
	controller := acquisition.NewController(b, a, rig, registry, mode, sink,
		cfg.Acquisition, cfg.Hardware.Stage, log)
	controller.RegisterHandlers()

	// Route bus commands onto the actor queue. Every command type with a
	// registered handler gets a route, so this must come after all
	// RegisterHandlers calls.
	router := actor.NewRouter(b, a, log)
	router.RouteRegistered()
	defer func() {
		log.Info("closing command router")
		router.Close()
	}()
	defer abortActiveRun(controller, log)

	// Record acquisition runs into history
	runs := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(runs, controller, log)
	recorder.Subscribe(b)

	// Mirror bus notifications into the telemetry backend
	if points != nil {
		tel := telemetry.NewRecorder(points, cfg.Instrument.ID)
		tel.Subscribe(b)
		log.Info("telemetry recorder subscribed", "instrument", cfg.Instrument.ID)
	}

	// Connect MQTT and start the remote bridge (optional)
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		bridge, bridgeErr := remote.New(remote.Options{
			Broker: mqttClient,
			Bus:    b,
			Logger: log,
			QoS:    byte(cfg.MQTT.QoS),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating remote bridge: %w", bridgeErr)
		}
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting remote bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping remote bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("remote bridge disabled")
	}

	// Start the API server
	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Bus:        b,
		Actor:      a,
		Controller: controller,
		Channels:   registry,
		History:    runs,
		Recorder:   recorder,
		Sink:       sink,
		TSDB:       tsdbClient,
		MQTT:       mqttClient,
		DB:         db.DB,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, srv, mqttClient, influxClient, tsdbClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Remote bridge, then MQTT (if enabled)
	// 3. Abort any in-flight acquisition
	// 4. Command router, actor, bus
	// 5. Telemetry backend (flushes pending points)
	// 6. Database

	log.Info("scopecore stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SCOPECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SCOPECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// abortActiveRun requests an abort for any acquisition still in flight and
// waits for the worker to wind down, so captured frames are flushed before
// the actor stops.
func abortActiveRun(controller *acquisition.Controller, log *logging.Logger) {
	if !controller.Running() {
		return
	}

	log.Info("aborting in-flight acquisition")
	if err := controller.RequestAbort(); err != nil {
		log.Warn("abort request failed", "error", err)
		return
	}

	deadline := time.Now().Add(abortDrainTimeout)
	for controller.Running() {
		if time.Now().After(deadline) {
			log.Warn("acquisition did not stop before shutdown deadline")
			return
		}
		time.Sleep(abortPollInterval)
	}
	log.Info("acquisition aborted")
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - srv: API server to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - tsdbClient: VictoriaMetrics client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, srv *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client, tsdbClient *tsdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check API server
	if err := srv.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check telemetry backend (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if tsdbClient != nil {
		if err := tsdbClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("victoriametrics: %w", err)
		}
	}

	return nil
}
