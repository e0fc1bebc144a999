// Gray Logic Device - IoT device runtime
//
// This is the main entry point for a Gray Logic field device. It wires the
// element registry, network drivers and the MQTT protocol layer into the
// device main loop, and serves the local provisioning API.
//
// Usage:
//
//	graylogic-device                 # run with $GRAYLOGIC_DEVICE_CONFIG or configs/device.yaml
//	graylogic-device hash-password   # read a password on stdin, print its argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-device/internal/api"
	"github.com/nerrad567/gray-logic-device/internal/auth"
	"github.com/nerrad567/gray-logic-device/internal/device"
	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/elements/virtual"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/protocol/mqttlayer"
	"github.com/nerrad567/gray-logic-device/internal/storage"
	"github.com/nerrad567/gray-logic-device/internal/telemetry"
	"github.com/nerrad567/gray-logic-device/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/device.yaml"

// errRestartRequested makes the process exit non-zero so the supervisor
// restarts it.
var errRestartRequested = errors.New("restart requested by server")

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Device",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	// Storage
	db, err := database.Open(database.Config{
		Path:        cfg.Storage.Path,
		WALMode:     cfg.Storage.WALMode,
		BusyTimeout: time.Duration(cfg.Storage.BusyTimeout) * time.Second,
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
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	devConfig, err := storage.NewSQLiteConfig(ctx, db)
	if err != nil {
		return fmt.Errorf("loading config storage: %w", err)
	}
	devState, err := storage.NewSQLiteState(ctx, db)
	if err != nil {
		return fmt.Errorf("loading state storage: %w", err)
	}
	log.Info("storage ready", "path", db.Path())

	// Network
	netMgr, err := buildNetwork(cfg.Network, log)
	if err != nil {
		return fmt.Errorf("setting up network: %w", err)
	}

	// Elements, protocols and the device
	elements := element.NewRegistry()
	if err := addElements(elements, cfg.Elements); err != nil {
		return fmt.Errorf("registering elements: %w", err)
	}
	protocols := protocol.NewRegistry()
	dev := device.New(device.Config{
		Name:              cfg.Device.Name,
		SoftwareVersion:   version,
		HostnamePrefix:    cfg.Device.HostnamePrefix,
		HostnameMACBytes:  cfg.Device.HostnameMACBytes,
		LoopInterval:      cfg.LoopInterval(),
		TimerInterval:     cfg.TimerInterval(),
		FastTimerInterval: cfg.FastTimerInterval(),
		SaveStateInterval: cfg.SaveStateInterval(),
	}, elements, netMgr, protocols, devConfig, devState)
	dev.SetLogger(log.With("component", "device"))

	layer := mqttlayer.New(netMgr, dev)
	layer.SetLogger(log.With("component", "mqtt"))
	if err := protocols.Add(layer); err != nil {
		return fmt.Errorf("registering mqtt layer: %w", err)
	}
	if seeded, err := seedMQTTSettings(devConfig, cfg.MQTT); err != nil {
		return fmt.Errorf("seeding mqtt settings: %w", err)
	} else if seeded {
		log.Info("mqtt settings seeded from config file", "server", cfg.MQTT.Server)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector, err = metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		dev.SetMetrics(collector)
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
			log.Warn("InfluxDB write error", "error", err)
		})
		interval := time.Duration(cfg.InfluxDB.SampleInterval) * time.Second
		if _, err := elements.Add(telemetry.NewRecorder(elements, influxClient, dev, interval)); err != nil {
			return fmt.Errorf("registering telemetry recorder: %w", err)
		}
		log.Info("InfluxDB telemetry enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	dev.OnRestartRequested(func() {
		log.Warn("restart requested by server")
		stop(errRestartRequested)
	})

	if err := dev.Begin(ctx); err != nil {
		return fmt.Errorf("starting device: %w", err)
	}
	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log.With("component", "api"),
			Device:      dev,
			Metrics:     collector,
			MetricsPath: cfg.Metrics.Path,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(runCtx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if cfg.Network.MDNS {
		go advertise(runCtx, netMgr, cfg.API.Port, dev.GUID(), log)
	}

	log = log.WithDevice(dev.GUID(), dev.Hostname())
	log.Info("initialisation complete")
	if err := dev.Run(runCtx); err != nil {
		return fmt.Errorf("device loop: %w", err)
	}
	if cause := context.Cause(runCtx); errors.Is(cause, errRestartRequested) {
		return cause
	}

	log.Info("Gray Logic Device stopped")
	return nil
}

// healthCheck verifies the local infrastructure. The MQTT session is not
// checked: it connects asynchronously once the network is ready.
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

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_DEVICE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(config.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// addElements registers the configured virtual elements.
func addElements(r *element.Registry, cfg config.ElementsConfig) error {
	for _, n := range cfg.Relays {
		if _, err := r.Add(virtual.NewRelay(n)); err != nil {
			return fmt.Errorf("relay %d: %w", n, err)
		}
	}
	for _, n := range cfg.Thermostats {
		if _, err := r.Add(virtual.NewThermostat(n)); err != nil {
			return fmt.Errorf("thermostat %d: %w", n, err)
		}
	}
	return nil
}

// seedMQTTSettings writes the config file's MQTT section into the device
// storage on first boot. Settings the device already holds win.
func seedMQTTSettings(cfg storage.Config, m config.MQTTConfig) (bool, error) {
	if m.Server == "" {
		return false, nil
	}
	if _, err := cfg.GetString(mqttlayer.KeyServer); !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	s := mqttlayer.Settings{
		Server:  m.Server,
		Port:    int32(m.Port), //nolint:gosec // G115: validated port range
		User:    m.Username,
		Pass:    m.Password,
		QoS:     uint8(m.QoS), //nolint:gosec // G115: validated 0-2
		TLS:     m.TLS,
		Auth:    m.Auth,
		Retain:  m.Retain,
		Enabled: m.Enabled,
	}
	if err := s.Save(cfg); err != nil {
		return false, err
	}
	return true, nil
}

// hashPassword reads one line from r and writes its argon2id hash to w.
func hashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
