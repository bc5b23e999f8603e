// Lamp Fleet Core - device state and protocol transcoding for connected lamps.
//
// The process subscribes to lamp status reports over MQTT, keeps the
// authoritative lamp state in SQLite, serves the REST and WebSocket API,
// and runs the liveness and automation loops.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/lampfleet-core/migrations"

	"github.com/nerrad567/lampfleet-core/internal/api"
	"github.com/nerrad567/lampfleet-core/internal/audit"
	"github.com/nerrad567/lampfleet-core/internal/auth"
	"github.com/nerrad567/lampfleet-core/internal/automation"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/database"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/lampfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lampfleet-core/internal/lamp"
	"github.com/nerrad567/lampfleet-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "LAMPFLEET_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command line flags.
type options struct {
	configPath    string
	mintUser      string
	mintRole      string
	migrateStatus bool
	migrateDown   bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("lampfleet", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config (default $"+configEnv+" or "+defaultConfigPath+")")
	flags.StringVar(&opts.mintUser, "mint-token", "", "print an access token for this username and exit")
	flags.StringVar(&opts.mintRole, "role", string(auth.RoleUser), "role embedded by --mint-token (user or admin)")
	flags.BoolVar(&opts.migrateStatus, "migrate-status", false, "print applied and pending schema migrations and exit")
	flags.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the latest schema migration and exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if opts.configPath == "" {
		opts.configPath = configPath()
	}
	return opts, nil
}

// configPath returns LAMPFLEET_CONFIG if set, otherwise the default.
func configPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.mintUser != "" {
		return mintToken(stdout, cfg, opts.mintUser, auth.Role(opts.mintRole))
	}
	if opts.migrateStatus || opts.migrateDown {
		return runMigrations(ctx, stdout, cfg.Database, opts.migrateDown)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting Lamp Fleet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

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
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var mirror telemetry.StatusMirror
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
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
		mirror = influxClient
		log.Info("InfluxDB mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	lamps := lamp.NewSQLiteRepository(db.DB)
	metrics := lamp.NewSQLiteMetricRepository(db.DB)
	alerts := lamp.NewSQLiteAlertRepository(db.DB)
	locks := lamp.NewLocks()

	svc := lamp.NewService(lamp.ServiceDeps{
		Lamps:            lamps,
		Metrics:          metrics,
		Alerts:           alerts,
		Locks:            locks,
		MQTT:             mqttClient,
		Hub:              hub,
		Logger:           log,
		OfflineThreshold: cfg.Telemetry.OfflineAfter(),
	})
	hub.SetAuthorizer(func(caller auth.Caller, lampID string) bool {
		_, err := svc.Get(ctx, caller, lampID)
		return err == nil
	})

	ingestor := telemetry.NewIngestor(telemetry.IngestorConfig{
		Lamps:   lamps,
		Metrics: metrics,
		Alerts:  alerts,
		Locks:   locks,
		Mirror:  mirror,
		Hub:     hub,
		Logger:  log.With("component", "telemetry"),
	})
	statusTopic := mqtt.Topics{}.AllLampStatus()
	if subErr := mqttClient.Subscribe(statusTopic, byte(cfg.MQTT.QoS), ingestor.HandleMessage); subErr != nil {
		return fmt.Errorf("subscribing to %s: %w", statusTopic, subErr)
	}
	defer func() {
		if unsubErr := mqttClient.Unsubscribe(statusTopic); unsubErr != nil && !errors.Is(unsubErr, mqtt.ErrNotConnected) {
			log.Warn("error unsubscribing", "topic", statusTopic, "error", unsubErr)
		}
	}()
	log.Info("listening for lamp status", "topic", statusTopic)

	liveness := telemetry.NewLivenessTracker(telemetry.LivenessConfig{
		Lamps:     lamps,
		Metrics:   metrics,
		Locks:     locks,
		Hub:       hub,
		Logger:    log.With("component", "liveness"),
		Interval:  cfg.Telemetry.LivenessEvery(),
		Threshold: cfg.Telemetry.OfflineAfter(),
	})
	liveness.Start(ctx)
	defer liveness.Stop()

	if cfg.Automation.Enabled {
		loop := automation.NewLoop(automation.Config{
			Lamps:                lamps,
			Locks:                locks,
			MQTT:                 mqttClient,
			Hub:                  hub,
			Logger:               log.With("component", "automation"),
			Location:             cfg.Location(),
			Interval:             cfg.Automation.Every(),
			CircadianHysteresis:  &cfg.Automation.CircadianHysteresis,
			BrightnessHysteresis: &cfg.Automation.BrightnessHysteresis,
		})
		loop.Start(ctx)
		defer loop.Stop()
		log.Info("automation loop started", "interval", cfg.Automation.Every(), "timezone", cfg.Site.Timezone)
	} else {
		log.Info("automation disabled")
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Lamps:    svc,
		MQTT:     mqttClient,
		DB:       db.DB,
		Hub:      hub,
		Audit:    audit.NewSQLiteRepository(db.DB),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, statusTopic); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// mintToken prints a signed access token. Tokens normally come from the
// account service; this is for operators and local testing.
func mintToken(w io.Writer, cfg *config.Config, username string, role auth.Role) error {
	if !auth.IsValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	token, err := auth.GenerateAccessToken(auth.Caller{Username: username, Role: role},
		cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// brokerStatus is the part of *mqtt.Client the startup check needs.
type brokerStatus interface {
	HealthCheck(ctx context.Context) error
	HasSubscription(topic string) bool
	SubscriptionCount() int
}

// runMigrations prints the schema state, rolling back the latest migration
// first when down is set. The service must not be running.
func runMigrations(ctx context.Context, w io.Writer, cfg config.DatabaseConfig, down bool) error {
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // nothing left to flush

	if down {
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, r := range applied {
		fmt.Fprintf(w, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// healthCheck verifies the infrastructure connections and that the status
// subscription is in place.
func healthCheck(ctx context.Context, db *database.DB, broker brokerStatus, statusTopic string) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := broker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if !broker.HasSubscription(statusTopic) {
		return fmt.Errorf("mqtt: not subscribed to %s (%d subscriptions)", statusTopic, broker.SubscriptionCount())
	}
	return nil
}
