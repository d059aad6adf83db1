package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pulsemon/pulsemon/internal/configs"
	"github.com/pulsemon/pulsemon/internal/normalizer"
	"github.com/pulsemon/pulsemon/internal/repositories/memory"
	"github.com/pulsemon/pulsemon/internal/runner"
	"github.com/pulsemon/pulsemon/internal/services"
	"github.com/pulsemon/pulsemon/internal/storage"
	"github.com/pulsemon/pulsemon/internal/worker"

	dbConfig "github.com/pulsemon/pulsemon/internal/configs/db"
	redisConfig "github.com/pulsemon/pulsemon/internal/configs/redis"
	httpTransport "github.com/pulsemon/pulsemon/internal/configs/transport/http"
	httpHandlers "github.com/pulsemon/pulsemon/internal/handlers/http"
	httpMiddlewares "github.com/pulsemon/pulsemon/internal/middlewares/http"
	dbRepo "github.com/pulsemon/pulsemon/internal/repositories/db"
	redisRepo "github.com/pulsemon/pulsemon/internal/repositories/redis"
)

// Application entry point.
func main() {
	printBuildInfo()

	if err := parseFlags(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

// Build information variables.
// These are set during build time via ldflags.
var (
	buildVersion string = "N/A"
	buildDate    string = "N/A"
	buildCommit  string = "N/A"
)

// printBuildInfo prints the build version, date, and commit hash to stdout.
func printBuildInfo() {
	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}

var (
	addr                     string
	databaseDriver           string
	databaseDSN              string
	redisAddr                string
	redisPassword            string
	redisDB                  int
	hotCapacity              int
	hotHorizonSeconds        int
	alertIntervalSeconds     int
	alertLookbackSeconds     int
	healthIntervalSeconds    int
	healthTimeoutSeconds     int
	collectIntervalSeconds   int
	retentionHours           int
	retentionIntervalMinutes int
	configFilePath           string
	migrationsDir            string = "migrations"
)

// fileConfig holds the optional JSON configuration file. Zero values
// mean "not set"; flags and environment variables take precedence.
type fileConfig struct {
	configs.ServerConfig
}

var fileCfg fileConfig

// init sets up command-line flags.
func init() {
	pflag.StringVarP(&addr, "address", "a", "", "server listen address")
	pflag.StringVar(&databaseDriver, "database-driver", "sqlite", "durable store driver (sqlite or pgx)")
	pflag.StringVarP(&databaseDSN, "database-dsn", "d", "", "durable store DSN (empty disables the durable tier)")
	pflag.StringVar(&redisAddr, "redis-addr", "", "redis address (empty disables the redis adapter)")
	pflag.StringVar(&redisPassword, "redis-password", "", "redis password")
	pflag.IntVar(&redisDB, "redis-db", 0, "redis database number")
	pflag.IntVar(&hotCapacity, "hot-capacity", 0, "points retained per metric name in the hot buffer")
	pflag.IntVar(&hotHorizonSeconds, "hot-horizon", 0, "hot buffer horizon in seconds")
	pflag.IntVar(&alertIntervalSeconds, "alert-interval", 0, "alert evaluation interval in seconds")
	pflag.IntVar(&alertLookbackSeconds, "alert-lookback", 0, "alert lookback window in seconds")
	pflag.IntVar(&healthIntervalSeconds, "health-interval", 0, "health probe interval in seconds")
	pflag.IntVar(&healthTimeoutSeconds, "health-timeout", 0, "per-probe timeout in seconds")
	pflag.IntVar(&collectIntervalSeconds, "collect-interval", 0, "host metrics collection interval in seconds")
	pflag.IntVar(&retentionHours, "retention-hours", 0, "metric retention boundary in hours")
	pflag.IntVar(&retentionIntervalMinutes, "retention-interval", 0, "prune cadence in minutes")
	pflag.StringVarP(&configFilePath, "config", "c", "", "path to JSON config file")
}

func parseFlags() error {
	pflag.Parse()

	if len(pflag.Args()) > 0 {
		return errors.New("unknown flags or arguments are provided")
	}

	if env := os.Getenv("CONFIG"); env != "" && configFilePath == "" {
		configFilePath = env
	}

	if configFilePath != "" {
		cfgBytes, err := os.ReadFile(configFilePath)
		if err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if err := json.Unmarshal(cfgBytes, &fileCfg); err != nil {
			return fmt.Errorf("error parsing config JSON: %w", err)
		}
	}

	// env vars take precedence over flags and the config file
	if env := os.Getenv("ADDRESS"); env != "" {
		addr = env
	}
	if env := os.Getenv("DATABASE_DRIVER"); env != "" {
		databaseDriver = env
	}
	if env := os.Getenv("DATABASE_DSN"); env != "" {
		databaseDSN = env
	}
	if env := os.Getenv("REDIS_ADDR"); env != "" {
		redisAddr = env
	}
	if env := os.Getenv("REDIS_PASSWORD"); env != "" {
		redisPassword = env
	}
	for _, v := range []struct {
		name string
		dst  *int
	}{
		{"REDIS_DB", &redisDB},
		{"HOT_CAPACITY", &hotCapacity},
		{"HOT_HORIZON", &hotHorizonSeconds},
		{"ALERT_INTERVAL", &alertIntervalSeconds},
		{"ALERT_LOOKBACK", &alertLookbackSeconds},
		{"HEALTH_INTERVAL", &healthIntervalSeconds},
		{"HEALTH_TIMEOUT", &healthTimeoutSeconds},
		{"COLLECT_INTERVAL", &collectIntervalSeconds},
		{"RETENTION_HOURS", &retentionHours},
		{"RETENTION_INTERVAL", &retentionIntervalMinutes},
	} {
		env := os.Getenv(v.name)
		if env == "" {
			continue
		}
		n, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid %s value, must be an integer: %w", v.name, err)
		}
		*v.dst = n
	}

	if databaseDriver != "sqlite" && databaseDriver != "pgx" {
		return errors.New("invalid database driver, must be 'sqlite' or 'pgx'")
	}

	return nil
}

// run wires the storage tiers, services, workers and HTTP surface, then
// blocks until shutdown.
func run(ctx context.Context) error {
	cfg, err := configs.NewServerConfig(
		configs.WithAddress(addr, fileCfg.Address, "localhost:8080"),
		configs.WithDatabase(databaseDriver, databaseDSN, fileCfg.DatabaseDSN),
		configs.WithRedis(redisPassword, redisDB, redisAddr, fileCfg.RedisAddr),
		configs.WithHotCapacity(hotCapacity, fileCfg.HotCapacity, memory.DefaultCapacity),
		configs.WithHotHorizonSeconds(hotHorizonSeconds, fileCfg.HotHorizonSeconds, int(storage.DefaultHotHorizon/time.Second)),
		configs.WithAlertIntervalSeconds(alertIntervalSeconds, fileCfg.AlertIntervalSeconds, int(worker.DefaultAlertInterval/time.Second)),
		configs.WithAlertLookbackSeconds(alertLookbackSeconds, fileCfg.AlertLookbackSeconds, int(services.DefaultLookback/time.Second)),
		configs.WithHealthIntervalSeconds(healthIntervalSeconds, fileCfg.HealthIntervalSeconds, int(worker.DefaultHealthInterval/time.Second)),
		configs.WithHealthTimeoutSeconds(healthTimeoutSeconds, fileCfg.HealthTimeoutSeconds, int(services.DefaultProbeTimeout/time.Second)),
		configs.WithCollectIntervalSeconds(collectIntervalSeconds, fileCfg.CollectIntervalSeconds, int(worker.DefaultCollectInterval/time.Second)),
		configs.WithRetentionHours(retentionHours, fileCfg.RetentionHours, int(worker.DefaultRetention/time.Hour)),
		configs.WithRetentionIntervalMinutes(retentionIntervalMinutes, fileCfg.RetentionIntervalMinutes, int(worker.DefaultRetentionInterval/time.Minute)),
		configs.WithTargets(fileCfg.Targets...),
	)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	hot := memory.NewMetricRepository(cfg.HotCapacity)
	backends := []storage.Backend{hot}

	var durable storage.Backend
	var alertRepo services.AlertRepository = memory.NewAlertRepository()
	var dbConn *sqlx.DB

	if cfg.DatabaseDSN != "" {
		dbConn, err = dbConfig.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		dialect := "postgres"
		if cfg.DatabaseDriver == "sqlite" {
			dialect = "sqlite3"
		}
		if err := goose.SetDialect(dialect); err != nil {
			return err
		}
		if err := goose.Up(dbConn.DB, migrationsDir); err != nil {
			return err
		}

		dur := dbRepo.NewMetricRepository(dbConn)
		durable = dur
		backends = append(backends, dur)
		alertRepo = dbRepo.NewAlertRepository(dbConn)
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisConfig.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		backends = append(backends, redisRepo.NewMetricRepository(rdb, redisRepo.DefaultTTL))
	}

	writer := storage.NewFanOut(logger, storage.DefaultWriteTimeout, backends...)
	reader := storage.NewTiered(hot, durable,
		storage.WithHorizon(time.Duration(cfg.HotHorizonSeconds)*time.Second))

	metricSvc := services.NewMetricService(normalizer.New(), writer, reader, logger)

	alertSvc := services.NewAlertService(alertRepo, reader, services.NewLogNotifier(logger), logger,
		services.WithLookback(time.Duration(cfg.AlertLookbackSeconds)*time.Second))

	probeTimeout := time.Duration(cfg.HealthTimeoutSeconds) * time.Second
	probeClient, err := httpTransport.New(httpTransport.WithTimeout(probeTimeout))
	if err != nil {
		return err
	}
	healthSvc := services.NewHealthService(probeClient, cfg.Targets, metricSvc, logger,
		services.WithProbeTimeout(probeTimeout))

	overviewSvc := services.NewOverviewService(hot, reader, healthSvc, alertSvc)

	rnr := runner.New()
	rnr.AddWorker(worker.NewAlertWorker(alertSvc,
		time.Duration(cfg.AlertIntervalSeconds)*time.Second, logger))
	rnr.AddWorker(worker.NewHealthWorker(healthSvc,
		time.Duration(cfg.HealthIntervalSeconds)*time.Second, logger))

	pruners := make([]worker.Pruner, 0, len(backends))
	for _, b := range backends {
		pruners = append(pruners, b)
	}
	rnr.AddWorker(worker.NewRetentionWorker(pruners,
		time.Duration(cfg.RetentionHours)*time.Hour,
		time.Duration(cfg.RetentionIntervalMinutes)*time.Minute, logger))

	publish := func(ctx context.Context, samples []normalizer.RawSample) error {
		_, err := metricSvc.Ingest(ctx, samples)
		return err
	}
	rnr.AddWorker(worker.NewHostCollector(publish,
		time.Duration(cfg.CollectIntervalSeconds)*time.Second, logger))

	r := chi.NewRouter()
	r.Use(httpMiddlewares.LoggingMiddleware(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/metrics", httpHandlers.NewMetricIngestHandler(metricSvc))
		r.Post("/query", httpHandlers.NewMetricQueryHandler(metricSvc))
		r.Post("/export/{format}", httpHandlers.NewMetricExportHandler(metricSvc))

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", httpHandlers.NewAlertCreateHandler(alertSvc))
			r.Get("/", httpHandlers.NewAlertListHandler(alertSvc))
			r.Get("/{id}", httpHandlers.NewAlertGetHandler(alertSvc))
			r.Patch("/{id}", httpHandlers.NewAlertUpdateHandler(alertSvc))
			r.Delete("/{id}", httpHandlers.NewAlertDeleteHandler(alertSvc))
			r.Get("/{id}/history", httpHandlers.NewAlertHistoryHandler(alertSvc))
		})

		r.Post("/health/run", httpHandlers.NewHealthRunHandler(healthSvc))
		r.Get("/health", httpHandlers.NewHealthStatusHandler(healthSvc))
		r.Get("/overview", httpHandlers.NewOverviewHandler(overviewSvc))
	})

	if dbConn != nil {
		r.Get("/ping", httpHandlers.NewDBPingHandler(dbConn))
	}

	rnr.AddHTTPServer(&http.Server{Addr: cfg.Address, Handler: r})

	logger.Info("starting server",
		zap.String("address", cfg.Address),
		zap.Int("backends", len(backends)),
		zap.Int("targets", len(cfg.Targets)),
	)

	return rnr.Run(ctx)
}
