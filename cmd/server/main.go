package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/api"
	"github.com/tendant/simple-messages/pkg/simplemessages/config"
	"github.com/tendant/simple-messages/pkg/simplemessages/metrics"
	"github.com/tendant/simple-messages/pkg/simplemessages/urlstrategy"
)

// apiMountPath is where the HTTP API is mounted.
const apiMountPath = "/api/v1"

// Config holds process level settings. Storage, database and media settings
// are read by config.WithEnv using EnvPrefix.
type Config struct {
	Environment    string `env:"ENVIRONMENT" env-default:"development"`
	LogLevel       string `env:"LOG_LEVEL" env-default:"info"`
	ErrorsToStderr bool   `env:"LOG_ERRORS_TO_STDERR" env-default:"false"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" env-default:"true"`
	EnvPrefix      string `env:"SIMPLE_MESSAGES_ENV_PREFIX" env-default:""`
	MigrateOnly    bool   `env:"MIGRATE_ONLY" env-default:"false"`
}

func main() {
	// Load .env if present; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "err", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	serverConfig, err := config.Load(
		config.WithEnvironment(cfg.Environment),
		config.WithEnv(cfg.EnvPrefix),
		defaultMediaProxyBase,
	)
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if serverConfig.DatabaseType == config.DatabasePostgres {
		if err := config.PingPostgres(ctx, serverConfig.DatabaseURL, serverConfig.DBSchema); err != nil {
			slog.Error("Database is not reachable", "err", err)
			os.Exit(1)
		}
	}

	if cfg.MigrateOnly {
		if err := serverConfig.Migrate(ctx); err != nil {
			slog.Error("Failed to run migrations", "err", err)
			os.Exit(1)
		}
		return
	}

	options := []simplemessages.Option{simplemessages.WithLogger(logger)}
	var httpMetrics *metrics.HTTPMetrics
	if cfg.MetricsEnabled {
		options = append(options, simplemessages.WithEventSink(metrics.NewEventSink(prometheus.DefaultRegisterer)))
		httpMetrics = metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
	}

	svc, closer, err := serverConfig.BuildService(ctx, options...)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer closer.Close()

	slog.Info("Simple Messages configured",
		"environment", serverConfig.Environment,
		"database", serverConfig.DatabaseType,
		"default_storage", serverConfig.DefaultStorageBackend,
		"url_strategy", serverConfig.URLStrategy)

	handlerOptions := []api.HandlerOption{
		api.WithLogger(logger),
		api.WithMaxBodyBytes(serverConfig.Limits.MaxMediaBytes + 1<<20),
	}
	if httpMetrics != nil {
		handlerOptions = append(handlerOptions, api.WithMetrics(httpMetrics))
	}
	handler := api.NewHandler(svc, handlerOptions...)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	if cfg.MetricsEnabled {
		server.R.Handle("/metrics", promhttp.Handler())
	}
	server.R.Mount(apiMountPath, handler.Routes())

	// Start server
	server.Run()
}

// defaultMediaProxyBase points media proxy URLs at the mounted API when
// MEDIA_BASE_URL is unset.
func defaultMediaProxyBase(c *config.ServerConfig) error {
	if c.URLStrategy == string(urlstrategy.TypeMediaProxy) && c.MediaBaseURL == "" {
		c.MediaBaseURL = apiMountPath
	}
	return nil
}
