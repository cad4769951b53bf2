// Command substrated runs the consciousness substrate write-and-learn
// engine: it loads configuration, wires every subsystem via internal/app,
// and serves health/metrics over HTTP until signalled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthgraph/substrate/internal/app"
	"github.com/hearthgraph/substrate/internal/config"
	"github.com/hearthgraph/substrate/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "substrated: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "substrated: %v\n", err)
		}
		return 1
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("substrated starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "substrate"})
	if err != nil {
		slog.Error("failed to initialise telemetry provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(old, newCfg *config.Config) {
		diff := application.ApplyConfig(newCfg)
		if diff.LogLevelChanged {
			levelVar.Set(parseLevel(diff.NewLogLevel))
		}
		slog.Info("config reloaded",
			"log_level_changed", diff.LogLevelChanged,
			"weights_changed", diff.WeightsChanged,
			"membership_changed", diff.MembershipChanged,
			"stimulus_changed", diff.StimulusChanged,
			"health_changed", diff.HealthChanged,
		)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	server := newHTTPServer(cfg.Server.ListenAddr, application)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	slog.Info("engine ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newHTTPServer serves liveness/readiness and Prometheus metrics.
func newHTTPServer(addr string, application *app.App) *http.Server {
	mux := http.NewServeMux()
	application.HealthHandler().Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	handler := observe.Middleware(application.Metrics())(mux)
	return &http.Server{
		Addr:    addr,
		Handler: handler,
	}
}

// parseLevel maps a config log level string to its slog.Level, defaulting to
// info for anything unrecognized (including an empty string, which Diff
// reports when reloading a config whose log level did not actually change).
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
