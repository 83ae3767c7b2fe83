// Package main provides the entry point for the orchestratord HTTP server.
//
// orchestratord turns a natural-language instruction into a plan of text
// tasks and runs each task in an isolated execution unit, feeding every
// output into the next task.
//
// Usage:
//
//	orchestratord [-config path]
//	orchestratord version
//
// The server listens on the configured host and port (0.0.0.0:8000 by
// default) and shuts down gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestratord/internal/app"
	"github.com/fyrsmithlabs/orchestratord/internal/config"
	orchhttp "github.com/fyrsmithlabs/orchestratord/internal/http"
	"github.com/fyrsmithlabs/orchestratord/internal/logging"
	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
	"github.com/fyrsmithlabs/orchestratord/internal/telemetry"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/orchestratord/config.yaml)")
	flag.Parse()

	if flag.NArg() > 0 && flag.Arg(0) == "version" {
		printVersion()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("orchestratord: %v", err)
	}
}

func printVersion() {
	fmt.Printf("orchestratord %s\n", version)
	fmt.Printf("  commit: %s\n", gitCommit)
	fmt.Printf("  built:  %s\n", buildDate)
}

// run wires every component and serves until ctx is cancelled.
// A clean shutdown returns nil.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if health := tel.Health(); !health.Healthy || health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", health.Reason))
	}

	logger.Info(ctx, "starting orchestratord",
		zap.String("version", version),
		zap.String("commit", gitCommit),
		zap.String("driver", cfg.Runtime.Driver),
		zap.String("planner_model", cfg.Planner.Model))

	a, err := app.Build(cfg, logger, app.Options{
		Tracer: tel.Tracer("github.com/fyrsmithlabs/orchestratord/internal/pipeline"),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	metrics := orchhttp.NewHTTPMetrics(tel.Meter(orchhttp.InstrumentationName), logger.Underlying())

	srv, err := orchhttp.NewServer(a.Controller, logger, &orchhttp.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	}, orchhttp.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info(ctx, "server configured",
		zap.String("addr", cfg.Server.Addr()),
		zap.Strings("tasks", pipeline.Plan(a.Registry.Tasks()).Strings()),
		zap.Bool("events", cfg.Events.Enabled))

	err = srv.Start(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info(ctx, "server stopped")
		return nil
	}
	return err
}

// initLogger builds the structured logger, bridged to OpenTelemetry when
// telemetry export is enabled.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
