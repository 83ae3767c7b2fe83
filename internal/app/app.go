// Package app assembles a pipeline controller and its collaborators from
// configuration. It is shared by the daemon and by orchctl's local mode.
package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestratord/internal/config"
	"github.com/fyrsmithlabs/orchestratord/internal/events"
	"github.com/fyrsmithlabs/orchestratord/internal/logging"
	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
	"github.com/fyrsmithlabs/orchestratord/internal/planner"
	"github.com/fyrsmithlabs/orchestratord/internal/registry"
	"github.com/fyrsmithlabs/orchestratord/internal/runtime"
	"github.com/fyrsmithlabs/orchestratord/internal/workspace"
)

// Options tune Build beyond what the config file holds.
type Options struct {
	// Tracer records run and stage spans. Nil uses the global provider.
	Tracer trace.Tracer

	// DisableEvents skips NATS even when events are enabled in config.
	DisableEvents bool
}

// App holds the controller and the resources it owns.
type App struct {
	Controller *pipeline.Controller
	Registry   *registry.Registry

	closers []func() error
}

// Close releases all infrastructure resources in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// Build initializes the registry, execution driver, planner, event
// publisher and workspace manager, then the controller over them.
// On error every resource opened so far is released.
func Build(cfg *config.Config, logger *logging.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	a := &App{}

	reg, err := registry.New(cfg.TaskUnits())
	if err != nil {
		return nil, fmt.Errorf("failed to build task registry: %w", err)
	}
	a.Registry = reg

	driver, err := newDriver(cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := driver.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	p, err := newPlanner(cfg, reg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var pub events.Publisher = events.Nop{}
	if cfg.Events.Enabled && !opts.DisableEvents {
		publisher, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Events.NATSURL, err)
		}
		logger.Info(ctx, "connected to NATS",
			zap.String("url", cfg.Events.NATSURL),
			zap.String("subject_prefix", cfg.Events.SubjectPrefix))
		pub = publisher
		a.closers = append(a.closers, publisher.Close)
	}

	a.Controller, err = pipeline.NewController(pipeline.Config{
		Registry:   reg,
		Workspaces: workspace.NewManager(cfg.Workspace.BaseDir),
		Driver:     driver,
		Planner:    p,
		Events:     pub,
		Logger:     logger,
		Tracer:     opts.Tracer,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	return a, nil
}

func newDriver(cfg *config.Config, logger *logging.Logger) (runtime.Driver, error) {
	if cfg.Runtime.Driver == config.DriverProcess {
		return runtime.NewProcessDriver(), nil
	}
	d, err := runtime.NewDockerDriver(runtime.DockerConfig{
		Host:       cfg.Runtime.DockerHost,
		InputMount: cfg.Runtime.InputMount,
	}, logger.Underlying())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker driver: %w", err)
	}
	return d, nil
}

func newPlanner(cfg *config.Config, reg *registry.Registry, logger *logging.Logger) (planner.Planner, error) {
	llmCfg := planner.LLMConfig{
		BaseURL:     cfg.Planner.BaseURL,
		Model:       cfg.Planner.Model,
		APIKey:      cfg.Planner.APIKey.Value(),
		Temperature: cfg.Planner.Temperature,
		MaxTokens:   cfg.Planner.MaxTokens,
		RateLimit:   cfg.Planner.RateLimit,
		Tasks:       reg.Tasks(),
	}
	if cfg.Planner.PromptFile != "" {
		tmpl, err := planner.LoadPromptTemplate(cfg.Planner.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompt template: %w", err)
		}
		llmCfg.PromptTemplate = tmpl
	}
	if !cfg.Planner.APIKey.IsSet() {
		logger.Warn(context.Background(), "no planner API key configured; planning requests will fail",
			zap.String("env", config.FallbackAPIKeyEnv))
	}
	p, err := planner.NewLLMPlanner(llmCfg, logger.Underlying())
	if err != nil {
		return nil, fmt.Errorf("failed to create planner: %w", err)
	}
	if cfg.Planner.APIKey.IsSet() {
		logger.Debug(context.Background(), "planner configured",
			zap.String("base_url", cfg.Planner.BaseURL),
			zap.String("model", cfg.Planner.Model),
			logging.Secret("api_key", cfg.Planner.APIKey))
	}
	return p, nil
}
