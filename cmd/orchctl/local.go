package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/orchestratord/internal/app"
	"github.com/fyrsmithlabs/orchestratord/internal/config"
	orchhttp "github.com/fyrsmithlabs/orchestratord/internal/http"
	"github.com/fyrsmithlabs/orchestratord/internal/logging"
	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
)

// runLocal executes req in-process with the same configuration the daemon
// would use. Logs go to stderr so stdout carries only the result.
func runLocal(ctx context.Context, configPath string, req orchhttp.RunRequest) (pipeline.Response, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return pipeline.Response{}, "", fmt.Errorf("failed to load config: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging, false)
	if err != nil {
		return pipeline.Response{}, "", err
	}
	logCfg.Output.Stdout = false
	logCfg.Output.Stderr = true

	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return pipeline.Response{}, "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.Build(cfg, logger, app.Options{})
	if err != nil {
		return pipeline.Response{}, "", err
	}
	defer a.Close()

	var outcome pipeline.Outcome
	if req.Plan != nil {
		outcome = a.Controller.Execute(ctx, pipeline.Plan(req.Plan), req.Text)
	} else {
		outcome = a.Controller.Run(ctx, req.Instruction, req.Text)
	}
	return pipeline.ToResponse(outcome), outcome.RunID, nil
}
