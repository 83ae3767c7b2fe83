package app

import (
	"context"
	goruntime "runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/orchestratord/internal/config"
	"github.com/fyrsmithlabs/orchestratord/internal/logging"
	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

func processConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Runtime.Driver = config.DriverProcess
	cfg.Workspace.BaseDir = t.TempDir()
	cfg.Tasks = map[string]config.TaskConfig{
		"echo":  {Command: []string{"cat", "{input}"}},
		"shout": {Command: []string{"sh", "-c", `tr a-z A-Z < "$TASK_INPUT"`}},
	}
	return cfg
}

func TestBuild_ProcessDriver(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	a, err := Build(processConfig(t), logging.NewNop(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []registry.TaskID{"echo", "shout"}, a.Registry.Tasks())

	outcome := a.Controller.Execute(context.Background(), pipeline.Plan{"echo", "shout"}, " hello ")
	require.True(t, outcome.Completed(), "run failed: %v", outcome.Err)
	assert.Equal(t, "HELLO", outcome.FinalResult)
	assert.Equal(t, []registry.TaskID{"echo", "shout"}, outcome.Outputs.Keys())
}

func TestBuild_DefaultTasks(t *testing.T) {
	cfg := config.Default()
	cfg.Runtime.Driver = config.DriverProcess

	a, err := Build(cfg, nil, Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []registry.TaskID{"clean_text", "sentiment_analysis", "summarization"}, a.Registry.Tasks())
}

func TestBuild_PlannerWithoutKey(t *testing.T) {
	log := logging.NewTestLogger()

	a, err := Build(processConfig(t), log.Logger, Options{})
	require.NoError(t, err)
	defer a.Close()

	log.AssertLogged(t, zapcore.WarnLevel, "no planner API key configured; planning requests will fail")

	outcome := a.Controller.Run(context.Background(), "clean it", "x")
	assert.Equal(t, pipeline.StatePlanningError, outcome.State)
	assert.Equal(t, "planning failed: missing planner API key", pipeline.ToResponse(outcome).Error)
}

func TestBuild_PlannerKeyNeverLogged(t *testing.T) {
	log := logging.NewTestLogger()
	cfg := processConfig(t)
	cfg.Planner.APIKey = config.Secret("gsk_abcdefghijklmnopqrstuv")

	a, err := Build(cfg, log.Logger, Options{})
	require.NoError(t, err)
	defer a.Close()

	log.AssertNotLogged(t, zapcore.WarnLevel, "no planner API key configured")
	log.AssertField(t, "planner configured", "api_key", "[REDACTED:26]")
}

func TestBuild_Errors(t *testing.T) {
	t.Run("invalid task name", func(t *testing.T) {
		cfg := processConfig(t)
		cfg.Tasks["../escape"] = config.TaskConfig{Command: []string{"cat"}}

		_, err := Build(cfg, nil, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to build task registry")
	})

	t.Run("missing prompt file", func(t *testing.T) {
		cfg := processConfig(t)
		cfg.Planner.PromptFile = "/nonexistent/prompt.txt"

		_, err := Build(cfg, nil, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load prompt template")
	})

	t.Run("unreachable nats", func(t *testing.T) {
		cfg := processConfig(t)
		cfg.Events.Enabled = true
		cfg.Events.NATSURL = "nats://127.0.0.1:1"

		_, err := Build(cfg, nil, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to NATS")
	})

	t.Run("events can be disabled", func(t *testing.T) {
		cfg := processConfig(t)
		cfg.Events.Enabled = true
		cfg.Events.NATSURL = "nats://127.0.0.1:1"

		a, err := Build(cfg, nil, Options{DisableEvents: true})
		require.NoError(t, err)
		assert.NoError(t, a.Close())
	})
}
