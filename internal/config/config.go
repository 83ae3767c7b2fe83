// Package config provides configuration loading for orchestratord.
//
// Configuration is read from an optional YAML file and overridden by
// ORCHESTRATOR_* environment variables. See Load for precedence rules.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// Execution driver names.
const (
	DriverDocker  = "docker"
	DriverProcess = "process"
)

// Config holds the complete orchestratord configuration.
type Config struct {
	Server    ServerConfig          `koanf:"server"`
	Planner   PlannerConfig         `koanf:"planner"`
	Runtime   RuntimeConfig         `koanf:"runtime"`
	Workspace WorkspaceConfig       `koanf:"workspace"`
	Tasks     map[string]TaskConfig `koanf:"tasks"`
	Events    EventsConfig          `koanf:"events"`
	Logging   LoggingConfig         `koanf:"logging"`
	Telemetry TelemetryConfig       `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PlannerConfig configures the chat-completion planner.
type PlannerConfig struct {
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	PromptFile  string  `koanf:"prompt_file"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
	RateLimit   float64 `koanf:"rate_limit"` // requests per second; negative disables
}

// RuntimeConfig selects and configures the execution driver.
type RuntimeConfig struct {
	Driver     string `koanf:"driver"`
	DockerHost string `koanf:"docker_host"`
	InputMount string `koanf:"input_mount"`
}

// WorkspaceConfig configures per-run scratch directories.
type WorkspaceConfig struct {
	BaseDir string `koanf:"base_dir"` // empty = OS temp dir
}

// TaskConfig describes one task's execution unit.
type TaskConfig struct {
	Image   string   `koanf:"image"`
	Command []string `koanf:"command"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds the logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// TaskUnits returns the configured tasks, or the built-in tasks when none
// are configured.
func (c *Config) TaskUnits() map[registry.TaskID]registry.ExecutionUnit {
	if len(c.Tasks) == 0 {
		return registry.Default()
	}
	units := make(map[registry.TaskID]registry.ExecutionUnit, len(c.Tasks))
	for name, t := range c.Tasks {
		id := registry.TaskID(name)
		units[id] = registry.ExecutionUnit{
			Task:    id,
			Image:   t.Image,
			Command: append([]string(nil), t.Command...),
		}
	}
	return units
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if err := c.validatePlanner(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		return errors.New("events.nats_url is required when events are enabled")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
		}
	}

	return nil
}

func (c *Config) validatePlanner() error {
	u, err := url.Parse(c.Planner.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid planner base_url %q", c.Planner.BaseURL)
	}
	if c.Planner.Model == "" {
		return errors.New("planner model is required")
	}
	if c.Planner.MaxTokens <= 0 {
		return fmt.Errorf("planner max_tokens must be positive, got %d", c.Planner.MaxTokens)
	}
	if c.Planner.Temperature < 0 || c.Planner.Temperature > 2 {
		return fmt.Errorf("planner temperature must be between 0 and 2, got %f", c.Planner.Temperature)
	}
	return nil
}

func (c *Config) validateTasks() error {
	switch c.Runtime.Driver {
	case DriverDocker, DriverProcess:
	default:
		return fmt.Errorf("runtime driver must be %q or %q, got %q", DriverDocker, DriverProcess, c.Runtime.Driver)
	}
	if !strings.HasPrefix(c.Runtime.InputMount, "/") {
		return fmt.Errorf("runtime input_mount must be an absolute path, got %q", c.Runtime.InputMount)
	}

	for name, t := range c.Tasks {
		if err := registry.ValidateName(name); err != nil {
			return fmt.Errorf("task %q: %w", name, err)
		}
		if c.Runtime.Driver == DriverDocker && t.Image == "" {
			return fmt.Errorf("task %q: image is required with the docker driver", name)
		}
		if c.Runtime.Driver == DriverProcess && len(t.Command) == 0 {
			return fmt.Errorf("task %q: command is required with the process driver", name)
		}
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	// Planner defaults
	if cfg.Planner.BaseURL == "" {
		cfg.Planner.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Planner.Model == "" {
		cfg.Planner.Model = "llama3-8b-8192"
	}
	if cfg.Planner.MaxTokens == 0 {
		cfg.Planner.MaxTokens = 100
	}
	if cfg.Planner.RateLimit == 0 {
		cfg.Planner.RateLimit = 5
	}

	// Runtime defaults
	if cfg.Runtime.Driver == "" {
		cfg.Runtime.Driver = DriverDocker
	}
	if cfg.Runtime.InputMount == "" {
		cfg.Runtime.InputMount = "/data/input.txt"
	}

	// Events defaults
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "orchestrator.runs"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry defaults
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "orchestratord"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}
