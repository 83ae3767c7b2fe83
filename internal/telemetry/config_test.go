package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestratord/internal/config"
)

func enabledConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	return cfg
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "orchestratord", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())

	cfg.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"http protocol", func(c *Config) { c.Protocol = "http"; c.Endpoint = "http://127.0.0.1:4318" }, ""},
		{"http/protobuf alias", func(c *Config) { c.Protocol = "http/protobuf" }, ""},
		{"empty protocol means grpc", func(c *Config) { c.Protocol = "" }, ""},
		{"metrics off", func(c *Config) { c.MetricsInterval = 0 }, ""},
		{"remote with tls", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"unknown protocol", func(c *Config) { c.Protocol = "udp" }, "unsupported protocol"},
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"no service name", func(c *Config) { c.ServiceName = "" }, "service name"},
		{"no version", func(c *Config) { c.ServiceVersion = "" }, "service version"},
		{"rate above one", func(c *Config) { c.SampleRate = 1.5 }, "sample rate"},
		{"negative rate", func(c *Config) { c.SampleRate = -0.1 }, "sample rate"},
		{"negative interval", func(c *Config) { c.MetricsInterval = -time.Second }, "metrics interval"},
		{"zero shutdown", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"remote insecure", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure export"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateDisabledSkipsChecks(t *testing.T) {
	cfg := &Config{Protocol: "udp", SampleRate: 9}
	assert.NoError(t, cfg.Validate())
}

func TestIsLoopback(t *testing.T) {
	local := []string{
		"localhost:4317", "localhost", "127.0.0.1:4317", "127.0.0.2",
		"[::1]:4317", "::1", "http://localhost:4318/v1/traces",
	}
	for _, e := range local {
		assert.True(t, isLoopback(e), e)
	}
	remote := []string{"otel.example.com:4317", "10.0.0.5:4317", "https://collector:4318", "[2001:db8::1]:4317"}
	for _, e := range remote {
		assert.False(t, isLoopback(e), e)
	}
}

func TestHostPort(t *testing.T) {
	assert.Equal(t, "collector:4318", hostPort("https://collector:4318"))
	assert.Equal(t, "collector:4318", hostPort("http://collector:4318/v1/metrics"))
	assert.Equal(t, "collector:4317", hostPort("collector:4317"))
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{}, "")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "dev", cfg.ServiceVersion)

	cfg = FromSettings(config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "collector:4318",
		Protocol:    "http",
		ServiceName: "orch-staging",
		SampleRate:  0.25,
	}, "v1.4.0")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.Equal(t, "http", cfg.Protocol)
	assert.Equal(t, "orch-staging", cfg.ServiceName)
	assert.Equal(t, "v1.4.0", cfg.ServiceVersion)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.False(t, cfg.Insecure)
	assert.NoError(t, cfg.Validate())
}
