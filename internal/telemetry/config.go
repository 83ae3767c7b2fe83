package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/orchestratord/internal/config"
)

// Config controls OTLP export of traces and metrics.
type Config struct {
	Enabled        bool
	Endpoint       string // host:port, an http(s):// prefix is tolerated
	Protocol       string // grpc or http
	ServiceName    string
	ServiceVersion string
	Insecure       bool // plaintext; only allowed for loopback endpoints
	SampleRate     float64

	// MetricsInterval is the OTLP metric push period. Zero turns OTLP
	// metrics off; Prometheus scraping is unaffected.
	MetricsInterval time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a disabled config pointing at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		ServiceName:     "orchestratord",
		ServiceVersion:  "dev",
		Insecure:        true,
		SampleRate:      1.0,
		MetricsInterval: 15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromSettings applies the telemetry section of the server config to the
// defaults. version, when set, becomes the service version.
func FromSettings(s config.TelemetryConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = s.Enabled
	cfg.Insecure = s.Insecure
	cfg.SampleRate = s.SampleRate
	if s.Endpoint != "" {
		cfg.Endpoint = s.Endpoint
	}
	if s.Protocol != "" {
		cfg.Protocol = s.Protocol
	}
	if s.ServiceName != "" {
		cfg.ServiceName = s.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// Validate checks an enabled config. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint is required")
	case c.ServiceName == "":
		return errors.New("service name is required")
	case c.ServiceVersion == "":
		return errors.New("service version is required")
	case c.SampleRate < 0 || c.SampleRate > 1:
		return fmt.Errorf("sample rate must be within [0, 1], got %g", c.SampleRate)
	case c.MetricsInterval < 0:
		return errors.New("metrics interval must not be negative")
	case c.ShutdownTimeout <= 0:
		return errors.New("shutdown timeout must be positive")
	}
	if c.protocol() == "" {
		return fmt.Errorf("unsupported protocol %q (use grpc or http)", c.Protocol)
	}
	if c.Insecure && !isLoopback(c.Endpoint) {
		return fmt.Errorf("insecure export to non-local endpoint %q is not allowed", c.Endpoint)
	}
	return nil
}

// protocol normalizes Protocol, returning "" for unknown values.
func (c *Config) protocol() string {
	switch c.Protocol {
	case "", "grpc":
		return "grpc"
	case "http", "http/protobuf":
		return "http"
	}
	return ""
}

// hostPort strips any URL scheme and path from endpoint.
func hostPort(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	if i := strings.IndexByte(endpoint, '/'); i >= 0 {
		endpoint = endpoint[:i]
	}
	return endpoint
}

func isLoopback(endpoint string) bool {
	host := hostPort(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
