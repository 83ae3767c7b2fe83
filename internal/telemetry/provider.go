package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

// exporters pairs the span and metric exporters for one collector.
// metrics is nil when OTLP metrics are off.
type exporters struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Exporter
}

func newResource(cfg *Config) *resource.Resource {
	// Not merged with resource.Default(), whose schema URL may differ.
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
}

// newSampler honors the parent's decision and samples root spans at rate.
func newSampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// cumulative keeps counters monotonic for Prometheus-style backends,
// regardless of OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE.
func cumulative(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

var tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}

func newExporters(ctx context.Context, cfg *Config) (exporters, error) {
	var (
		ex  exporters
		err error
	)
	endpoint := hostPort(cfg.Endpoint)

	if cfg.protocol() == "http" {
		spanOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		metricOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithTemporalitySelector(cumulative),
		}
		if cfg.Insecure {
			spanOpts = append(spanOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		} else {
			spanOpts = append(spanOpts, otlptracehttp.WithTLSClientConfig(tlsConfig))
			metricOpts = append(metricOpts, otlpmetrichttp.WithTLSClientConfig(tlsConfig))
		}
		if ex.spans, err = otlptracehttp.New(ctx, spanOpts...); err != nil {
			return ex, fmt.Errorf("span exporter: %w", err)
		}
		if cfg.MetricsInterval > 0 {
			if ex.metrics, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
				return ex, fmt.Errorf("metric exporter: %w", err)
			}
		}
		return ex, nil
	}

	spanOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	metricOpts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		spanOpts = append(spanOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	} else {
		creds := credentials.NewTLS(tlsConfig)
		spanOpts = append(spanOpts, otlptracegrpc.WithTLSCredentials(creds))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTLSCredentials(creds))
	}
	if ex.spans, err = otlptracegrpc.New(ctx, spanOpts...); err != nil {
		return ex, fmt.Errorf("span exporter: %w", err)
	}
	if cfg.MetricsInterval > 0 {
		if ex.metrics, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
			return ex, fmt.Errorf("metric exporter: %w", err)
		}
	}
	return ex, nil
}
