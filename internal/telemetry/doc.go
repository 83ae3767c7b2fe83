// Package telemetry exports orchestratord traces and metrics over OTLP.
//
// Export is off by default. When enabled, New installs batching span and
// periodic metric exporters for a collector reached over gRPC or HTTP:
//
//	telemetry:
//	  enabled: true
//	  endpoint: localhost:4317
//	  protocol: grpc
//	  sample_rate: 0.25
//
// The pipeline controller takes its tracer from Tracer; HTTP metrics take
// their meter from Meter. Both fall back to the otel globals when export is
// off, so callers never check. Prometheus scraping on /metrics does not go
// through this package.
package telemetry
