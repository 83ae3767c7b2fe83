package http

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// InstrumentationName is the OpenTelemetry scope of the HTTP metrics.
const InstrumentationName = "github.com/fyrsmithlabs/orchestratord/internal/http"

// Seconds; runs that call the planner and several containers take long.
var durationBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// HTTPMetrics records per-route request counts, latency and in-flight
// requests through an OpenTelemetry meter.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the instruments on meter, or on the global meter
// provider when meter is nil. Instruments that cannot be created are
// logged and replaced with no-ops.
func NewHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var errs [3]error
	m := &HTTPMetrics{}
	m.requests, errs[0] = meter.Int64Counter("orchestrator.http.requests",
		metric.WithDescription("HTTP requests served, by method, route and status code."),
		metric.WithUnit("{request}"))
	m.duration, errs[1] = meter.Float64Histogram("orchestrator.http.request.duration",
		metric.WithDescription("Time to serve an HTTP request, including the pipeline run it triggers."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	m.inFlight, errs[2] = meter.Int64UpDownCounter("orchestrator.http.requests.in_flight",
		metric.WithDescription("HTTP requests currently being served."),
		metric.WithUnit("{request}"))

	if err := errors.Join(errs[:]...); err != nil {
		logger.Warn("some http metrics are unavailable", zap.Error(err))
	}
	return m
}

// MetricsMiddleware records each request once the handler returns.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)
			if err != nil {
				// Let echo render the error so the recorded status is final.
				c.Error(err)
				err = nil
			}

			attrs := metric.WithAttributes(
				attribute.String("http.request.method", c.Request().Method),
				attribute.String("http.route", routeLabel(c.Path())),
				attribute.Int("http.response.status_code", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// routeLabel returns the matched route pattern. Raw URLs are never used,
// so unmatched requests share one label.
func routeLabel(route string) string {
	if route == "" {
		return "unmatched"
	}
	return route
}
