package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewHTTPMetrics(mp.Meter(InstrumentationName), nil)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/process_request", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad body")
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/process_request", nil),
		httptest.NewRequest(http.MethodGet, "/nope/123", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	data := collect(t, reader)

	requests, ok := data["orchestrator.http.requests"].(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	byStatus := map[int64]int64{}
	for _, dp := range requests.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("http.route"))
		status, _ := dp.Attributes.Value(attribute.Key("http.response.status_code"))
		counts[route.AsString()+" "+status.Emit()] += dp.Value
		byStatus[status.AsInt64()] += dp.Value
	}
	assert.Equal(t, int64(2), counts["/health 200"])
	assert.Equal(t, int64(1), counts["/process_request 400"])
	assert.Equal(t, int64(1), byStatus[http.StatusNotFound])

	duration, ok := data["orchestrator.http.request.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var n uint64
	for _, dp := range duration.DataPoints {
		n += dp.Count
	}
	assert.Equal(t, uint64(4), n)

	inFlight, ok := data["orchestrator.http.requests.in_flight"].(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range inFlight.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestNewHTTPMetrics_GlobalMeter(t *testing.T) {
	m := NewHTTPMetrics(nil, nil)
	assert.NotNil(t, m.requests)
	assert.NotNil(t, m.duration)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/runs", routeLabel("/api/v1/runs"))
}
