// Package http serves the orchestratord HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestratord/internal/logging"
	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// HeaderRunID carries the run id on /api/v1/runs responses.
const HeaderRunID = "X-Run-ID"

// Runner executes pipeline runs. *pipeline.Controller implements it.
type Runner interface {
	Run(ctx context.Context, instruction, text string) pipeline.Outcome
	Execute(ctx context.Context, plan pipeline.Plan, text string) pipeline.Outcome
	Registry() *registry.Registry
}

// Server provides HTTP endpoints for orchestratord.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	logger  *logging.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int // 0 picks a free port
	ShutdownTimeout time.Duration
	ServiceName     string
	BodyLimit       string // echo size notation, e.g. "10M"
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.ServiceName == "" {
		c.ServiceName = "orchestratord"
	}
	if c.BodyLimit == "" {
		c.BodyLimit = "10M"
	}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics with m.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8000}
	}
	cfg.applyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger.Named("http"),
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(s.requestContext())
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}

	s.registerRoutes()

	return s, nil
}

// requestContext carries the request id into the request context and
// logs every request once it completes.
func (s *Server) requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			ctx := req.Context()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if logging.ValidID(requestID) {
				ctx = logging.WithRequestID(ctx, requestID)
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				// Let echo write the error so the logged status is final.
				c.Error(err)
			}

			s.logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)

			return nil
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/process_request", s.handleProcessRequest)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleRun)
	v1.GET("/tasks", s.handleTasks)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: s.config.ServiceName,
	})
}

// handleProcessRequest plans and runs a request. Run failures are
// reported in the body with status 200; only unusable request bodies get 400.
func (s *Server) handleProcessRequest(c echo.Context) error {
	ctx := c.Request().Context()

	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid process request", zap.Error(err))
		return badRequest(c, "invalid request body")
	}
	if req.UserRequest == nil {
		return badRequest(c, "user_request field is required")
	}
	if req.Text == nil {
		return badRequest(c, "text field is required")
	}

	outcome := s.runner.Run(ctx, *req.UserRequest, *req.Text)
	return c.JSON(http.StatusOK, pipeline.ToResponse(outcome))
}

// handleRun runs an instruction, or an explicit plan when one is given.
func (s *Server) handleRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req RunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid run request", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	var outcome pipeline.Outcome
	switch {
	case req.Plan != nil:
		outcome = s.runner.Execute(ctx, pipeline.Plan(req.Plan), req.Text)
	case req.Instruction != "":
		outcome = s.runner.Run(ctx, req.Instruction, req.Text)
	default:
		return badRequest(c, "instruction or plan is required")
	}

	if outcome.RunID != "" {
		c.Response().Header().Set(HeaderRunID, outcome.RunID)
	}
	return c.JSON(http.StatusOK, pipeline.ToResponse(outcome))
}

// handleTasks lists the registered task ids.
func (s *Server) handleTasks(c echo.Context) error {
	tasks := s.runner.Registry().Tasks()
	if tasks == nil {
		tasks = []registry.TaskID{}
	}
	return c.JSON(http.StatusOK, TasksResponse{Tasks: tasks})
}

// handleError writes every error echo surfaces, including recovered
// panics, body limit rejections and unmatched routes, in the run
// response shape.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "internal server error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}

	ctx := c.Request().Context()
	if code >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", zap.Int("status", code), zap.Error(err))
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, pipeline.Response{Error: msg})
	}
	if werr != nil {
		s.logger.Warn(ctx, "failed to write error response", zap.Error(werr))
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, pipeline.Response{Error: msg})
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout.
//
// Returns http.ErrServerClosed after a graceful shutdown, or the error
// that stopped the server.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Addr()
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
