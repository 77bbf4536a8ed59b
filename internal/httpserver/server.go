// Package httpserver provides the health and metrics sidecar that runs
// alongside the MCP stdio server.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// ReadyFunc reports whether the service is ready to serve requests. The
// embedding provider's Ready method is used here, so /healthz stays 503
// until the model warm-up completes.
type ReadyFunc func() bool

// Server serves /health, /healthz and /metrics.
type Server struct {
	echo   *echo.Echo
	ready  ReadyFunc
	logger *zap.Logger
	config Config
}

// NewServer creates the sidecar server.
func NewServer(cfg Config, ready ReadyFunc, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		ready:  ready,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/healthz", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// HealthResponse is the body for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth is liveness: the process is up.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReadiness is readiness: 503 until the embedding backend is warm.
func (s *Server) handleReadiness(c echo.Context) error {
	if !s.ready() {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "warming up"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}

// Echo exposes the underlying echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server and blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http sidecar", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http sidecar")
	return s.echo.Shutdown(ctx)
}
