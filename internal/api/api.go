// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/api/alerts"
	"github.com/good-yellow-bee/staleguard/internal/api/health"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address string `yaml:"address"`
	// RateLimitPerMinute is the per-IP request budget for the API routes.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	// RunTimeout bounds runs triggered over HTTP.
	RunTimeout      time.Duration `yaml:"run_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Verbose         bool          `yaml:"verbose"`
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = alerts.DefaultRunTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	service       alerts.Service
	history       alerts.HistoryLister
	logger        *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server. history may be nil when no ledger is
// configured.
func New(cfg *Config, service alerts.Service, history alerts.HistoryLister, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if service == nil {
		return nil, fmt.Errorf("alert service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		service:       service,
		history:       history,
		logger:        logger.Named("api"),
		healthHandler: health.NewHandler(logger.Named("health")),
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.setupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RunTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
