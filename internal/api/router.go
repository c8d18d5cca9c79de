package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/staleguard/internal/api/alerts"
	"github.com/good-yellow-bee/staleguard/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerMinute)
	alertHandler := alerts.NewHandler(s.service, s.history, s.config.RunTimeout, s.logger)

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ipLimiter))

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/run", alertHandler.Run)
			r.Post("/test", alertHandler.Test)
			r.Get("/status", alertHandler.Status)
			r.Get("/history", alertHandler.History)
		})

		r.Get("/rules", alertHandler.Rules)

		r.Route("/entities/{id}", func(r chi.Router) {
			r.Post("/actions", alertHandler.Action)
			r.Get("/state", alertHandler.State)
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
