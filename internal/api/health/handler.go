// Package health provides health check endpoints for the API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a readiness probe.
const DefaultTimeout = 5 * time.Second

// Checker defines the interface for health checkers.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHandler creates a new health handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		checkers: make([]Checker, 0),
		timeout:  DefaultTimeout,
		logger:   logger,
	}
}

// RegisterChecker adds a dependency checker. Nil checkers are ignored.
func (h *Handler) RegisterChecker(c Checker) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health returns basic health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Live returns liveness probe status.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, HealthResponse{Status: "live"})
}

// Ready runs every registered checker concurrently and returns 200 only if
// all of them pass.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results, healthy := h.Check(ctx)

	resp := HealthResponse{Status: "ready", Checks: results}
	status := http.StatusOK
	if !healthy {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	h.write(w, status, resp)
}

// Check runs all checkers and returns their results keyed by name.
func (h *Handler) Check(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[string]string, len(checkers))
	healthy := true

	var g errgroup.Group
	for _, checker := range checkers {
		checker := checker
		g.Go(func() error {
			result := "ok"
			if err := checker.Check(ctx); err != nil {
				result = err.Error()
				h.logger.Warn("health check failed", zap.String("checker", checker.Name()), zap.Error(err))
			}
			mu.Lock()
			defer mu.Unlock()
			results[checker.Name()] = result
			if result != "ok" {
				healthy = false
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, healthy
}

func (h *Handler) write(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Debug("health encode error", zap.Error(err))
	}
}
