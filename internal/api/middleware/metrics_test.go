package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/good-yellow-bee/staleguard/internal/metrics"
)

func TestPrometheusMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMiddleware)
	r.Get("/api/v1/entities/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/entities/{id}/state", "404")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/entities/INV-1/state", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected counter to increase by 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestsInFlight); got != 0 {
		t.Errorf("expected no requests in flight, got %v", got)
	}
}
