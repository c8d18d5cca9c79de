package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/api/health"
	"github.com/good-yellow-bee/staleguard/internal/dispatch"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/notifier"
	"github.com/good-yellow-bee/staleguard/internal/recipients"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

// Wednesday, inside business hours.
var baseTime = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []*notifier.Message
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Send(ctx context.Context, msg *notifier.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

// testServer wires a server over a temporary SQLite database.
func testServer(t *testing.T) (*Server, *storage.SQLiteStorage, *recordingNotifier) {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "staleguard.db"), nil)
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate storage: %v", err)
	}

	opts := alerting.DefaultControllerOptions()
	opts.Now = func() time.Time { return baseTime }
	controller := alerting.NewController(store.CooldownStates(), store.AlertHistory(), opts)

	templates, err := notifier.LoadTemplates()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	rec := &recordingNotifier{}

	orch, err := dispatch.New(dispatch.Options{
		Catalog:    alerting.NewCatalogHolder(alerting.DefaultCatalog()),
		Controller: controller,
		Source:     store.Entities(),
		Resolver: recipients.NewResolver(recipients.Directory{
			ProjectManagers: []string{"pm@example.com"},
			Controllers:     []string{"controller@example.com"},
		}),
		Notifier: rec,
		Composer: templates,
	})
	if err != nil {
		t.Fatalf("create orchestrator: %v", err)
	}

	srv, err := New(&Config{Address: ":0", RateLimitPerMinute: 1000}, orch, store.AlertHistory(), nil)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(store))
	return srv, store, rec
}

func seedEntity(t *testing.T, store *storage.SQLiteStorage, id string, ageDays int) {
	t.Helper()
	moved := baseTime.AddDate(0, 0, -ageDays)
	err := store.Entities().Upsert(context.Background(), &models.TrackedEntity{
		ID:             id,
		Client:         "Acme",
		Owner:          "dana",
		Status:         "sent",
		ProposedAmount: decimal.NewFromInt(5000),
		LastMovementAt: &moved,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&Config{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil service")
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	if cfg.Address != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Address)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Errorf("expected 60 requests per minute, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.RunTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		t.Error("expected positive timeouts")
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := testServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := do(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rec.Code)
		}
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND envelope, got %+v", resp.Error)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/alerts/run", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
}

func TestRunStatusHistoryFlow(t *testing.T) {
	srv, store, notif := testServer(t)
	seedEntity(t, store, "INV-1", 45)
	seedEntity(t, store, "INV-2", 10)
	seedEntity(t, store, "INV-3", 2)

	rec := do(t, srv, http.MethodPost, "/api/v1/alerts/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var run struct {
		Data dispatch.Summary `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	// INV-1 hits the daily cap after three sends, INV-2 gets its single level.
	if run.Data.Sent != 4 || run.Data.EntitiesProcessed != 2 {
		t.Errorf("expected 4 sent over 2 entities, got %+v", run.Data)
	}
	if notif.count() != 4 {
		t.Errorf("expected 4 notifications, got %d", notif.count())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/alerts/history?entity_id=INV-1", nil)
	var hist struct {
		Data []*models.AlertHistoryEntry `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Data) != 3 {
		t.Errorf("expected 3 history entries for INV-1, got %d", len(hist.Data))
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/alerts/status", nil)
	var status struct {
		Data struct {
			Total   int               `json:"total"`
			LastRun *dispatch.Summary `json:"last_run"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Data.Total != 2 {
		t.Errorf("expected 2 entities in status, got %d", status.Data.Total)
	}
	if status.Data.LastRun == nil || status.Data.LastRun.RunID != run.Data.RunID {
		t.Error("expected status to report the last run")
	}

	// Same instant, second run: everything is throttled.
	rec = do(t, srv, http.MethodPost, "/api/v1/alerts/run", nil)
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decode second run: %v", err)
	}
	if run.Data.Sent != 0 {
		t.Errorf("expected no sends on the second run, got %d", run.Data.Sent)
	}
}

func TestEntityActionAndState(t *testing.T) {
	srv, store, _ := testServer(t)
	seedEntity(t, store, "INV-1", 20)

	rec := do(t, srv, http.MethodGet, "/api/v1/entities/INV-1/state", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 before any action, got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/entities/INV-1/actions", map[string]any{"action": "paused"})
	if rec.Code != http.StatusOK {
		t.Fatalf("action: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/entities/INV-1/state", nil)
	var state struct {
		Data models.CooldownState `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Data.LastUserAction != models.ActionPaused {
		t.Errorf("expected paused, got %s", state.Data.LastUserAction)
	}
	want := baseTime.Add(72 * time.Hour)
	if state.Data.CooldownUntil == nil || !state.Data.CooldownUntil.Equal(want) {
		t.Errorf("expected cooldown until %v, got %v", want, state.Data.CooldownUntil)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/entities/INV-1/actions", map[string]any{"action": "snooze"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown action, got %d", rec.Code)
	}
}

func TestTestAlertAndRules(t *testing.T) {
	srv, _, notif := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/alerts/test", map[string]string{"recipient": "ops@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("test alert: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if notif.count() != 1 {
		t.Errorf("expected 1 notification, got %d", notif.count())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/rules", nil)
	var rules struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&rules); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	if len(rules.Data) != alerting.DefaultCatalog().Len() {
		t.Errorf("expected %d rules, got %d", alerting.DefaultCatalog().Len(), len(rules.Data))
	}
}
