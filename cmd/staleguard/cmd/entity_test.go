package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

func seedEntity(t *testing.T, a *app, id string, ageDays int) {
	t.Helper()
	moved := time.Now().AddDate(0, 0, -ageDays)
	err := a.store.Entities().Upsert(context.Background(), &models.TrackedEntity{
		ID:             id,
		Client:         "Acme",
		Owner:          "dana",
		Status:         "sent",
		ProposedAmount: decimal.NewFromInt(1200),
		LastMovementAt: &moved,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestLookupEntity(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	seedEntity(t, a, "INV-1", 45)
	if _, err := a.controller.RecordUserAction(ctx, "INV-1", models.ActionAcknowledged, nil); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	view, err := lookupEntity(ctx, a, "INV-1", time.Now())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if view.Level != models.LevelCritical {
		t.Errorf("expected critical level, got %q", view.Level)
	}
	if view.State == nil || view.State.LastUserAction != models.ActionAcknowledged {
		t.Errorf("expected acknowledged state, got %+v", view.State)
	}

	var buf bytes.Buffer
	printEntity(&buf, view)
	if !strings.Contains(buf.String(), "1200.00") || !strings.Contains(buf.String(), "acknowledged") {
		t.Errorf("unexpected entity output:\n%s", buf.String())
	}

	if _, err := lookupEntity(ctx, a, "INV-404", time.Now()); !errors.Is(err, errEntityNotFound) {
		t.Errorf("expected errEntityNotFound, got %v", err)
	}
}

func TestDeleteEntity(t *testing.T) {
	ctx := context.Background()
	store, err := openStore(testConfig(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	total, err := importEntities(ctx, store.Entities(), []*models.TrackedEntity{
		{ID: "INV-1", Status: "sent"},
		{ID: "INV-2", Status: "sent"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 stored entities, got %d", total)
	}

	if err := deleteEntity(ctx, store.Entities(), "INV-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if e, err := store.Entities().GetByID(ctx, "INV-1"); err != nil || e != nil {
		t.Errorf("expected INV-1 gone, got %v, %v", e, err)
	}
	if err := deleteEntity(ctx, store.Entities(), "INV-1"); !errors.Is(err, errEntityNotFound) {
		t.Errorf("expected errEntityNotFound, got %v", err)
	}

	// Re-importing an existing id replaces it.
	total, err = importEntities(ctx, store.Entities(), []*models.TrackedEntity{{ID: "INV-2", Status: "approved"}})
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 stored entity, got %d", total)
	}
}

func TestPrintStates(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	var buf bytes.Buffer
	printStates(&buf, nil)
	if !strings.Contains(buf.String(), "No cooldown states") {
		t.Errorf("expected empty message, got %q", buf.String())
	}

	for _, id := range []string{"INV-2", "INV-1"} {
		if _, err := a.controller.RecordUserAction(ctx, id, models.ActionPaused, nil); err != nil {
			t.Fatalf("pause %s: %v", id, err)
		}
	}
	states, err := a.states.List(ctx)
	if err != nil {
		t.Fatalf("list states: %v", err)
	}
	if len(states) != 2 || states[0].EntityID != "INV-1" {
		t.Fatalf("expected 2 states ordered by id, got %d", len(states))
	}

	buf.Reset()
	printStates(&buf, states)
	out := buf.String()
	if !strings.Contains(out, "INV-1") || !strings.Contains(out, "paused") || !strings.Contains(out, "Total: 2") {
		t.Errorf("unexpected states output:\n%s", out)
	}
}
