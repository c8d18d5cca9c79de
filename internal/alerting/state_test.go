package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	if _, err := store.Get(ctx, "P-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}

	state, err := store.Update(ctx, "P-1", func(s *models.CooldownState, exists bool) error {
		if exists {
			t.Error("expected new state")
		}
		s.SentLifetime = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.EntityID != "P-1" || state.SentLifetime != 1 {
		t.Errorf("unexpected state %+v", state)
	}

	// Returned copies are detached from the store.
	state.SentLifetime = 99
	got, err := store.Get(ctx, "P-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SentLifetime != 1 {
		t.Errorf("expected stored lifetime 1, got %d", got.SentLifetime)
	}

	// A failing update leaves the state untouched.
	boom := errors.New("boom")
	_, err = store.Update(ctx, "P-1", func(s *models.CooldownState, exists bool) error {
		if !exists {
			t.Error("expected existing state")
		}
		s.SentLifetime = 50
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected update error, got %v", err)
	}
	got, _ = store.Get(ctx, "P-1")
	if got.SentLifetime != 1 {
		t.Errorf("expected lifetime unchanged after failed update, got %d", got.SentLifetime)
	}
}

func TestMemoryStateStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "P-1", func(s *models.CooldownState, _ bool) error {
				s.SentLifetime++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "P-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SentLifetime != 50 {
		t.Errorf("expected 50 increments, got %d", got.SentLifetime)
	}
}

func TestMemoryStateStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	for _, id := range []string{"c", "a", "b"} {
		if _, err := store.Update(ctx, id, func(*models.CooldownState, bool) error { return nil }); err != nil {
			t.Fatalf("Update %s: %v", id, err)
		}
	}

	states, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}
	for i, want := range []string{"a", "b", "c"} {
		if states[i].EntityID != want {
			t.Errorf("state %d: expected %s, got %s", i, want, states[i].EntityID)
		}
	}
}
