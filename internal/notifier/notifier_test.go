package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// dispatcherMockNotifier is a test notifier that can be configured to fail.
type dispatcherMockNotifier struct {
	mu        sync.Mutex
	name      string
	shouldErr bool
	sendCount int
	closed    bool
	messages  []*Message
}

func (m *dispatcherMockNotifier) Name() string {
	return m.name
}

func (m *dispatcherMockNotifier) Send(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCount++
	m.messages = append(m.messages, msg)
	if m.shouldErr {
		return errors.New("mock send error")
	}
	return nil
}

func (m *dispatcherMockNotifier) Close() error {
	m.closed = true
	return nil
}

func testMessage() *Message {
	return &Message{
		Subject:      "INV-1 stale for 21 days",
		Recipients:   []string{"pm@example.com"},
		TextBody:     "Please follow up.",
		Level:        models.LevelUrgent,
		EntityID:     "INV-1",
		DayThreshold: 21,
		AgeDays:      21,
	}
}

func TestDispatcherSendsToAllChannels(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	email := &dispatcherMockNotifier{name: "email"}
	slack := &dispatcherMockNotifier{name: "slack"}
	dispatcher.Register(email)
	dispatcher.Register(slack)

	if err := dispatcher.Dispatch(context.Background(), testMessage()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if email.sendCount != 1 || slack.sendCount != 1 {
		t.Errorf("expected one send per channel, got email=%d slack=%d", email.sendCount, slack.sendCount)
	}
}

func TestDispatcherFailsWhenPrimaryFails(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	ok := &dispatcherMockNotifier{name: "email"}
	failing := &dispatcherMockNotifier{name: "log", shouldErr: true}
	mirror := &dispatcherMockNotifier{name: "slack"}
	dispatcher.Register(ok)
	dispatcher.Register(failing)
	dispatcher.RegisterMirror(mirror)

	err := dispatcher.Dispatch(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error from failing primary channel")
	}
	if ok.sendCount != 1 {
		t.Errorf("expected healthy channel to still be called, got %d sends", ok.sendCount)
	}
	if mirror.sendCount != 0 {
		t.Errorf("expected mirror to be skipped after a primary failure, got %d sends", mirror.sendCount)
	}
}

func TestDispatcherIgnoresMirrorFailures(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	email := &dispatcherMockNotifier{name: "email"}
	slack := &dispatcherMockNotifier{name: "slack", shouldErr: true}
	teams := &dispatcherMockNotifier{name: "teams"}
	dispatcher.Register(email)
	dispatcher.RegisterMirror(slack)
	dispatcher.RegisterMirror(teams)

	if err := dispatcher.Dispatch(context.Background(), testMessage()); err != nil {
		t.Fatalf("expected mirror failure to be ignored, got %v", err)
	}
	if email.sendCount != 1 || slack.sendCount != 1 || teams.sendCount != 1 {
		t.Errorf("expected one send per channel, got email=%d slack=%d teams=%d",
			email.sendCount, slack.sendCount, teams.sendCount)
	}
}

func TestDispatcherMirrorsOnlyHasNoChannels(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	slack := &dispatcherMockNotifier{name: "slack"}
	dispatcher.RegisterMirror(slack)

	if err := dispatcher.Dispatch(context.Background(), testMessage()); !errors.Is(err, ErrNoChannels) {
		t.Errorf("expected ErrNoChannels, got %v", err)
	}
	if slack.sendCount != 0 {
		t.Errorf("expected mirror not to be called, got %d sends", slack.sendCount)
	}
}

func TestDispatcherNoChannels(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	if err := dispatcher.Dispatch(context.Background(), testMessage()); !errors.Is(err, ErrNoChannels) {
		t.Errorf("expected ErrNoChannels, got %v", err)
	}
}

func TestDispatcherRateLimited(t *testing.T) {
	config := RateLimitConfig{
		MaxPerWindow: 1,
		Window:       time.Hour,
		Enabled:      true,
	}
	dispatcher := NewDispatcherWithRateLimit(config, nil)
	mock := &dispatcherMockNotifier{name: "email"}
	dispatcher.Register(mock)

	if err := dispatcher.Dispatch(context.Background(), testMessage()); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := dispatcher.Dispatch(ctx, testMessage())
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if mock.sendCount != 1 {
		t.Errorf("expected rate limited message not to reach the channel, got %d sends", mock.sendCount)
	}
	if stats := dispatcher.RateLimitStats(); stats.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.Dropped)
	}
}

func TestDispatcherRegisterReplacesByName(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	first := &dispatcherMockNotifier{name: "email"}
	second := &dispatcherMockNotifier{name: "email"}
	dispatcher.Register(first)
	dispatcher.Register(&dispatcherMockNotifier{name: "log"})
	dispatcher.Register(second)

	names := dispatcher.Names()
	if len(names) != 2 || names[0] != "email" || names[1] != "log" {
		t.Errorf("expected [email log], got %v", names)
	}
	n, ok := dispatcher.Get("email")
	if !ok || n != second {
		t.Error("expected replacement notifier to be registered")
	}

	dispatcher.Unregister("email")
	if _, ok := dispatcher.Get("email"); ok {
		t.Error("expected email to be unregistered")
	}
}

func TestDispatcherClose(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	mock := &dispatcherMockNotifier{name: "email"}
	dispatcher.Register(mock)

	if err := dispatcher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mock.closed {
		t.Error("expected notifier to be closed")
	}
	if len(dispatcher.Names()) != 0 {
		t.Error("expected no notifiers after Close")
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	if n.Name() != "log" {
		t.Errorf("expected name log, got %q", n.Name())
	}
	if err := n.Send(context.Background(), testMessage()); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
