package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/dispatch"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(ctx context.Context) (dispatch.Summary, error) {
	r.calls.Add(1)
	return dispatch.Summary{RunID: "test"}, r.err
}

func TestNewValidatesSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"default", "", false},
		{"five field", "0 9 * * 1-5", false},
		{"descriptor", "@hourly", false},
		{"every", "@every 30m", false},
		{"garbage", "whenever", true},
		{"six field", "0 0 9 * * 1-5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&countingRunner{}, Config{Schedule: tt.schedule}, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := New(nil, Config{}, nil); err == nil {
		t.Error("expected error for nil runner")
	}
}

func TestNextUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	s, err := New(&countingRunner{}, Config{Schedule: "0 9 * * *", Location: loc}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next := s.Next(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	want := time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestRunOnceToleratesErrors(t *testing.T) {
	for _, err := range []error{nil, dispatch.ErrRunInProgress, errors.New("boom")} {
		r := &countingRunner{err: err}
		s, _ := New(r, Config{RunTimeout: time.Second}, nil)
		s.runOnce(context.Background())
		if r.calls.Load() != 1 {
			t.Errorf("expected one run for err=%v", err)
		}
	}
}

func TestRunOnceSkipsCancelledContext(t *testing.T) {
	r := &countingRunner{}
	s, _ := New(r, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runOnce(ctx)
	if r.calls.Load() != 0 {
		t.Error("expected no run after cancellation")
	}
}

func TestRunOnStart(t *testing.T) {
	r := &countingRunner{}
	s, err := New(r, Config{Schedule: "@yearly", RunOnStart: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if r.calls.Load() != 1 {
		t.Errorf("expected exactly one startup run, got %d", r.calls.Load())
	}
}
