// Package notifier delivers rendered alerts over email, chat webhooks and logs.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

// Message is a rendered alert ready for delivery.
type Message struct {
	Subject      string
	Recipients   []string
	TextBody     string
	HTMLBody     string
	Level        models.Level
	EntityID     string
	DayThreshold int
	AgeDays      int
	// Test marks synthetic alerts from send-test-alert.
	Test bool
}

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the channel name (e.g., "email", "slack").
	Name() string
	// Send delivers a message.
	Send(ctx context.Context, msg *Message) error
	// Close releases any resources.
	Close() error
}

// ErrRateLimited is returned when a message cannot get a send token before ctx ends.
var ErrRateLimited = errors.New("notification rate limited")

// ErrNoChannels is returned by Dispatch when no primary notifier is registered.
var ErrNoChannels = errors.New("no notification channels registered")

// channel is a registered notifier. Mirror channels are best effort: their
// failures are logged and counted but never fail a dispatch.
type channel struct {
	notifier Notifier
	mirror   bool
}

// Dispatcher fans a message out to every registered notifier.
type Dispatcher struct {
	mu          sync.RWMutex
	channels    []channel
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher with default rate limiting.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig(), logger)
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		rateLimiter: NewRateLimiter(config),
		logger:      logger,
	}
}

// Register adds a primary notifier. A notifier with the same name is replaced in place.
func (d *Dispatcher) Register(n Notifier) {
	d.register(channel{notifier: n})
}

// RegisterMirror adds a best-effort notifier that copies alerts already
// delivered by the primary channels.
func (d *Dispatcher) RegisterMirror(n Notifier) {
	d.register(channel{notifier: n, mirror: true})
}

func (d *Dispatcher) register(c channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.channels {
		if existing.notifier.Name() == c.notifier.Name() {
			d.channels[i] = c
			return
		}
	}
	d.channels = append(d.channels, c)
}

// Unregister removes a notifier by name.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.channels {
		if c.notifier.Name() == name {
			d.channels = append(d.channels[:i], d.channels[i+1:]...)
			return
		}
	}
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.channels {
		if c.notifier.Name() == name {
			return c.notifier, true
		}
	}
	return nil, false
}

// Names returns registered channel names in registration order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.channels))
	for i, c := range d.channels {
		names[i] = c.notifier.Name()
	}
	return names
}

// Name implements Notifier so a Dispatcher can be used wherever a single channel is expected.
func (d *Dispatcher) Name() string {
	return "dispatcher"
}

// Send implements Notifier by calling Dispatch.
func (d *Dispatcher) Send(ctx context.Context, msg *Message) error {
	return d.Dispatch(ctx, msg)
}

// Dispatch sends msg to every primary notifier in registration order, then
// to the mirrors. It waits for a rate limit token first and returns
// ErrRateLimited if ctx ends before one is available.
//
// Only primary channels decide the outcome: the send succeeds when every
// primary succeeds. Mirrors are skipped when a primary fails, so a retried
// alert is mirrored once.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) error {
	if err := d.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	d.mu.RLock()
	var primaries, mirrors []Notifier
	for _, c := range d.channels {
		if c.mirror {
			mirrors = append(mirrors, c.notifier)
		} else {
			primaries = append(primaries, c.notifier)
		}
	}
	d.mu.RUnlock()

	if len(primaries) == 0 {
		return ErrNoChannels
	}

	var errs []error
	for _, n := range primaries {
		if err := d.send(ctx, n, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, n := range mirrors {
		_ = d.send(ctx, n, msg)
	}
	return nil
}

// send delivers msg on one channel and records the outcome.
func (d *Dispatcher) send(ctx context.Context, n Notifier, msg *Message) error {
	name := n.Name()
	start := time.Now()
	err := n.Send(ctx, msg)
	metrics.NotifierSendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NotifierSendsTotal.WithLabelValues(name, "error").Inc()
		d.logger.Warn("notification failed",
			zap.String("channel", name),
			zap.String("entity_id", msg.EntityID),
			zap.Int("day_threshold", msg.DayThreshold),
			zap.Error(err),
		)
		return err
	}
	metrics.NotifierSendsTotal.WithLabelValues(name, "success").Inc()
	return nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, c := range d.channels {
		if err := c.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.notifier.Name(), err))
		}
	}
	d.channels = nil

	return errors.Join(errs...)
}
