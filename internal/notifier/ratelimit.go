package notifier

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing notifications with a token bucket.
// A disabled limiter admits everything.
type RateLimiter struct {
	limiter      *rate.Limiter
	maxPerWindow int
	window       time.Duration
	enabled      bool
	dropped      atomic.Int64
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 10)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool          // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
// The bucket holds MaxPerWindow tokens and refills evenly across Window.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	every := config.Window / time.Duration(config.MaxPerWindow)
	return &RateLimiter{
		limiter:      rate.NewLimiter(rate.Every(every), config.MaxPerWindow),
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		enabled:      config.Enabled,
	}
}

// Allow reports whether a notification may be sent right now without waiting.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}
	if r.limiter.Allow() {
		return true
	}
	r.dropped.Add(1)
	return false
}

// Wait blocks until a token is available or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if !r.enabled {
		return ctx.Err()
	}
	if err := r.limiter.Wait(ctx); err != nil {
		r.dropped.Add(1)
		return err
	}
	return nil
}

// Dropped returns the number of notifications refused by the limiter.
func (r *RateLimiter) Dropped() int64 {
	return r.dropped.Load()
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	return RateLimitStats{
		Dropped:      r.dropped.Load(),
		Available:    r.limiter.Tokens(),
		MaxPerWindow: r.maxPerWindow,
		Window:       r.window,
		Enabled:      r.enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped      int64         // Total notifications refused
	Available    float64       // Tokens currently in the bucket
	MaxPerWindow int           // Maximum allowed per window
	Window       time.Duration // Window duration
	Enabled      bool          // Whether rate limiting is enabled
}
