package health

import (
	"context"
	"fmt"
)

// Pinger is implemented by backends that support a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks a backend through its Ping method.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker creates a checker reported under name.
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: p}
}

// NewSQLiteChecker checks the SQLite database.
func NewSQLiteChecker(p Pinger) *PingChecker {
	return NewPingChecker("sqlite", p)
}

// NewRedisChecker checks the Redis state store.
func NewRedisChecker(p Pinger) *PingChecker {
	return NewPingChecker("redis", p)
}

// Name returns the checker name.
func (c *PingChecker) Name() string {
	return c.name
}

// Check pings the backend.
func (c *PingChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("%s not configured", c.name)
	}
	return c.pinger.Ping(ctx)
}

// FuncChecker adapts a function to the Checker interface.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncChecker creates a checker backed by fn.
func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

// Name returns the checker name.
func (c *FuncChecker) Name() string {
	return c.name
}

// Check calls the function.
func (c *FuncChecker) Check(ctx context.Context) error {
	return c.fn(ctx)
}
