// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Entities() EntityRepository
	AlertHistory() AlertHistoryRepository
	CooldownStates() alerting.StateStore
}

// EntityRepository is the record source of tracked entities.
type EntityRepository interface {
	// Upsert inserts or replaces an entity snapshot.
	Upsert(ctx context.Context, entity *models.TrackedEntity) error
	// GetByID returns an entity, or nil when it does not exist.
	GetByID(ctx context.Context, id string) (*models.TrackedEntity, error)
	// ListActive returns entities whose status is not terminal.
	ListActive(ctx context.Context) ([]*models.TrackedEntity, error)
	// Delete removes an entity.
	Delete(ctx context.Context, id string) error
	// Count returns the number of stored entities.
	Count(ctx context.Context) (int64, error)
}

// AlertHistoryRepository is the append-only ledger of sent alerts.
type AlertHistoryRepository interface {
	alerting.HistoryLedger

	// List returns entries newest first. An empty entityID lists all entities.
	List(ctx context.Context, entityID string, limit int) ([]*models.AlertHistoryEntry, error)
	// DeleteBefore removes entries sent before the given time.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
