package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const backendSQLite = "sqlite"

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path             string
	terminalStatuses []string
	db               *sql.DB

	entities       *sqliteEntityRepo
	alertHistory   *sqliteAlertHistoryRepo
	cooldownStates *sqliteCooldownStateRepo
}

// NewSQLiteStorage creates a new SQLite storage. Entities whose status is in
// terminalStatuses are excluded from ListActive; nil uses the defaults.
func NewSQLiteStorage(path string, terminalStatuses []string) *SQLiteStorage {
	if terminalStatuses == nil {
		terminalStatuses = models.DefaultTerminalStatuses
	}
	return &SQLiteStorage{
		path:             path,
		terminalStatuses: terminalStatuses,
	}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", s.path))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	// Initialize repositories
	s.entities = &sqliteEntityRepo{db: db, terminal: s.terminalStatuses}
	s.alertHistory = &sqliteAlertHistoryRepo{db: db}
	s.cooldownStates = &sqliteCooldownStateRepo{db: db, maxRetries: defaultCASRetries}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not open")
	}
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Entities returns the tracked entity repository.
func (s *SQLiteStorage) Entities() EntityRepository {
	return s.entities
}

// AlertHistory returns the alert history repository.
func (s *SQLiteStorage) AlertHistory() AlertHistoryRepository {
	return s.alertHistory
}

// CooldownStates returns the SQLite-backed cooldown state store.
func (s *SQLiteStorage) CooldownStates() alerting.StateStore {
	return s.cooldownStates
}

// timeLayout is fixed-width UTC so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, ok := alerting.ParseActivityTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

// parseNullTime parses an optional timestamp. Unparseable text counts as absent.
func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, ok := alerting.ParseActivityTime(ns.String)
	if !ok {
		return nil
	}
	return &t
}

// observe records query latency and errors for a storage operation.
func observe(operation string, start time.Time, err error) {
	metrics.StorageQueryDuration.WithLabelValues(operation, backendSQLite).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues(operation, backendSQLite).Inc()
	}
}
