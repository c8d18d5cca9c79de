package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Tracked entities (record source)
			CREATE TABLE IF NOT EXISTS tracked_entities (
				id TEXT PRIMARY KEY,
				client TEXT NOT NULL DEFAULT '',
				owner TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				proposed_amount TEXT,
				approved_amount TEXT,
				last_movement_at TEXT,
				updated_at TEXT,
				created_at TEXT,
				imported_at TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_tracked_entities_status ON tracked_entities(status);

			-- Alert history ledger
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				entity_id TEXT NOT NULL,
				day_threshold INTEGER NOT NULL,
				level TEXT NOT NULL,
				recipients_json TEXT NOT NULL,
				subject TEXT NOT NULL DEFAULT '',
				age_days INTEGER NOT NULL,
				sent_at TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_alert_history_entity_rule ON alert_history(entity_id, day_threshold, sent_at);
			CREATE INDEX IF NOT EXISTS idx_alert_history_sent_at ON alert_history(sent_at);
		`,
	},
	{
		Version: 2,
		Name:    "cooldown_states",
		Up: `
			-- Per-entity throttling state, updated with optimistic locking on version
			CREATE TABLE IF NOT EXISTS cooldown_states (
				entity_id TEXT PRIMARY KEY,
				state_json TEXT NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				updated_at TEXT NOT NULL
			);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, formatTime(time.Now()),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
