package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

type sqliteAlertHistoryRepo struct {
	db *sql.DB
}

const historyColumns = `id, entity_id, day_threshold, level, recipients_json, subject, age_days, sent_at`

func (r *sqliteAlertHistoryRepo) Create(ctx context.Context, h *models.AlertHistoryEntry) (err error) {
	start := time.Now()
	defer func() { observe("history_create", start, err) }()

	recipients := h.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	query := `INSERT INTO alert_history (` + historyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		h.ID, h.EntityID, h.DayThreshold, string(h.Level), string(recipientsJSON),
		h.Subject, h.AgeDaysAtSend, formatTime(h.SentAt),
	)
	if err != nil {
		return fmt.Errorf("create alert history: %w", err)
	}
	return nil
}

func (r *sqliteAlertHistoryRepo) LastForRule(ctx context.Context, entityID string, dayThreshold int) (_ *models.AlertHistoryEntry, err error) {
	start := time.Now()
	defer func() { observe("history_last_for_rule", start, err) }()

	query := `
		SELECT ` + historyColumns + `
		FROM alert_history
		WHERE entity_id = ? AND day_threshold = ?
		ORDER BY sent_at DESC LIMIT 1
	`
	h, err := scanHistory(r.db.QueryRowContext(ctx, query, entityID, dayThreshold))
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last alert history: %w", err)
	}
	return h, nil
}

func (r *sqliteAlertHistoryRepo) List(ctx context.Context, entityID string, limit int) ([]*models.AlertHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if entityID == "" {
		query := `SELECT ` + historyColumns + ` FROM alert_history ORDER BY sent_at DESC LIMIT ?`
		rows, err = r.db.QueryContext(ctx, query, limit)
	} else {
		query := `SELECT ` + historyColumns + ` FROM alert_history WHERE entity_id = ? ORDER BY sent_at DESC LIMIT ?`
		rows, err = r.db.QueryContext(ctx, query, entityID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var entries []*models.AlertHistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func (r *sqliteAlertHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_history WHERE sent_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("delete alert history: %w", err)
	}
	return result.RowsAffected()
}

func scanHistory(row rowScanner) (*models.AlertHistoryEntry, error) {
	h := &models.AlertHistoryEntry{}
	var level, recipientsJSON, sentAt string

	err := row.Scan(&h.ID, &h.EntityID, &h.DayThreshold, &level, &recipientsJSON,
		&h.Subject, &h.AgeDaysAtSend, &sentAt)
	if err != nil {
		return nil, err
	}

	h.Level = models.Level(level)
	if err := json.Unmarshal([]byte(recipientsJSON), &h.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients for %s: %w", h.ID, err)
	}
	if h.SentAt, err = parseTime(sentAt); err != nil {
		return nil, fmt.Errorf("alert history %s: %w", h.ID, err)
	}
	return h, nil
}
