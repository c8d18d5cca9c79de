package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

const defaultCASRetries = 5

// ErrConflict is returned when an optimistic update keeps losing races.
var ErrConflict = errors.New("cooldown state update conflict")

type sqliteCooldownStateRepo struct {
	db         *sql.DB
	maxRetries int
}

func (r *sqliteCooldownStateRepo) Get(ctx context.Context, entityID string) (*models.CooldownState, error) {
	state, _, err := r.load(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *sqliteCooldownStateRepo) load(ctx context.Context, entityID string) (*models.CooldownState, int64, error) {
	var data string
	var version int64
	err := r.db.QueryRowContext(ctx,
		"SELECT state_json, version FROM cooldown_states WHERE entity_id = ?", entityID,
	).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, 0, alerting.ErrStateNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get cooldown state: %w", err)
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, 0, err
	}
	return state, version, nil
}

// Update reads the row, applies fn and writes it back only if the version
// is unchanged, retrying on conflict.
func (r *sqliteCooldownStateRepo) Update(ctx context.Context, entityID string, fn alerting.UpdateFunc) (_ *models.CooldownState, err error) {
	start := time.Now()
	defer func() { observe("cooldown_update", start, err) }()

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		current, version, err := r.load(ctx, entityID)
		exists := true
		if errors.Is(err, alerting.ErrStateNotFound) {
			exists = false
			current = models.NewCooldownState(entityID)
		} else if err != nil {
			return nil, err
		}

		if err := fn(current, exists); err != nil {
			return nil, err
		}

		data, err := encodeState(current)
		if err != nil {
			return nil, err
		}

		var res sql.Result
		if exists {
			res, err = r.db.ExecContext(ctx, `
				UPDATE cooldown_states SET state_json = ?, version = version + 1, updated_at = ?
				WHERE entity_id = ? AND version = ?`,
				data, formatTime(time.Now()), entityID, version)
		} else {
			res, err = r.db.ExecContext(ctx, `
				INSERT INTO cooldown_states (entity_id, state_json, version, updated_at)
				VALUES (?, ?, 1, ?)
				ON CONFLICT(entity_id) DO NOTHING`,
				entityID, data, formatTime(time.Now()))
		}
		if err != nil {
			return nil, fmt.Errorf("write cooldown state: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("write cooldown state: %w", err)
		}
		if n == 1 {
			return current, nil
		}
		metrics.StorageConflictsTotal.WithLabelValues(backendSQLite).Inc()
	}
	return nil, fmt.Errorf("%w for %s after %d attempts", ErrConflict, entityID, r.maxRetries)
}

func (r *sqliteCooldownStateRepo) List(ctx context.Context) ([]*models.CooldownState, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT state_json FROM cooldown_states ORDER BY entity_id")
	if err != nil {
		return nil, fmt.Errorf("query cooldown states: %w", err)
	}
	defer rows.Close()

	var states []*models.CooldownState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan cooldown state: %w", err)
		}
		state, err := decodeState(data)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func encodeState(s *models.CooldownState) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode cooldown state: %w", err)
	}
	return string(data), nil
}

func decodeState(data string) (*models.CooldownState, error) {
	state := &models.CooldownState{}
	if err := json.Unmarshal([]byte(data), state); err != nil {
		return nil, fmt.Errorf("decode cooldown state: %w", err)
	}
	if state.Rules == nil {
		state.Rules = make(map[int]*models.RuleSendState)
	}
	if state.LastUserAction == "" {
		state.LastUserAction = models.ActionNone
	}
	return state, nil
}
