package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

type sqliteEntityRepo struct {
	db       *sql.DB
	terminal []string
}

const entityColumns = `id, client, owner, status, proposed_amount, approved_amount,
	last_movement_at, updated_at, created_at`

func (r *sqliteEntityRepo) Upsert(ctx context.Context, e *models.TrackedEntity) (err error) {
	start := time.Now()
	defer func() { observe("entity_upsert", start, err) }()

	if e.ID == "" {
		return fmt.Errorf("entity id is required")
	}

	query := `
		INSERT INTO tracked_entities (` + entityColumns + `, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client = excluded.client,
			owner = excluded.owner,
			status = excluded.status,
			proposed_amount = excluded.proposed_amount,
			approved_amount = excluded.approved_amount,
			last_movement_at = excluded.last_movement_at,
			updated_at = excluded.updated_at,
			created_at = excluded.created_at,
			imported_at = excluded.imported_at
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.Client, e.Owner, e.Status,
		e.ProposedAmount.String(), e.ApprovedAmount.String(),
		nullTime(e.LastMovementAt), nullTime(e.UpdatedAt), nullTime(e.CreatedAt),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}
	return nil
}

func (r *sqliteEntityRepo) GetByID(ctx context.Context, id string) (*models.TrackedEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM tracked_entities WHERE id = ?`
	e, err := scanEntity(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func (r *sqliteEntityRepo) ListActive(ctx context.Context) (result []*models.TrackedEntity, err error) {
	start := time.Now()
	defer func() { observe("entity_list_active", start, err) }()

	query := `SELECT ` + entityColumns + ` FROM tracked_entities ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if e.IsTerminal(r.terminal) {
			continue
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *sqliteEntityRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM tracked_entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func (r *sqliteEntityRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_entities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.TrackedEntity, error) {
	e := &models.TrackedEntity{}
	var proposed, approved decimal.NullDecimal
	var lastMovement, updated, created sql.NullString

	err := row.Scan(&e.ID, &e.Client, &e.Owner, &e.Status, &proposed, &approved,
		&lastMovement, &updated, &created)
	if err != nil {
		return nil, err
	}

	e.ProposedAmount = proposed.Decimal
	e.ApprovedAmount = approved.Decimal
	e.LastMovementAt = parseNullTime(lastMovement)
	e.UpdatedAt = parseNullTime(updated)
	e.CreatedAt = parseNullTime(created)
	return e, nil
}
