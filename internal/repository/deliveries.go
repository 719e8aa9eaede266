package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hookline/hookline/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveriesRepository defines persistence for the deliveries table. The
// attempt counter is persisted before the network call so a crash mid-flight
// can never re-attempt past the budget.
type DeliveriesRepository interface {
	// Insert writes a pending delivery row. If tx is nil an internal
	// transaction is opened/committed; otherwise the given tx is used.
	Insert(ctx context.Context, tx *sqlx.Tx, d model.Delivery) error
	GetByID(ctx context.Context, id string) (*model.Delivery, error)
	IncrementAttempts(ctx context.Context, id string) error
	// RecordAttempt stores the last observed response while the delivery
	// stays pending (a failed attempt with budget remaining).
	RecordAttempt(ctx context.Context, id string, responseStatus *int, responseBody string) error
	MarkSuccess(ctx context.Context, id string, responseStatus int, responseBody string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id string, responseStatus *int, responseBody string) error
	ListByStatus(ctx context.Context, tenantID int64, status model.DeliveryStatus, destinationID string, limit, offset int) ([]model.Delivery, error)
}

type DeliveriesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveriesRepository(db *sqlx.DB) *DeliveriesRepositoryImpl {
	return &DeliveriesRepositoryImpl{db: db}
}

var _ DeliveriesRepository = (*DeliveriesRepositoryImpl)(nil)

func (r *DeliveriesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *DeliveriesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, d model.Delivery) error {
	const q = `
		INSERT INTO deliveries
		    (id, tenant_id, destination_id, event, payload, status, attempts, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,              ?,     ?,       'pending', 0,     NOW(),      NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			d.ID, d.TenantID, d.DestinationID, d.Event, []byte(d.Payload),
		)
		return err
	})
}

func (r *DeliveriesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Delivery, error) {
	var d model.Delivery
	err := r.db.GetContext(ctx, &d, `
		SELECT id, tenant_id, destination_id, event, payload, status, attempts,
		       response_status, response_body, completed_at, created_at, updated_at
		  FROM deliveries
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeliveriesRepositoryImpl) IncrementAttempts(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deliveries SET attempts = attempts + 1, updated_at = NOW() WHERE id = ?
	`, id)
	return err
}

func (r *DeliveriesRepositoryImpl) RecordAttempt(ctx context.Context, id string, responseStatus *int, responseBody string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deliveries
		   SET response_status = ?, response_body = ?, updated_at = NOW()
		 WHERE id = ?
	`, responseStatus, responseBody, id)
	return err
}

func (r *DeliveriesRepositoryImpl) MarkSuccess(ctx context.Context, id string, responseStatus int, responseBody string, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deliveries
		   SET status = 'success', response_status = ?, response_body = ?,
		       completed_at = ?, updated_at = NOW()
		 WHERE id = ?
	`, responseStatus, responseBody, completedAt, id)
	return err
}

func (r *DeliveriesRepositoryImpl) MarkFailed(ctx context.Context, id string, responseStatus *int, responseBody string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deliveries
		   SET status = 'failed', response_status = ?, response_body = ?, updated_at = NOW()
		 WHERE id = ?
	`, responseStatus, responseBody, id)
	return err
}

func (r *DeliveriesRepositoryImpl) ListByStatus(ctx context.Context, tenantID int64, status model.DeliveryStatus, destinationID string, limit, offset int) ([]model.Delivery, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, tenant_id, destination_id, event, payload, status, attempts,
		       response_status, response_body, completed_at, created_at, updated_at
		  FROM deliveries
		 WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	if destinationID != "" {
		q += " AND destination_id = ?"
		args = append(args, destinationID)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Delivery
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
