package repository

import (
	"context"

	"github.com/hookline/hookline/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHDeliveriesRepository lists deliveries from ClickHouse (final view).
type CHDeliveriesRepository interface {
	ListByTenant(ctx context.Context, tenantID int64, status model.DeliveryStatus, destinationID string, limit, offset int) ([]model.Delivery, error)
}

type chDeliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveriesRepository(ch *sqlx.DB) CHDeliveriesRepository {
	return &chDeliveriesRepository{ch: ch}
}

func (r *chDeliveriesRepository) ListByTenant(ctx context.Context, tenantID int64, status model.DeliveryStatus, destinationID string, limit, offset int) ([]model.Delivery, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, tenant_id, destination_id, event, payload, status, attempts,
		       response_status, response_body, completed_at, created_at, updated_at
		FROM hookline.deliveries_latest
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
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
