package repository

import (
	"context"

	"github.com/hookline/hookline/internal/model"
	"github.com/jmoiron/sqlx"
)

type AttemptsRepository interface {
	// Insert records one attempt. The (delivery_id, attempt_no) unique key
	// makes replays after a worker crash harmless.
	Insert(ctx context.Context, a model.DeliveryAttempt) error
	ListByDelivery(ctx context.Context, deliveryID string) ([]model.DeliveryAttempt, error)
}

type AttemptsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAttemptsRepository(db *sqlx.DB) *AttemptsRepositoryImpl {
	return &AttemptsRepositoryImpl{db: db}
}

var _ AttemptsRepository = (*AttemptsRepositoryImpl)(nil)

func (r *AttemptsRepositoryImpl) Insert(ctx context.Context, a model.DeliveryAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_attempts
		    (delivery_id, attempt_no, response_status, response_body, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE id = id
	`, a.DeliveryID, a.AttemptNo, a.ResponseStatus, a.ResponseBody, a.LatencyMs)
	return err
}

func (r *AttemptsRepositoryImpl) ListByDelivery(ctx context.Context, deliveryID string) ([]model.DeliveryAttempt, error) {
	var rows []model.DeliveryAttempt
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, delivery_id, attempt_no, response_status, response_body, latency_ms, created_at
		  FROM delivery_attempts
		 WHERE delivery_id = ?
		 ORDER BY attempt_no ASC
	`, deliveryID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
