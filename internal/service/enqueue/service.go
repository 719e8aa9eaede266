package enqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hookline/hookline/internal/model"
	"github.com/hookline/hookline/internal/repository"
	"github.com/hookline/hookline/internal/util"
	"github.com/jmoiron/sqlx"
)

// DeliveriesKafkaTopic is the outbox topic the Debezium relay publishes to
// and the delivery worker consumes from.
const DeliveriesKafkaTopic = "webhooks.deliveries"

// Service creates delivery rows and their outbox envelopes atomically.
// Subscription filtering happens here, before anything is enqueued; the
// dispatcher never sees an event the destination did not ask for.
type Service struct {
	db           *sqlx.DB
	deliveries   repository.DeliveriesRepository
	destinations repository.DestinationsRepository
	outbox       repository.OutboxRepository
}

func New(
	db *sqlx.DB,
	deliveries repository.DeliveriesRepository,
	destinations repository.DestinationsRepository,
	outbox repository.OutboxRepository,
) *Service {
	return &Service{
		db:           db,
		deliveries:   deliveries,
		destinations: destinations,
		outbox:       outbox,
	}
}

// EnqueueEvent fans an event occurrence out to every active destination of
// the tenant subscribed to it, writing deliveries and outbox rows in a
// single transaction. Returns the created delivery IDs.
func (s *Service) EnqueueEvent(ctx context.Context, tenantID int64, event string, payload json.RawMessage) ([]string, error) {
	dests, err := s.destinations.ListActiveForEvent(ctx, tenantID, event)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	if len(dests) == 0 {
		return nil, nil
	}

	var tx *sqlx.Tx
	if s.db != nil { // nil db runs without a transaction (in-memory stores)
		tx, err = s.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer func() { _ = tx.Rollback() }()
	}

	ids := make([]string, 0, len(dests))
	for _, dest := range dests {
		id, err := s.insertOne(ctx, tx, tenantID, dest.ID, event, payload)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// EnqueueDelivery creates one delivery for a specific destination. The
// caller is responsible for having checked the subscription; this is the
// entry point for collaborators that resolve destinations themselves.
func (s *Service) EnqueueDelivery(ctx context.Context, tenantID int64, destinationID, event string, payload json.RawMessage) (string, error) {
	var tx *sqlx.Tx
	var err error
	if s.db != nil {
		tx, err = s.db.BeginTxx(ctx, nil)
		if err != nil {
			return "", err
		}
		defer func() { _ = tx.Rollback() }()
	}

	id, err := s.insertOne(ctx, tx, tenantID, destinationID, event, payload)
	if err != nil {
		return "", err
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (s *Service) insertOne(ctx context.Context, tx *sqlx.Tx, tenantID int64, destinationID, event string, payload json.RawMessage) (string, error) {
	id := util.New()

	del := model.Delivery{
		ID:            id,
		TenantID:      tenantID,
		DestinationID: destinationID,
		Event:         event,
		Payload:       payload,
		Status:        model.DeliveryStatusPending,
	}
	if err := s.deliveries.Insert(ctx, tx, del); err != nil {
		return "", fmt.Errorf("insert delivery: %w", err)
	}

	env, err := json.Marshal(model.Envelope{
		DeliveryID:    id,
		DestinationID: destinationID,
		Event:         event,
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.outbox.Insert(ctx, tx, "delivery", id, DeliveriesKafkaTopic, env); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}
	return id, nil
}
