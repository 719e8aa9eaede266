package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hookline/hookline/internal/model"
	"github.com/jmoiron/sqlx"
)

// In-memory repository implementations. They back unit tests and local
// development without a MySQL instance.

type MemoryDeliveries struct {
	mu   sync.Mutex
	rows map[string]*model.Delivery
}

func NewMemoryDeliveries() *MemoryDeliveries {
	return &MemoryDeliveries{rows: make(map[string]*model.Delivery)}
}

var _ DeliveriesRepository = (*MemoryDeliveries)(nil)

func (m *MemoryDeliveries) Insert(ctx context.Context, tx *sqlx.Tx, d model.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	d.Status = model.DeliveryStatusPending
	d.Attempts = 0
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := d
	m.rows[d.ID] = &cp
	return nil
}

func (m *MemoryDeliveries) GetByID(ctx context.Context, id string) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryDeliveries) IncrementAttempts(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok {
		d.Attempts++
		d.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryDeliveries) RecordAttempt(ctx context.Context, id string, responseStatus *int, responseBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok {
		d.ResponseStatus = responseStatus
		d.ResponseBody = &responseBody
		d.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryDeliveries) MarkSuccess(ctx context.Context, id string, responseStatus int, responseBody string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok {
		d.Status = model.DeliveryStatusSuccess
		d.ResponseStatus = &responseStatus
		d.ResponseBody = &responseBody
		d.CompletedAt = &completedAt
		d.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryDeliveries) MarkFailed(ctx context.Context, id string, responseStatus *int, responseBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok {
		d.Status = model.DeliveryStatusFailed
		d.ResponseStatus = responseStatus
		d.ResponseBody = &responseBody
		d.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryDeliveries) ListByStatus(ctx context.Context, tenantID int64, status model.DeliveryStatus, destinationID string, limit, offset int) ([]model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Delivery
	for _, d := range m.rows {
		if d.TenantID != tenantID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		if destinationID != "" && d.DestinationID != destinationID {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MemoryDestinations struct {
	mu   sync.Mutex
	rows map[string]*model.Destination
}

func NewMemoryDestinations() *MemoryDestinations {
	return &MemoryDestinations{rows: make(map[string]*model.Destination)}
}

var _ DestinationsRepository = (*MemoryDestinations)(nil)

func (m *MemoryDestinations) Insert(ctx context.Context, tx *sqlx.Tx, d model.Destination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := d
	m.rows[d.ID] = &cp
	return nil
}

func (m *MemoryDestinations) GetByID(ctx context.Context, id string) (*model.Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryDestinations) ListByTenant(ctx context.Context, tenantID int64) ([]model.Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Destination
	for _, d := range m.rows {
		if d.TenantID == tenantID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDestinations) ListActiveForEvent(ctx context.Context, tenantID int64, event string) ([]model.Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Destination
	for _, d := range m.rows {
		if d.TenantID == tenantID && d.IsActive && d.Subscribed(event) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDestinations) Update(ctx context.Context, tenantID int64, id string, p UpdateDestinationParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok || d.TenantID != tenantID {
		return nil
	}
	if p.URL != nil {
		d.URL = *p.URL
	}
	if p.Events != nil {
		d.Events = p.Events
	}
	if p.IsActive != nil {
		d.IsActive = *p.IsActive
	}
	d.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDestinations) RotateSecret(ctx context.Context, tenantID int64, id, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok && d.TenantID == tenantID {
		d.Secret = secret
		d.UpdatedAt = time.Now()
	}
	return nil
}

type MemoryAttempts struct {
	mu   sync.Mutex
	rows map[string][]model.DeliveryAttempt
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{rows: make(map[string][]model.DeliveryAttempt)}
}

var _ AttemptsRepository = (*MemoryAttempts)(nil)

func (m *MemoryAttempts) Insert(ctx context.Context, a model.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	a.ID = int64(len(m.rows[a.DeliveryID]) + 1)
	m.rows[a.DeliveryID] = append(m.rows[a.DeliveryID], a)
	return nil
}

func (m *MemoryAttempts) ListByDelivery(ctx context.Context, deliveryID string) ([]model.DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DeliveryAttempt(nil), m.rows[deliveryID]...), nil
}
