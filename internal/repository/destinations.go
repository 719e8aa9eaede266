package repository

import (
	"context"
	"database/sql"

	"github.com/hookline/hookline/internal/model"
	"github.com/jmoiron/sqlx"
)

// DestinationsRepository is the authoritative source of destination liveness
// and subscription data. Destinations are never hard-deleted; deactivation is
// the retirement path so historical deliveries keep a valid reference.
type DestinationsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, d model.Destination) error
	GetByID(ctx context.Context, id string) (*model.Destination, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]model.Destination, error)
	// ListActiveForEvent returns active destinations of the tenant whose
	// event set contains the given event name.
	ListActiveForEvent(ctx context.Context, tenantID int64, event string) ([]model.Destination, error)
	Update(ctx context.Context, tenantID int64, id string, p UpdateDestinationParams) error
	RotateSecret(ctx context.Context, tenantID int64, id, secret string) error
}

// UpdateDestinationParams carries optional mutations; nil fields are left as-is.
type UpdateDestinationParams struct {
	URL      *string
	Events   model.EventSet
	IsActive *bool
}

type DestinationsRepositoryImpl struct {
	db *sqlx.DB
}

func NewDestinationsRepository(db *sqlx.DB) *DestinationsRepositoryImpl {
	return &DestinationsRepositoryImpl{db: db}
}

var _ DestinationsRepository = (*DestinationsRepositoryImpl)(nil)

func (r *DestinationsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *DestinationsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, d model.Destination) error {
	const q = `
		INSERT INTO destinations
		    (id, tenant_id, url, secret, events, is_active, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,   ?,      ?,      ?,         NOW(),      NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			d.ID, d.TenantID, d.URL, d.Secret, d.Events, d.IsActive,
		)
		return err
	})
}

func (r *DestinationsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Destination, error) {
	var d model.Destination
	err := r.db.GetContext(ctx, &d, `
		SELECT id, tenant_id, url, secret, events, is_active, created_at, updated_at
		  FROM destinations
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

func (r *DestinationsRepositoryImpl) ListByTenant(ctx context.Context, tenantID int64) ([]model.Destination, error) {
	var rows []model.Destination
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, url, secret, events, is_active, created_at, updated_at
		  FROM destinations
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DestinationsRepositoryImpl) ListActiveForEvent(ctx context.Context, tenantID int64, event string) ([]model.Destination, error) {
	// JSON_CONTAINS does the subscription filtering in MySQL; the events
	// column holds a JSON array of event name strings.
	var rows []model.Destination
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, url, secret, events, is_active, created_at, updated_at
		  FROM destinations
		 WHERE tenant_id = ? AND is_active = 1
		   AND JSON_CONTAINS(events, JSON_QUOTE(?))
	`, tenantID, event)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DestinationsRepositoryImpl) Update(ctx context.Context, tenantID int64, id string, p UpdateDestinationParams) error {
	q := `UPDATE destinations SET updated_at = NOW()`
	args := []any{}

	if p.URL != nil {
		q += ", url = ?"
		args = append(args, *p.URL)
	}
	if p.Events != nil {
		q += ", events = ?"
		args = append(args, p.Events)
	}
	if p.IsActive != nil {
		q += ", is_active = ?"
		args = append(args, *p.IsActive)
	}

	q += " WHERE tenant_id = ? AND id = ?"
	args = append(args, tenantID, id)

	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *DestinationsRepositoryImpl) RotateSecret(ctx context.Context, tenantID int64, id, secret string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE destinations SET secret = ?, updated_at = NOW()
		 WHERE tenant_id = ? AND id = ?
	`, secret, tenantID, id)
	return err
}
