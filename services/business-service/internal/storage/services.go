package storage

import (
	"context"

	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	IsActive        bool   `json:"is_active"`
}

const serviceColumns = `id::text, tenant_id::text, name, description, duration_minutes, price_cents, is_active`

func scanService(row pgx.Row) (Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceCents, &s.IsActive)
	return s, err
}

func (r *Repository) ListServices(ctx context.Context, tenantID string) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE tenant_id = $1
		ORDER BY name ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetService(ctx context.Context, tenantID, id string) (Service, error) {
	return scanService(r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

// CreateService enforces the plan's max_services.
func (r *Repository) CreateService(ctx context.Context, s Service) (Service, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Service{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockCatalog(ctx, tx, s.TenantID); err != nil {
		return Service{}, err
	}
	limits, err := entitlements.ForTenant(ctx, tx, s.TenantID)
	if err != nil {
		return Service{}, err
	}
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM services WHERE tenant_id = $1`, s.TenantID).Scan(&count); err != nil {
		return Service{}, err
	}
	if err := entitlements.Check(count, limits.MaxServices); err != nil {
		return Service{}, err
	}

	created, err := scanService(tx.QueryRow(ctx, `
		INSERT INTO services (tenant_id, name, description, duration_minutes, price_cents, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+serviceColumns,
		s.TenantID, s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.IsActive))
	if err != nil {
		return Service{}, err
	}
	if err := r.touch(ctx, tx, s.TenantID, "services"); err != nil {
		return Service{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Service{}, err
	}
	return created, nil
}

func (r *Repository) UpdateService(ctx context.Context, s Service) (Service, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Service{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := scanService(tx.QueryRow(ctx, `
		UPDATE services
		SET name = $3, description = $4, duration_minutes = $5, price_cents = $6, is_active = $7, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+serviceColumns,
		s.TenantID, s.ID, s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.IsActive))
	if err != nil {
		return Service{}, err
	}
	if err := r.touch(ctx, tx, s.TenantID, "services"); err != nil {
		return Service{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Service{}, err
	}
	return updated, nil
}

// DeleteService fails with a foreign key violation while appointments
// reference the service.
func (r *Repository) DeleteService(ctx context.Context, tenantID, id string) error {
	return r.deleteCatalogRow(ctx, `DELETE FROM services WHERE tenant_id = $1 AND id = $2`, tenantID, id, "services")
}

func (r *Repository) deleteCatalogRow(ctx context.Context, query, tenantID, id, section string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, query, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if err := r.touch(ctx, tx, tenantID, section); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
