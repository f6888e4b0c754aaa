package storage

import (
	"context"

	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/jackc/pgx/v5"
)

type Staff struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
	IsActive  bool   `json:"is_active"`
}

const staffColumns = `id::text, tenant_id::text, name, phone, specialty, is_active`

func scanStaff(row pgx.Row) (Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Phone, &s.Specialty, &s.IsActive)
	return s, err
}

func (r *Repository) ListStaff(ctx context.Context, tenantID string) ([]Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+staffColumns+`
		FROM staff
		WHERE tenant_id = $1
		ORDER BY name ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Staff{}
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetStaff(ctx context.Context, tenantID, id string) (Staff, error) {
	return scanStaff(r.pool.QueryRow(ctx, `
		SELECT `+staffColumns+` FROM staff WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

// CreateStaff enforces the plan's max_staff.
func (r *Repository) CreateStaff(ctx context.Context, s Staff) (Staff, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Staff{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockCatalog(ctx, tx, s.TenantID); err != nil {
		return Staff{}, err
	}
	limits, err := entitlements.ForTenant(ctx, tx, s.TenantID)
	if err != nil {
		return Staff{}, err
	}
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM staff WHERE tenant_id = $1`, s.TenantID).Scan(&count); err != nil {
		return Staff{}, err
	}
	if err := entitlements.Check(count, limits.MaxStaff); err != nil {
		return Staff{}, err
	}

	created, err := scanStaff(tx.QueryRow(ctx, `
		INSERT INTO staff (tenant_id, name, phone, specialty, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+staffColumns,
		s.TenantID, s.Name, s.Phone, s.Specialty, s.IsActive))
	if err != nil {
		return Staff{}, err
	}
	if err := r.touch(ctx, tx, s.TenantID, "staff"); err != nil {
		return Staff{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Staff{}, err
	}
	return created, nil
}

func (r *Repository) UpdateStaff(ctx context.Context, s Staff) (Staff, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Staff{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := scanStaff(tx.QueryRow(ctx, `
		UPDATE staff
		SET name = $3, phone = $4, specialty = $5, is_active = $6, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+staffColumns,
		s.TenantID, s.ID, s.Name, s.Phone, s.Specialty, s.IsActive))
	if err != nil {
		return Staff{}, err
	}
	if err := r.touch(ctx, tx, s.TenantID, "staff"); err != nil {
		return Staff{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Staff{}, err
	}
	return updated, nil
}

func (r *Repository) DeleteStaff(ctx context.Context, tenantID, id string) error {
	return r.deleteCatalogRow(ctx, `DELETE FROM staff WHERE tenant_id = $1 AND id = $2`, tenantID, id, "staff")
}
