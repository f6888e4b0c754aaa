package storage

import (
	"context"

	"github.com/barberflow/barberflow/services/booking-service/internal/model"
)

const tenantColumns = `id::text, slug, name, phone, address, status, timezone,
	pix_key, pix_key_type, pix_merchant_name, pix_merchant_city, pix_copy_paste, logo_key`

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (model.Tenant, error) {
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Phone, &t.Address, &t.Status, &t.Timezone,
		&t.PixKey, &t.PixKeyType, &t.PixMerchantName, &t.PixMerchantCity, &t.PixCopyPaste, &t.LogoKey)
	return t, err
}

func (r *Repository) TenantBySlug(ctx context.Context, slug string) (model.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug))
}

func (r *Repository) TenantByID(ctx context.Context, id string) (model.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (r *Repository) ListServices(ctx context.Context, tenantID string, activeOnly bool) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, description, duration_minutes, price_cents, is_active
		FROM services
		WHERE tenant_id = $1 AND (is_active OR NOT $2)
		ORDER BY name ASC
	`, tenantID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceCents, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetService(ctx context.Context, tenantID, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, description, duration_minutes, price_cents, is_active
		FROM services
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&s.ID, &s.TenantID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceCents, &s.IsActive)
	return s, err
}

func (r *Repository) ListStaff(ctx context.Context, tenantID string, activeOnly bool) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, specialty, is_active
		FROM staff
		WHERE tenant_id = $1 AND (is_active OR NOT $2)
		ORDER BY name ASC
	`, tenantID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Specialty, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetStaff(ctx context.Context, tenantID, id string) (model.Staff, error) {
	var s model.Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, specialty, is_active
		FROM staff
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&s.ID, &s.TenantID, &s.Name, &s.Specialty, &s.IsActive)
	return s, err
}

// BusinessHours returns the configured weekdays only; callers fill the gaps
// with defaults.
func (r *Repository) BusinessHours(ctx context.Context, tenantID string) ([]model.BusinessHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_open, open_minute, close_minute
		FROM business_hours
		WHERE tenant_id = $1
		ORDER BY weekday ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BusinessHours
	for rows.Next() {
		var h model.BusinessHours
		if err := rows.Scan(&h.Weekday, &h.IsOpen, &h.OpenMinute, &h.CloseMinute); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
