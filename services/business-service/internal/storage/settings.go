package storage

import (
	"context"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/jackc/pgx/v5"
)

type Settings struct {
	TenantID        string `json:"tenant_id"`
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	Timezone        string `json:"timezone"`
	PixKey          string `json:"pix_key"`
	PixKeyType      string `json:"pix_key_type"`
	PixMerchantName string `json:"pix_merchant_name"`
	PixMerchantCity string `json:"pix_merchant_city"`
	PixCopyPaste    string `json:"pix_copy_paste"`
	LogoKey         string `json:"-"`
}

type Hours struct {
	Weekday     int
	IsOpen      bool
	OpenMinute  int
	CloseMinute int
}

func (r *Repository) GetSettings(ctx context.Context, tenantID string) (Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, slug, name, phone, address, timezone,
			pix_key, pix_key_type, pix_merchant_name, pix_merchant_city, pix_copy_paste, logo_key
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&s.TenantID, &s.Slug, &s.Name, &s.Phone, &s.Address, &s.Timezone,
		&s.PixKey, &s.PixKeyType, &s.PixMerchantName, &s.PixMerchantCity, &s.PixCopyPaste, &s.LogoKey)
	return s, err
}

// UpdateSettings stores the editable profile and PIX fields. Slug and logo
// are left alone.
func (r *Repository) UpdateSettings(ctx context.Context, s Settings, evt audit.Event) (Settings, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Settings{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE tenants
		SET name = $2, phone = $3, address = $4, timezone = $5,
			pix_key = $6, pix_key_type = $7, pix_merchant_name = $8, pix_merchant_city = $9,
			pix_copy_paste = $10
		WHERE id = $1
	`, s.TenantID, s.Name, s.Phone, s.Address, s.Timezone,
		s.PixKey, s.PixKeyType, s.PixMerchantName, s.PixMerchantCity, s.PixCopyPaste)
	if err != nil {
		return Settings{}, err
	}
	if tag.RowsAffected() == 0 {
		return Settings{}, pgx.ErrNoRows
	}
	if err := r.audit.Insert(ctx, tx, evt); err != nil {
		return Settings{}, err
	}
	if err := r.touch(ctx, tx, s.TenantID, "settings"); err != nil {
		return Settings{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Settings{}, err
	}
	return r.GetSettings(ctx, s.TenantID)
}

func (r *Repository) SetLogo(ctx context.Context, tenantID, key string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE tenants SET logo_key = $2 WHERE id = $1`, tenantID, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if err := r.touch(ctx, tx, tenantID, "logo"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Limits(ctx context.Context, tenantID string) (entitlements.Limits, error) {
	return entitlements.ForTenant(ctx, r.pool, tenantID)
}

// BusinessHours returns only configured weekdays.
func (r *Repository) BusinessHours(ctx context.Context, tenantID string) ([]Hours, error) {
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

	var out []Hours
	for rows.Next() {
		var h Hours
		if err := rows.Scan(&h.Weekday, &h.IsOpen, &h.OpenMinute, &h.CloseMinute); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReplaceBusinessHours upserts every given weekday in one transaction.
func (r *Repository) ReplaceBusinessHours(ctx context.Context, tenantID string, hours []Hours) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, h := range hours {
		_, err := tx.Exec(ctx, `
			INSERT INTO business_hours (tenant_id, weekday, is_open, open_minute, close_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tenant_id, weekday) DO UPDATE
			SET is_open = EXCLUDED.is_open,
				open_minute = EXCLUDED.open_minute,
				close_minute = EXCLUDED.close_minute
		`, tenantID, h.Weekday, h.IsOpen, h.OpenMinute, h.CloseMinute)
		if err != nil {
			return err
		}
	}
	if err := r.touch(ctx, tx, tenantID, "hours"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
