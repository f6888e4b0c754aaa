package storage

import (
	"context"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/jackc/pgx/v5"
)

const (
	TenantProvisioned = "manager.tenant.provisioned.v1"
	// TenantUpdated also covers deletion (status "deleted").
	TenantUpdated = "manager.tenant.updated.v1"
)

type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	OwnerName string    `json:"owner_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	PlanID    string    `json:"plan_id,omitempty"`
	PlanName  string    `json:"plan_name"`
	Status    string    `json:"status"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

type TenantEvent struct {
	TenantID string `json:"tenant_id"`
	Slug     string `json:"slug"`
	Name     string `json:"name,omitempty"`
	PlanID   string `json:"plan_id,omitempty"`
	Status   string `json:"status"`
}

const tenantSelect = `
	SELECT t.id::text, t.slug, t.name, t.owner_name, t.email, t.phone,
		COALESCE(t.plan_id::text, ''), COALESCE(p.name, 'free'), t.status, t.timezone, t.created_at
	FROM tenants t
	LEFT JOIN plans p ON p.id = t.plan_id`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.OwnerName, &t.Email, &t.Phone,
		&t.PlanID, &t.PlanName, &t.Status, &t.Timezone, &t.CreatedAt)
	return t, err
}

// ListTenants filters by status when it is not empty.
func (r *Repository) ListTenants(ctx context.Context, status string) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, tenantSelect+`
		WHERE ($1 = '' OR t.status = $1)
		ORDER BY t.created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) GetTenant(ctx context.Context, id string) (Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, tenantSelect+` WHERE t.id = $1`, id))
}

// Provision is everything needed to open a new barbershop.
type Provision struct {
	Slug         string
	Name         string
	OwnerName    string
	Email        string
	Phone        string
	PlanID       string
	PasswordHash string
}

// Default week: Monday to Saturday 09:00-19:00, Sunday closed.
const (
	defaultOpenMinute  = 9 * 60
	defaultCloseMinute = 19 * 60
)

// CreateTenant provisions the tenant, its admin login, default business
// hours and, with a plan, a local subscription in one transaction. A taken
// slug surfaces as a unique violation, an unknown plan as a foreign key
// violation.
func (r *Repository) CreateTenant(ctx context.Context, p Provision, evt audit.Event) (Tenant, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Tenant{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO tenants (slug, name, owner_name, email, phone, plan_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
		RETURNING id::text
	`, p.Slug, p.Name, p.OwnerName, p.Email, p.Phone, p.PlanID).Scan(&id)
	if err != nil {
		return Tenant{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO tenant_admins (tenant_id, email, password_hash)
		VALUES ($1, $2, $3)
	`, id, p.Email, p.PasswordHash); err != nil {
		return Tenant{}, err
	}

	for wd := 0; wd <= 6; wd++ {
		if _, err := tx.Exec(ctx, `
			INSERT INTO business_hours (tenant_id, weekday, is_open, open_minute, close_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, id, wd, wd != 0, defaultOpenMinute, defaultCloseMinute); err != nil {
			return Tenant{}, err
		}
	}

	if p.PlanID != "" {
		if err := r.UpsertSubscription(ctx, tx, Subscription{
			TenantID: id,
			PlanID:   p.PlanID,
			Status:   "active",
			Provider: "local",
		}); err != nil {
			return Tenant{}, err
		}
	}

	evt.TenantID = id
	if err := r.audit.Insert(ctx, tx, evt); err != nil {
		return Tenant{}, err
	}
	if err := r.emitTenant(ctx, tx, TenantProvisioned, TenantEvent{
		TenantID: id,
		Slug:     p.Slug,
		Name:     p.Name,
		PlanID:   p.PlanID,
		Status:   "active",
	}); err != nil {
		return Tenant{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Tenant{}, err
	}
	return r.GetTenant(ctx, id)
}

type TenantUpdate struct {
	ID        string
	Name      string
	OwnerName string
	Email     string
	Phone     string
	Status    string
}

func (r *Repository) UpdateTenant(ctx context.Context, u TenantUpdate, evt audit.Event) (Tenant, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Tenant{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var slug string
	err = tx.QueryRow(ctx, `
		UPDATE tenants
		SET name = $2, owner_name = $3, email = $4, phone = $5, status = $6, updated_at = now()
		WHERE id = $1
		RETURNING slug
	`, u.ID, u.Name, u.OwnerName, u.Email, u.Phone, u.Status).Scan(&slug)
	if err != nil {
		return Tenant{}, err
	}
	if err := r.audit.Insert(ctx, tx, evt); err != nil {
		return Tenant{}, err
	}
	if err := r.emitTenant(ctx, tx, TenantUpdated, TenantEvent{TenantID: u.ID, Slug: slug, Name: u.Name, Status: u.Status}); err != nil {
		return Tenant{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Tenant{}, err
	}
	return r.GetTenant(ctx, u.ID)
}

// DeleteTenant removes the tenant; its data goes with it through
// ON DELETE CASCADE.
func (r *Repository) DeleteTenant(ctx context.Context, id string, evt audit.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var slug string
	if err := tx.QueryRow(ctx, `DELETE FROM tenants WHERE id = $1 RETURNING slug`, id).Scan(&slug); err != nil {
		return err
	}
	// audit_events.tenant_id has no foreign key, so the trail survives.
	if evt.Metadata == nil {
		evt.Metadata = map[string]any{}
	}
	evt.Metadata["slug"] = slug
	if err := r.audit.Insert(ctx, tx, evt); err != nil {
		return err
	}
	if err := r.emitTenant(ctx, tx, TenantUpdated, TenantEvent{TenantID: id, Slug: slug, Status: "deleted"}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ResetAdminPassword replaces the tenant admin hash and revokes every
// refresh token of the tenant.
func (r *Repository) ResetAdminPassword(ctx context.Context, tenantID, passwordHash string, evt audit.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE tenant_admins
		SET password_hash = $2, password_updated_at = now()
		WHERE tenant_id = $1
	`, tenantID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE tenant_id = $1 AND revoked_at IS NULL
	`, tenantID); err != nil {
		return err
	}
	if err := r.audit.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type PlanCount struct {
	PlanID   string `json:"plan_id,omitempty"`
	PlanName string `json:"plan_name"`
	Tenants  int    `json:"tenants"`
}

type Overview struct {
	TotalTenants     int         `json:"total_tenants"`
	ActiveTenants    int         `json:"active_tenants"`
	SuspendedTenants int         `json:"suspended_tenants"`
	MRRCents         int64       `json:"mrr_cents"`
	TenantsPerPlan   []PlanCount `json:"tenants_per_plan"`
}

// Overview sums plan prices of active tenants as MRR.
func (r *Repository) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE t.status = 'active'),
			COUNT(*) FILTER (WHERE t.status = 'suspended'),
			COALESCE(SUM(p.price_cents) FILTER (WHERE t.status = 'active'), 0)
		FROM tenants t
		LEFT JOIN plans p ON p.id = t.plan_id
	`).Scan(&o.TotalTenants, &o.ActiveTenants, &o.SuspendedTenants, &o.MRRCents)
	if err != nil {
		return Overview{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(p.id::text, ''), COALESCE(p.name, 'free'), COUNT(*)
		FROM tenants t
		LEFT JOIN plans p ON p.id = t.plan_id
		GROUP BY p.id, p.name
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return Overview{}, err
	}
	defer rows.Close()

	o.TenantsPerPlan = []PlanCount{}
	for rows.Next() {
		var pc PlanCount
		if err := rows.Scan(&pc.PlanID, &pc.PlanName, &pc.Tenants); err != nil {
			return Overview{}, err
		}
		o.TenantsPerPlan = append(o.TenantsPerPlan, pc)
	}
	return o, rows.Err()
}

func (r *Repository) emitTenant(ctx context.Context, tx pgx.Tx, eventType string, payload TenantEvent) error {
	evt, err := outbox.NewEvent("tenant", payload.TenantID, eventType, payload)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}
