package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Plan struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	PriceCents             int64     `json:"price_cents"`
	MaxStaff               int       `json:"max_staff"`
	MaxServices            int       `json:"max_services"`
	MaxMonthlyAppointments int       `json:"max_monthly_appointments"`
	Features               []string  `json:"features"`
	StripePriceID          string    `json:"stripe_price_id"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
}

const planColumns = `id::text, name, price_cents, max_staff, max_services, max_monthly_appointments,
	features, stripe_price_id, is_active, created_at`

func scanPlan(row pgx.Row) (Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.MaxStaff, &p.MaxServices, &p.MaxMonthlyAppointments,
		&p.Features, &p.StripePriceID, &p.IsActive, &p.CreatedAt)
	if p.Features == nil {
		p.Features = []string{}
	}
	return p, err
}

func (r *Repository) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY price_cents ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetPlan(ctx context.Context, id string) (Plan, error) {
	return scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
}

// CreatePlan returns a unique violation when the name is taken.
func (r *Repository) CreatePlan(ctx context.Context, p Plan) (Plan, error) {
	return scanPlan(r.pool.QueryRow(ctx, `
		INSERT INTO plans (name, price_cents, max_staff, max_services, max_monthly_appointments, features, stripe_price_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+planColumns,
		p.Name, p.PriceCents, p.MaxStaff, p.MaxServices, p.MaxMonthlyAppointments, p.Features, p.StripePriceID, p.IsActive))
}

func (r *Repository) UpdatePlan(ctx context.Context, p Plan) (Plan, error) {
	return scanPlan(r.pool.QueryRow(ctx, `
		UPDATE plans
		SET name = $2, price_cents = $3, max_staff = $4, max_services = $5, max_monthly_appointments = $6,
			features = $7, stripe_price_id = $8, is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+planColumns,
		p.ID, p.Name, p.PriceCents, p.MaxStaff, p.MaxServices, p.MaxMonthlyAppointments, p.Features, p.StripePriceID, p.IsActive))
}

// DeletePlan fails with a foreign key violation while a tenant uses the plan.
func (r *Repository) DeletePlan(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
