// Package entitlements resolves plan limits for a tenant.
package entitlements

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrLimitReached maps to 402 Payment Required at the HTTP edge.
var ErrLimitReached = errors.New("plan limit reached")

// Limits are the feature caps of a plan. Zero means unlimited.
type Limits struct {
	PlanID                 string `json:"plan_id,omitempty"`
	PlanName               string `json:"plan_name"`
	MaxStaff               int    `json:"max_staff"`
	MaxServices            int    `json:"max_services"`
	MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
}

// Free applies to tenants without a plan.
func Free() Limits {
	return Limits{
		PlanName:               "free",
		MaxStaff:               2,
		MaxServices:            5,
		MaxMonthlyAppointments: 100,
	}
}

// Allows reports whether one more item fits under max.
func Allows(current, max int) bool {
	return max <= 0 || current < max
}

// Check returns ErrLimitReached when one more item would exceed max.
func Check(current, max int) error {
	if Allows(current, max) {
		return nil
	}
	return ErrLimitReached
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ForTenant loads the limits of the tenant's plan. Works on a pool or a tx.
func ForTenant(ctx context.Context, q rowQuerier, tenantID string) (Limits, error) {
	var (
		planID   *string
		name     *string
		staff    *int
		services *int
		monthly  *int
	)
	err := q.QueryRow(ctx, `
		SELECT p.id::text, p.name, p.max_staff, p.max_services, p.max_monthly_appointments
		FROM tenants t
		LEFT JOIN plans p ON p.id = t.plan_id
		WHERE t.id = $1
	`, tenantID).Scan(&planID, &name, &staff, &services, &monthly)
	if err != nil {
		return Limits{}, err
	}
	if planID == nil {
		return Free(), nil
	}
	return Limits{
		PlanID:                 *planID,
		PlanName:               *name,
		MaxStaff:               *staff,
		MaxServices:            *services,
		MaxMonthlyAppointments: *monthly,
	}, nil
}
