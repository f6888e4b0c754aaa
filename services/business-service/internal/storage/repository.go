package storage

import (
	"context"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/jackc/pgx/v5"
)

// TenantUpdated tells readers of the public profile (booking-service) that
// cached copies are stale.
const TenantUpdated = "business.tenant.updated.v1"

type TenantUpdatedPayload struct {
	TenantID string `json:"tenant_id"`
	Slug     string `json:"slug"`
	Section  string `json:"section"`
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	audit  *audit.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository, auditRepo *audit.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo, audit: auditRepo}
}

// touch bumps tenants.updated_at and queues TenantUpdated in tx.
func (r *Repository) touch(ctx context.Context, tx pgx.Tx, tenantID, section string) error {
	var slug string
	if err := tx.QueryRow(ctx, `
		UPDATE tenants SET updated_at = now()
		WHERE id = $1
		RETURNING slug
	`, tenantID).Scan(&slug); err != nil {
		return err
	}
	evt, err := outbox.NewEvent("tenant", tenantID, TenantUpdated, TenantUpdatedPayload{
		TenantID: tenantID,
		Slug:     slug,
		Section:  section,
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

// lockCatalog serializes catalog writes of one tenant so plan limits hold.
func lockCatalog(ctx context.Context, tx pgx.Tx, tenantID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "catalog:"+tenantID)
	return err
}
