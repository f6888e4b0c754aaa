// Package storage reads and updates the credentials the auth service checks.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/jackc/pgx/v5"
)

const AdminPasswordChanged = "auth.admin.password_changed.v1"

// Operator is a platform operator using the manager console.
type Operator struct {
	ID           string
	Email        string
	PasswordHash string
}

// TenantAdmin is the single admin credential of a barbershop.
type TenantAdmin struct {
	TenantID     string
	Slug         string
	Status       string
	PasswordHash string
}

func (a TenantAdmin) Suspended() bool {
	return a.Status != "active"
}

type CredentialRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	audit  *audit.Repository
}

func NewCredentialRepository(pool *db.Pool, outboxRepo *outbox.Repository, auditRepo *audit.Repository) *CredentialRepository {
	return &CredentialRepository{pool: pool, outbox: outboxRepo, audit: auditRepo}
}

func (r *CredentialRepository) OperatorByEmail(ctx context.Context, email string) (Operator, error) {
	var op Operator
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash FROM platform_operators WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&op.ID, &op.Email, &op.PasswordHash)
	return op, err
}

func (r *CredentialRepository) OperatorByID(ctx context.Context, id string) (Operator, error) {
	var op Operator
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash FROM platform_operators WHERE id = $1
	`, id).Scan(&op.ID, &op.Email, &op.PasswordHash)
	return op, err
}

// EnsureOperator creates the operator unless the email already exists.
func (r *CredentialRepository) EnsureOperator(ctx context.Context, email, passwordHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO platform_operators (email, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING
	`, strings.ToLower(strings.TrimSpace(email)), passwordHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const adminSelect = `
	SELECT t.id::text, t.slug, t.status, a.password_hash
	FROM tenants t
	JOIN tenant_admins a ON a.tenant_id = t.id`

func (r *CredentialRepository) AdminBySlug(ctx context.Context, slug string) (TenantAdmin, error) {
	var a TenantAdmin
	err := r.pool.QueryRow(ctx, adminSelect+` WHERE t.slug = $1`, slug).
		Scan(&a.TenantID, &a.Slug, &a.Status, &a.PasswordHash)
	return a, err
}

func (r *CredentialRepository) AdminByTenantID(ctx context.Context, tenantID string) (TenantAdmin, error) {
	var a TenantAdmin
	err := r.pool.QueryRow(ctx, adminSelect+` WHERE t.id = $1`, tenantID).
		Scan(&a.TenantID, &a.Slug, &a.Status, &a.PasswordHash)
	return a, err
}

// ChangeAdminPassword stores the new hash and revokes every refresh token of
// the tenant, together with the audit row and outbox event.
func (r *CredentialRepository) ChangeAdminPassword(ctx context.Context, tenantID, passwordHash string, evt audit.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE tenant_admins SET password_hash = $2, password_updated_at = now() WHERE tenant_id = $1
	`, tenantID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now() WHERE tenant_id = $1 AND revoked_at IS NULL
	`, tenantID); err != nil {
		return err
	}
	if err := r.audit.Insert(ctx, tx, evt); err != nil {
		return err
	}
	out, err := outbox.NewEvent("tenant", tenantID, AdminPasswordChanged, map[string]any{
		"tenant_id":  tenantID,
		"changed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, out); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *CredentialRepository) RecordAudit(ctx context.Context, evt audit.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := r.audit.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *CredentialRepository) ListAudit(ctx context.Context, tenantID string, limit int) ([]audit.Record, error) {
	return r.audit.ListRecent(ctx, tenantID, limit)
}
