package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/jackc/pgx/v5"
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	audit  *audit.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository, auditRepo *audit.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo, audit: auditRepo}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) InsertAudit(ctx context.Context, tx pgx.Tx, evt audit.Event) error {
	return r.audit.Insert(ctx, tx, evt)
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, evt outbox.Event) error {
	return r.outbox.Insert(ctx, tx, evt)
}

type Subscription struct {
	TenantID             string
	PlanID               string
	Status               string
	Provider             string
	StripeCustomerID     string
	StripeSubscriptionID string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	UpdatedAt            time.Time
}

const subscriptionColumns = `tenant_id::text, COALESCE(plan_id::text, ''), status, provider,
	stripe_customer_id, stripe_subscription_id, current_period_start, current_period_end, updated_at`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.TenantID, &s.PlanID, &s.Status, &s.Provider, &s.StripeCustomerID, &s.StripeSubscriptionID,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.UpdatedAt)
	return s, err
}

// UpsertSubscription writes the subscription row and mirrors the effective
// plan onto tenants.plan_id, where limits are read from.
func (r *Repository) UpsertSubscription(ctx context.Context, tx pgx.Tx, s Subscription) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (tenant_id, plan_id, status, provider, stripe_customer_id, stripe_subscription_id, current_period_start, current_period_end)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id)
		DO UPDATE SET plan_id = EXCLUDED.plan_id,
		              status = EXCLUDED.status,
		              provider = EXCLUDED.provider,
		              stripe_customer_id = EXCLUDED.stripe_customer_id,
		              stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		              current_period_start = EXCLUDED.current_period_start,
		              current_period_end = EXCLUDED.current_period_end,
		              updated_at = now()
	`, s.TenantID, s.PlanID, s.Status, defaultIfEmpty(s.Provider, "local"), s.StripeCustomerID, s.StripeSubscriptionID, s.CurrentPeriodStart, s.CurrentPeriodEnd)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE tenants SET plan_id = NULLIF($2, '')::uuid, updated_at = now() WHERE id = $1
	`, s.TenantID, s.PlanID)
	return err
}

func (r *Repository) GetSubscription(ctx context.Context, tenantID string) (Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = $1
	`, tenantID))
}

// GetSubscriptionForUpdate reports false when the tenant has no row yet.
func (r *Repository) GetSubscriptionForUpdate(ctx context.Context, tx pgx.Tx, tenantID string) (Subscription, bool, error) {
	s, err := scanSubscription(tx.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = $1 FOR UPDATE
	`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, false, nil
		}
		return Subscription{}, false, err
	}
	return s, true, nil
}

func (r *Repository) ListStripeSubscriptionsForReconcile(ctx context.Context, limit int) ([]Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider = 'stripe' AND stripe_subscription_id <> ''
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type CheckoutSession struct {
	StripeSessionID string
	TenantID        string
	PlanID          string
	Status          string
	URL             string
}

func (r *Repository) UpsertCheckoutSession(ctx context.Context, tx pgx.Tx, s CheckoutSession) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO checkout_sessions (stripe_session_id, tenant_id, plan_id, status, url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stripe_session_id)
		DO UPDATE SET tenant_id = EXCLUDED.tenant_id,
		              plan_id = EXCLUDED.plan_id,
		              status = EXCLUDED.status,
		              url = EXCLUDED.url,
		              updated_at = now()
	`, s.StripeSessionID, s.TenantID, s.PlanID, s.Status, s.URL)
	return err
}

func (r *Repository) MarkCheckoutSessionCompleted(ctx context.Context, tx pgx.Tx, stripeSessionID string, completedAt time.Time, stripeCustomerID, stripeSubscriptionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'completed',
		    stripe_customer_id = $3,
		    stripe_subscription_id = $4,
		    completed_at = $2,
		    updated_at = now()
		WHERE stripe_session_id = $1
	`, stripeSessionID, completedAt, stripeCustomerID, stripeSubscriptionID)
	return err
}

func (r *Repository) MarkCheckoutSessionExpired(ctx context.Context, tx pgx.Tx, stripeSessionID string, expiredAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'expired',
		    expired_at = $2,
		    updated_at = now()
		WHERE stripe_session_id = $1 AND status <> 'completed'
	`, stripeSessionID, expiredAt)
	return err
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

func defaultIfEmpty(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
