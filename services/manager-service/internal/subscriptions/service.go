// Package subscriptions applies plan activations and cancellations coming
// from the console, Stripe webhooks and the reconciler.
package subscriptions

import (
	"context"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

const (
	Activated = "billing.subscription.activated.v1"
	Canceled  = "billing.subscription.canceled.v1"
)

// Provider details of a change. Zero values are fine for local changes.
type Provider struct {
	Name                 string
	StripeCustomerID     string
	StripeSubscriptionID string
	PeriodStart          *time.Time
	PeriodEnd            *time.Time
}

type Service struct {
	repo *storage.Repository
}

func New(repo *storage.Repository) *Service {
	return &Service{repo: repo}
}

// Assign switches a tenant to planID from the manager console.
func (s *Service) Assign(ctx context.Context, tenantID, planID string, evt audit.Event) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.ApplyActivated(ctx, tx, tenantID, planID, time.Now().UTC(), Provider{Name: "local"}); err != nil {
		return err
	}
	if err := s.repo.InsertAudit(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplyActivated emits Activated only when the effective plan changes;
// provider id updates alone do not fan out.
func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, tenantID, planID string, activatedAt time.Time, p Provider) error {
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		TenantID:             tenantID,
		PlanID:               planID,
		Status:               "active",
		Provider:             p.Name,
		StripeCustomerID:     p.StripeCustomerID,
		StripeSubscriptionID: p.StripeSubscriptionID,
		CurrentPeriodStart:   p.PeriodStart,
		CurrentPeriodEnd:     p.PeriodEnd,
	}); err != nil {
		return err
	}
	if ok && existing.Status == "active" && existing.PlanID == planID {
		return nil
	}
	return s.emit(ctx, tx, Activated, tenantID, "activated_at", activatedAt)
}

// ApplyCanceled clears the plan, leaving the tenant on the free limits.
func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, tenantID string, canceledAt time.Time, p Provider) error {
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		TenantID:             tenantID,
		Status:               "canceled",
		Provider:             p.Name,
		StripeCustomerID:     p.StripeCustomerID,
		StripeSubscriptionID: p.StripeSubscriptionID,
		CurrentPeriodStart:   p.PeriodStart,
		CurrentPeriodEnd:     p.PeriodEnd,
	}); err != nil {
		return err
	}
	if ok && existing.Status == "canceled" && existing.PlanID == "" {
		return nil
	}
	return s.emit(ctx, tx, Canceled, tenantID, "canceled_at", canceledAt)
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType, tenantID, atKey string, at time.Time) error {
	limits, err := entitlements.ForTenant(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	evt, err := outbox.NewEvent("subscription", tenantID, eventType, map[string]any{
		"tenant_id":                tenantID,
		"plan_id":                  limits.PlanID,
		"plan_name":                limits.PlanName,
		"max_staff":                limits.MaxStaff,
		"max_services":             limits.MaxServices,
		"max_monthly_appointments": limits.MaxMonthlyAppointments,
		atKey:                      at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.repo.InsertOutbox(ctx, tx, evt)
}
