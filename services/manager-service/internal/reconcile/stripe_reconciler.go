// Package reconcile heals subscription state when Stripe webhooks are missed.
package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
	"github.com/barberflow/barberflow/services/manager-service/internal/subscriptions"
	"github.com/stripe/stripe-go/v79"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
)

type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.Repository
	subSvc      *subscriptions.Service
	logger      *slog.Logger
	stripeKey   string
	batchSize   int
	advisoryKey int64
}

type StripeReconcilerConfig struct {
	StripeSecretKey string
	BatchSize       int
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.Repository, subSvc *subscriptions.Service, logger *slog.Logger, cfg StripeReconcilerConfig) *StripeReconciler {
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 50
	}
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		lockKey = 4242001
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		subSvc:      subSvc,
		logger:      logger,
		stripeKey:   strings.TrimSpace(cfg.StripeSecretKey),
		batchSize:   bs,
		advisoryKey: lockKey,
	}
}

// Run reconciles every interval on the instance holding the advisory lock.
func (r *StripeReconciler) Run(ctx context.Context, interval time.Duration) {
	if r.stripeKey == "" {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		if ctx.Err() != nil {
			return
		}
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("stripe reconcile: failed to acquire advisory lock", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if !locked {
			r.logger.Info("stripe reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
			time.Sleep(30 * time.Second)
			continue
		}
		r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
		defer func() {
			_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
		}()
		break
	}

	stripe.Key = r.stripeKey
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.reconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *StripeReconciler) reconcileOnce(ctx context.Context) {
	subs, err := r.repo.ListStripeSubscriptionsForReconcile(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("stripe reconcile: failed to list subscriptions", "err", err)
		return
	}

	for _, s := range subs {
		if ctx.Err() != nil {
			return
		}
		stripeSub, err := stripesubscription.Get(s.StripeSubscriptionID, nil)
		if err != nil {
			r.logger.Warn("stripe reconcile: failed to fetch subscription", "err", err, "stripe_subscription_id", s.StripeSubscriptionID, "tenant_id", s.TenantID)
			continue
		}
		if err := r.apply(ctx, s, stripeSub); err != nil {
			r.logger.Warn("stripe reconcile: apply failed", "err", err, "tenant_id", s.TenantID, "stripe_subscription_id", stripeSub.ID)
		}
	}
}

func (r *StripeReconciler) apply(ctx context.Context, s storage.Subscription, stripeSub *stripe.Subscription) error {
	provider := subscriptions.FromStripe(stripeSub)
	planID := strings.TrimSpace(stripeSub.Metadata["plan_id"])
	if planID == "" {
		// keep the current plan rather than guessing
		planID = s.PlanID
	}

	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if subscriptions.Entitled(stripeSub.Status) && planID != "" {
		err = r.subSvc.ApplyActivated(ctx, tx, s.TenantID, planID, time.Unix(stripeSub.Created, 0).UTC(), provider)
	} else {
		canceledAt := time.Now().UTC()
		if stripeSub.CanceledAt > 0 {
			canceledAt = time.Unix(stripeSub.CanceledAt, 0).UTC()
		}
		err = r.subSvc.ApplyCanceled(ctx, tx, s.TenantID, canceledAt, provider)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
