package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
	"github.com/barberflow/barberflow/services/manager-service/internal/subscriptions"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
)

type BillingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetTenant(ctx context.Context, id string) (storage.Tenant, error)
	GetPlan(ctx context.Context, id string) (storage.Plan, error)
	GetSubscription(ctx context.Context, tenantID string) (storage.Subscription, error)
	UpsertCheckoutSession(ctx context.Context, tx pgx.Tx, s storage.CheckoutSession) error
	MarkCheckoutSessionCompleted(ctx context.Context, tx pgx.Tx, stripeSessionID string, completedAt time.Time, stripeCustomerID, stripeSubscriptionID string) error
	MarkCheckoutSessionExpired(ctx context.Context, tx pgx.Tx, stripeSessionID string, expiredAt time.Time) error
	InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt storage.ProviderEvent) error
	InsertAudit(ctx context.Context, tx pgx.Tx, evt audit.Event) error
}

// SubscriptionApplier is implemented by subscriptions.Service.
type SubscriptionApplier interface {
	ApplyActivated(ctx context.Context, tx pgx.Tx, tenantID, planID string, at time.Time, p subscriptions.Provider) error
	ApplyCanceled(ctx context.Context, tx pgx.Tx, tenantID string, at time.Time, p subscriptions.Provider) error
}

type BillingConfig struct {
	StripeSecretKey               string
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	CheckoutSuccessURL            string
	CheckoutCancelURL             string
}

type Billing struct {
	store                  BillingStore
	subs                   SubscriptionApplier
	logger                 *slog.Logger
	stripeSecretKey        string
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	checkoutSuccessURL     string
	checkoutCancelURL      string

	newCheckoutSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	cancelSubscription func(string, *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
}

func NewBilling(store BillingStore, subs SubscriptionApplier, logger *slog.Logger, cfg BillingConfig) *Billing {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &Billing{
		store:                  store,
		subs:                   subs,
		logger:                 logger,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		checkoutSuccessURL:     strings.TrimSpace(cfg.CheckoutSuccessURL),
		checkoutCancelURL:      strings.TrimSpace(cfg.CheckoutCancelURL),
		newCheckoutSession:     checkoutsession.New,
		cancelSubscription:     stripesubscription.Cancel,
	}
}

type checkoutRequest struct {
	TenantID   string `json:"tenant_id"`
	PlanID     string `json:"plan_id"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// Checkout serves POST /api/v1/manager/billing/checkout.
func (h *Billing) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeSecretKey == "" {
		http.Error(w, "stripe billing not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.PlanID = strings.TrimSpace(req.PlanID)
	if req.TenantID == "" || req.PlanID == "" {
		http.Error(w, "tenant_id and plan_id are required", http.StatusBadRequest)
		return
	}
	if !validID(req.TenantID) || !validID(req.PlanID) {
		http.Error(w, "invalid tenant_id or plan_id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.store.GetTenant(ctx, req.TenantID); err != nil {
		h.writeLookupError(w, err, "tenant")
		return
	}
	plan, err := h.store.GetPlan(ctx, req.PlanID)
	if err != nil {
		h.writeLookupError(w, err, "plan")
		return
	}
	if plan.StripePriceID == "" {
		http.Error(w, "plan has no stripe_price_id", http.StatusUnprocessableEntity)
		return
	}

	successURL := orDefault(req.SuccessURL, h.checkoutSuccessURL)
	cancelURL := orDefault(req.CancelURL, h.checkoutCancelURL)
	if successURL == "" || cancelURL == "" {
		http.Error(w, "success_url and cancel_url are required (or configure default URLs)", http.StatusBadRequest)
		return
	}

	metadata := map[string]string{"tenant_id": req.TenantID, "plan_id": plan.ID}
	stripe.Key = h.stripeSecretKey
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.TenantID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(plan.StripePriceID), Quantity: stripe.Int64(1)},
		},
		Metadata: metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key")); idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	}

	sess, err := h.newCheckoutSession(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err, "tenant_id", req.TenantID)
		http.Error(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.store.UpsertCheckoutSession(ctx, tx, storage.CheckoutSession{
		StripeSessionID: sess.ID,
		TenantID:        req.TenantID,
		PlanID:          plan.ID,
		Status:          "created",
		URL:             sess.URL,
	}); err != nil {
		http.Error(w, "failed to persist checkout session", http.StatusInternalServerError)
		return
	}
	if err := h.store.InsertAudit(ctx, tx, audit.FromRequest(r, "billing.checkout.created", req.TenantID, map[string]any{
		"plan_id":           plan.ID,
		"stripe_session_id": sess.ID,
	})); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID, "url": sess.URL})
}

// Cancel serves POST /api/v1/manager/billing/cancel?tenant_id=.
func (h *Billing) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeSecretKey == "" {
		http.Error(w, "stripe billing not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}
	tenantID, ok := idParam(w, r, "tenant_id")
	if !ok {
		return
	}

	ctx := r.Context()
	sub, err := h.store.GetSubscription(ctx, tenantID)
	if err != nil {
		h.writeLookupError(w, err, "subscription")
		return
	}
	stripeSubID := strings.TrimSpace(sub.StripeSubscriptionID)
	if stripeSubID == "" {
		http.Error(w, "no stripe subscription id on record", http.StatusConflict)
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey == "" {
		idemKey = "cancel:" + tenantID + ":" + stripeSubID
	}

	stripe.Key = h.stripeSecretKey
	params := &stripe.SubscriptionCancelParams{}
	params.IdempotencyKey = stripe.String(idemKey)
	stripeSub, err := h.cancelSubscription(stripeSubID, params)
	if err != nil {
		h.logger.Error("stripe subscription cancel failed", "err", err, "stripe_subscription_id", stripeSubID)
		http.Error(w, "failed to cancel subscription", http.StatusBadGateway)
		return
	}

	provider := subscriptions.Provider{Name: "stripe", StripeSubscriptionID: stripeSubID}
	if stripeSub != nil {
		provider = subscriptions.FromStripe(stripeSub)
	}
	now := time.Now().UTC()

	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payload, _ := json.Marshal(map[string]any{
		"tenant_id":              tenantID,
		"stripe_subscription_id": stripeSubID,
		"canceled_at":            now.Format(time.RFC3339),
	})
	if err := h.store.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
		Provider:        "internal",
		ProviderEventID: idemKey,
		EventType:       "subscription.cancel",
		Payload:         payload,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			_ = tx.Commit(ctx)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record cancellation", http.StatusInternalServerError)
		return
	}
	if err := h.store.InsertAudit(ctx, tx, audit.FromRequest(r, "billing.subscription.cancel.requested", tenantID, map[string]any{
		"stripe_subscription_id": stripeSubID,
	})); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := h.subs.ApplyCanceled(ctx, tx, tenantID, now, provider); err != nil {
		http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Billing) writeLookupError(w http.ResponseWriter, err error, what string) {
	if db.IsNotFound(err) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	h.logger.Error("load "+what+" failed", "err", err)
	http.Error(w, "failed to load "+what, http.StatusInternalServerError)
}
