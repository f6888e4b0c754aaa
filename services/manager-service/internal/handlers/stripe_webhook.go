package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
	"github.com/barberflow/barberflow/services/manager-service/internal/subscriptions"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook has no JWT; the signature is the auth.
func (h *Billing) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.stripeWebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.stripeWebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.store.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("billing provider event duplicate ignored", "provider_event_id", evt.ID, "event_type", evtType)
			_ = tx.Commit(ctx)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	tenantID := ""
	switch evtType {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		tenantID = strings.TrimSpace(session.Metadata["tenant_id"])
		planID := strings.TrimSpace(session.Metadata["plan_id"])
		if tenantID == "" || planID == "" {
			h.logger.Warn("stripe: checkout session without tenant_id/plan_id metadata", "stripe_session_id", session.ID)
			break
		}
		p := subscriptions.Provider{Name: "stripe"}
		if session.Customer != nil {
			p.StripeCustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			p.StripeSubscriptionID = session.Subscription.ID
		}
		if err := h.store.MarkCheckoutSessionCompleted(ctx, tx, session.ID, occurredAt, p.StripeCustomerID, p.StripeSubscriptionID); err != nil {
			http.Error(w, "failed to update checkout session", http.StatusInternalServerError)
			return
		}
		if err := h.subs.ApplyActivated(ctx, tx, tenantID, planID, occurredAt, p); err != nil {
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return
		}

	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		if err := h.store.MarkCheckoutSessionExpired(ctx, tx, session.ID, occurredAt); err != nil {
			http.Error(w, "failed to update checkout session", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			break
		}
		if !subscriptions.Entitled(sub.Status) {
			break
		}
		tenantID = strings.TrimSpace(sub.Metadata["tenant_id"])
		planID := strings.TrimSpace(sub.Metadata["plan_id"])
		if tenantID == "" || planID == "" {
			h.logger.Warn("stripe: subscription without tenant_id/plan_id metadata", "stripe_subscription_id", sub.ID)
			break
		}
		if err := h.subs.ApplyActivated(ctx, tx, tenantID, planID, occurredAt, subscriptions.FromStripe(&sub)); err != nil {
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			break
		}
		tenantID = strings.TrimSpace(sub.Metadata["tenant_id"])
		if tenantID == "" {
			h.logger.Warn("stripe: subscription without tenant_id metadata", "stripe_subscription_id", sub.ID)
			break
		}
		if err := h.subs.ApplyCanceled(ctx, tx, tenantID, occurredAt, subscriptions.FromStripe(&sub)); err != nil {
			http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
			return
		}
	}

	evtAudit := audit.FromRequest(r, "billing.provider.stripe.webhook", tenantID, map[string]any{
		"provider_event_id": evt.ID,
		"event_type":        evtType,
		"occurred_at":       occurredAt.Format(time.RFC3339),
	})
	evtAudit.ActorType = "provider"
	if err := h.store.InsertAudit(ctx, tx, evtAudit); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
