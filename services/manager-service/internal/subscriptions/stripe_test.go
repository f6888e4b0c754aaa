package subscriptions

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
)

func TestEntitled(t *testing.T) {
	for status, want := range map[stripe.SubscriptionStatus]bool{
		stripe.SubscriptionStatusActive:   true,
		stripe.SubscriptionStatusTrialing: true,
		stripe.SubscriptionStatusPastDue:  false,
		stripe.SubscriptionStatusCanceled: false,
	} {
		if Entitled(status) != want {
			t.Fatalf("%s: expected %v", status, want)
		}
	}
}

func TestFromStripe(t *testing.T) {
	p := FromStripe(&stripe.Subscription{
		ID:                 "sub_123",
		Customer:           &stripe.Customer{ID: "cus_123"},
		CurrentPeriodStart: 1767225600,
	})
	if p.Name != "stripe" || p.StripeSubscriptionID != "sub_123" || p.StripeCustomerID != "cus_123" {
		t.Fatalf("unexpected provider: %+v", p)
	}
	if p.PeriodStart == nil || !p.PeriodStart.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period start: %v", p.PeriodStart)
	}
	if p.PeriodEnd != nil {
		t.Fatalf("zero period end must stay nil")
	}
}
