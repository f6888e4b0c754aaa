package subscriptions

import (
	"time"

	"github.com/stripe/stripe-go/v79"
)

// Entitled reports whether a Stripe status grants the plan.
func Entitled(status stripe.SubscriptionStatus) bool {
	return status == stripe.SubscriptionStatusActive || status == stripe.SubscriptionStatusTrialing
}

// FromStripe extracts provider details from a Stripe subscription.
func FromStripe(sub *stripe.Subscription) Provider {
	p := Provider{Name: "stripe", StripeSubscriptionID: sub.ID}
	if sub.Customer != nil {
		p.StripeCustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		p.PeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		p.PeriodEnd = &t
	}
	return p
}
