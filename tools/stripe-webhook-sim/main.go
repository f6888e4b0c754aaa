package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "gateway base url")
		evtType = flag.String("type", getenv("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		tenant  = flag.String("tenant-id", getenv("TENANT_ID", ""), "tenant_id metadata")
		plan    = flag.String("plan-id", getenv("PLAN_ID", ""), "plan_id metadata")
		status  = flag.String("status", getenv("STRIPE_SUBSCRIPTION_STATUS", "active"), "subscription status for customer.subscription.* events")
		secret  = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*tenant) == "" {
		fatal("TENANT_ID is required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())

	payload, err := buildEventJSON(eventID, *evtType, now, *tenant, *plan, *status)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("event=%s type=%s status=%d\n", eventID, *evtType, resp.StatusCode)
}

func buildEventJSON(eventID, eventType string, t time.Time, tenantID, planID, subStatus string) ([]byte, error) {
	metadata := map[string]any{"tenant_id": tenantID, "plan_id": planID}
	var object map[string]any
	switch eventType {
	case "checkout.session.completed", "checkout.session.expired":
		object = map[string]any{
			"id":           "cs_test_" + tenantID,
			"object":       "checkout.session",
			"customer":     "cus_test_" + tenantID,
			"subscription": "sub_test_" + tenantID,
			"metadata":     metadata,
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		if eventType == "customer.subscription.deleted" {
			subStatus = "canceled"
		}
		object = map[string]any{
			"id":                 "sub_test_" + tenantID,
			"object":             "subscription",
			"customer":           "cus_test_" + tenantID,
			"status":             subStatus,
			"current_period_end": t.Add(30 * 24 * time.Hour).Unix(),
			"metadata":           metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
