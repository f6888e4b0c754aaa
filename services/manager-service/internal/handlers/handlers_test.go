package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
	"github.com/barberflow/barberflow/services/manager-service/internal/subscriptions"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	tenantA = "2b8f0c1d-3e4a-4b5c-8d6e-7f8091a2b3c4"
	planPro = "9a1b2c3d-4e5f-4a6b-9c8d-0e1f2a3b4c5d"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	tenants      map[string]storage.Tenant
	plans        map[string]storage.Plan
	subscription *storage.Subscription
	provisioned  []storage.Provision
	audits       []audit.Event
	seenEvents   map[string]bool
	sessions     []storage.CheckoutSession
	completed    []string
	resetHash    string
	createErr    error
	deletePlan   error
	tx           *fakeTx
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]storage.Tenant{
			tenantA: {ID: tenantA, Slug: "barbearia-do-ze", Name: "Barbearia do Zé", Status: "active", PlanName: "free"},
		},
		plans: map[string]storage.Plan{
			planPro: {ID: planPro, Name: "Pro", PriceCents: 9900, MaxStaff: 10, StripePriceID: "price_pro", IsActive: true},
		},
		seenEvents: map[string]bool{},
	}
}

func (f *fakeStore) ListTenants(_ context.Context, status string) ([]storage.Tenant, error) {
	var out []storage.Tenant
	for _, t := range f.tenants {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// uuidCastError mirrors Postgres rejecting a malformed uuid parameter.
func uuidCastError(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}
	}
	return nil
}

func (f *fakeStore) GetTenant(_ context.Context, id string) (storage.Tenant, error) {
	if err := uuidCastError(id); err != nil {
		return storage.Tenant{}, err
	}
	t, ok := f.tenants[id]
	if !ok {
		return storage.Tenant{}, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) CreateTenant(_ context.Context, p storage.Provision, evt audit.Event) (storage.Tenant, error) {
	if f.createErr != nil {
		return storage.Tenant{}, f.createErr
	}
	f.provisioned = append(f.provisioned, p)
	f.audits = append(f.audits, evt)
	return storage.Tenant{ID: "5d4c3b2a-1f0e-4d9c-8b7a-6f5e4d3c2b1a", Slug: p.Slug, Name: p.Name, Status: "active"}, nil
}

func (f *fakeStore) UpdateTenant(_ context.Context, u storage.TenantUpdate, evt audit.Event) (storage.Tenant, error) {
	t := f.tenants[u.ID]
	t.Name, t.OwnerName, t.Email, t.Phone, t.Status = u.Name, u.OwnerName, u.Email, u.Phone, u.Status
	f.tenants[u.ID] = t
	f.audits = append(f.audits, evt)
	return t, nil
}

func (f *fakeStore) DeleteTenant(_ context.Context, id string, _ audit.Event) error {
	if _, ok := f.tenants[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.tenants, id)
	return nil
}

func (f *fakeStore) ResetAdminPassword(_ context.Context, _ string, hash string, evt audit.Event) error {
	f.resetHash = hash
	f.audits = append(f.audits, evt)
	return nil
}

func (f *fakeStore) ListPlans(context.Context) ([]storage.Plan, error) {
	var out []storage.Plan
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) GetPlan(_ context.Context, id string) (storage.Plan, error) {
	if err := uuidCastError(id); err != nil {
		return storage.Plan{}, err
	}
	p, ok := f.plans[id]
	if !ok {
		return storage.Plan{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) CreatePlan(_ context.Context, p storage.Plan) (storage.Plan, error) {
	for _, existing := range f.plans {
		if strings.EqualFold(existing.Name, p.Name) {
			return storage.Plan{}, &pgconn.PgError{Code: "23505"}
		}
	}
	p.ID = "0c1d2e3f-4a5b-4c6d-8e7f-8091a2b3c4d5"
	f.plans[p.ID] = p
	return p, nil
}

func (f *fakeStore) UpdatePlan(_ context.Context, p storage.Plan) (storage.Plan, error) {
	if _, ok := f.plans[p.ID]; !ok {
		return storage.Plan{}, pgx.ErrNoRows
	}
	f.plans[p.ID] = p
	return p, nil
}

func (f *fakeStore) DeletePlan(_ context.Context, id string) error {
	if f.deletePlan != nil {
		return f.deletePlan
	}
	delete(f.plans, id)
	return nil
}

func (f *fakeStore) Overview(context.Context) (storage.Overview, error) {
	return storage.Overview{TotalTenants: len(f.tenants), ActiveTenants: len(f.tenants), MRRCents: 9900}, nil
}

func (f *fakeStore) Begin(context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

func (f *fakeStore) GetSubscription(context.Context, string) (storage.Subscription, error) {
	if f.subscription == nil {
		return storage.Subscription{}, pgx.ErrNoRows
	}
	return *f.subscription, nil
}

func (f *fakeStore) UpsertCheckoutSession(_ context.Context, _ pgx.Tx, s storage.CheckoutSession) error {
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeStore) MarkCheckoutSessionCompleted(_ context.Context, _ pgx.Tx, id string, _ time.Time, _, _ string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeStore) MarkCheckoutSessionExpired(context.Context, pgx.Tx, string, time.Time) error {
	return nil
}

func (f *fakeStore) InsertProviderEvent(_ context.Context, _ pgx.Tx, evt storage.ProviderEvent) error {
	key := evt.Provider + ":" + evt.ProviderEventID
	if f.seenEvents[key] {
		return storage.ErrDuplicateProviderEvent
	}
	f.seenEvents[key] = true
	return nil
}

func (f *fakeStore) InsertAudit(_ context.Context, _ pgx.Tx, evt audit.Event) error {
	f.audits = append(f.audits, evt)
	return nil
}

type change struct {
	kind     string
	tenantID string
	planID   string
	provider subscriptions.Provider
}

type fakeSubs struct {
	changes []change
}

func (s *fakeSubs) Assign(_ context.Context, tenantID, planID string, _ audit.Event) error {
	s.changes = append(s.changes, change{kind: "assign", tenantID: tenantID, planID: planID})
	return nil
}

func (s *fakeSubs) ApplyActivated(_ context.Context, _ pgx.Tx, tenantID, planID string, _ time.Time, p subscriptions.Provider) error {
	s.changes = append(s.changes, change{kind: "activated", tenantID: tenantID, planID: planID, provider: p})
	return nil
}

func (s *fakeSubs) ApplyCanceled(_ context.Context, _ pgx.Tx, tenantID string, _ time.Time, p subscriptions.Provider) error {
	s.changes = append(s.changes, change{kind: "canceled", tenantID: tenantID, provider: p})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newConsole(store *fakeStore, subs *fakeSubs) *Console {
	c := NewConsole(store, subs, discardLogger())
	c.hashPassword = func(raw string) (string, error) { return "hashed:" + raw, nil }
	return c
}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-Role", "manager")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestProvisionTenantDerivesSlug(t *testing.T) {
	store := newFakeStore()
	c := newConsole(store, &fakeSubs{})

	rec := do(c.Tenants, http.MethodPost, "/api/v1/manager/tenants",
		`{"name":"Barbearia São João","email":"Dono@Example.com","admin_password":"segredo123","plan_id":"`+planPro+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.provisioned) != 1 {
		t.Fatalf("expected one provision, got %d", len(store.provisioned))
	}
	p := store.provisioned[0]
	if p.Slug != "barbearia-sao-joao" {
		t.Fatalf("unexpected slug %q", p.Slug)
	}
	if p.Email != "dono@example.com" {
		t.Fatalf("email not normalized: %q", p.Email)
	}
	if p.PasswordHash != "hashed:segredo123" {
		t.Fatalf("password not hashed: %q", p.PasswordHash)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["slug"] != "barbearia-sao-joao" || body["id"] == "" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestProvisionTenantValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing name", `{"admin_password":"segredo123"}`, http.StatusBadRequest},
		{"short password", `{"name":"Zé","admin_password":"123"}`, http.StatusBadRequest},
		{"bad slug", `{"name":"Zé","slug":"!!!","admin_password":"segredo123"}`, http.StatusBadRequest},
		{"bad email", `{"name":"Zé","email":"nope","admin_password":"segredo123"}`, http.StatusBadRequest},
		{"unknown plan", `{"name":"Zé","plan_id":"00000000-0000-0000-0000-000000000000","admin_password":"segredo123"}`, http.StatusBadRequest},
		{"malformed plan", `{"name":"Zé","plan_id":"x","admin_password":"segredo123"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newConsole(newFakeStore(), &fakeSubs{})
			rec := do(c.Tenants, http.MethodPost, "/api/v1/manager/tenants", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestProvisionTenantDuplicateSlug(t *testing.T) {
	store := newFakeStore()
	store.createErr = &pgconn.PgError{Code: "23505"}
	c := newConsole(store, &fakeSubs{})

	rec := do(c.Tenants, http.MethodPost, "/api/v1/manager/tenants", `{"name":"Barbearia do Zé","admin_password":"segredo123"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestUpdateTenantStatus(t *testing.T) {
	store := newFakeStore()
	c := newConsole(store, &fakeSubs{})

	rec := do(c.Tenants, http.MethodPut, "/api/v1/manager/tenants?id="+tenantA, `{"status":"archived"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = do(c.Tenants, http.MethodPut, "/api/v1/manager/tenants?id="+tenantA, `{"status":"suspended"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := store.tenants[tenantA]; got.Status != "suspended" || got.Name != "Barbearia do Zé" {
		t.Fatalf("unexpected tenant after update: %+v", got)
	}

	rec = do(c.Tenants, http.MethodGet, "/api/v1/manager/tenants?status=suspended", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), tenantA) {
		t.Fatalf("expected suspended tenant in list, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteTenant(t *testing.T) {
	c := newConsole(newFakeStore(), &fakeSubs{})

	if rec := do(c.Tenants, http.MethodDelete, "/api/v1/manager/tenants?id="+tenantA, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := do(c.Tenants, http.MethodDelete, "/api/v1/manager/tenants?id="+tenantA, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
	if rec := do(c.Tenants, http.MethodDelete, "/api/v1/manager/tenants?id=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad id, got %d", rec.Code)
	}
}

func TestResetPassword(t *testing.T) {
	store := newFakeStore()
	c := newConsole(store, &fakeSubs{})

	if rec := do(c.ResetPassword, http.MethodPost, "/api/v1/manager/tenants/password?id="+tenantA, `{"new_password":"short"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec := do(c.ResetPassword, http.MethodPost, "/api/v1/manager/tenants/password?id="+tenantA, `{"new_password":"novasenha1"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if store.resetHash != "hashed:novasenha1" {
		t.Fatalf("unexpected hash %q", store.resetHash)
	}
	if len(store.audits) != 1 || store.audits[0].ActorType != "manager" {
		t.Fatalf("expected manager audit, got %+v", store.audits)
	}
}

func TestAssignPlan(t *testing.T) {
	subs := &fakeSubs{}
	c := newConsole(newFakeStore(), subs)

	rec := do(c.AssignPlan, http.MethodPost, "/api/v1/manager/tenants/plan?id="+tenantA, `{"plan_id":"`+planPro+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(subs.changes) != 1 || subs.changes[0].planID != planPro || subs.changes[0].tenantID != tenantA {
		t.Fatalf("unexpected changes %+v", subs.changes)
	}

	rec = do(c.AssignPlan, http.MethodPost, "/api/v1/manager/tenants/plan?id="+tenantA, `{"plan_id":"00000000-0000-0000-0000-000000000000"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown plan, got %d", rec.Code)
	}
	for _, body := range []string{`{"plan_id":"x"}`, `{}`} {
		rec = do(c.AssignPlan, http.MethodPost, "/api/v1/manager/tenants/plan?id="+tenantA, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	rec = do(c.AssignPlan, http.MethodPost, "/api/v1/manager/tenants/plan?id=00000000-0000-0000-0000-000000000000", `{"plan_id":"`+planPro+`"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tenant, got %d", rec.Code)
	}
}

func TestPlansCRUD(t *testing.T) {
	store := newFakeStore()
	c := newConsole(store, &fakeSubs{})

	if rec := do(c.Plans, http.MethodPost, "/api/v1/manager/plans", `{"name":"Basic","price_cents":-1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative price, got %d", rec.Code)
	}
	if rec := do(c.Plans, http.MethodPost, "/api/v1/manager/plans", `{"name":"Basic","max_staff":-2}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rec.Code)
	}
	if rec := do(c.Plans, http.MethodPost, "/api/v1/manager/plans", `{"name":"pro","price_cents":100}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", rec.Code)
	}

	rec := do(c.Plans, http.MethodPost, "/api/v1/manager/plans", `{"name":"Basic","price_cents":4900,"max_staff":3,"features":[" agenda ",""]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created storage.Plan
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !created.IsActive || len(created.Features) != 1 || created.Features[0] != "agenda" {
		t.Fatalf("unexpected plan %+v", created)
	}

	store.deletePlan = &pgconn.PgError{Code: "23503"}
	if rec := do(c.Plans, http.MethodDelete, "/api/v1/manager/plans?id="+planPro, ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when plan in use, got %d", rec.Code)
	}
}

func TestOverview(t *testing.T) {
	c := newConsole(newFakeStore(), &fakeSubs{})
	rec := do(c.Overview, http.MethodGet, "/api/v1/manager/overview", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mrr_cents":9900`) {
		t.Fatalf("unexpected overview %d %s", rec.Code, rec.Body.String())
	}
}

const webhookSecret = "whsec_test"

func newBilling(store *fakeStore, subs *fakeSubs, secretKey string) *Billing {
	return NewBilling(store, subs, discardLogger(), BillingConfig{
		StripeSecretKey:     secretKey,
		StripeWebhookSecret: webhookSecret,
		CheckoutSuccessURL:  "https://example.com/ok",
		CheckoutCancelURL:   "https://example.com/cancel",
	})
}

func TestCheckoutNotConfigured(t *testing.T) {
	b := newBilling(newFakeStore(), &fakeSubs{}, "")
	rec := do(b.Checkout, http.MethodPost, "/api/v1/manager/billing/checkout", `{"tenant_id":"`+tenantA+`","plan_id":"`+planPro+`"}`)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestCheckoutCreatesSession(t *testing.T) {
	store := newFakeStore()
	b := newBilling(store, &fakeSubs{}, "sk_test")
	var params *stripe.CheckoutSessionParams
	b.newCheckoutSession = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		params = p
		return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/cs_test_1"}, nil
	}

	rec := do(b.Checkout, http.MethodPost, "/api/v1/manager/billing/checkout", `{"tenant_id":"`+tenantA+`","plan_id":"`+planPro+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if params.Metadata["tenant_id"] != tenantA || params.Metadata["plan_id"] != planPro {
		t.Fatalf("unexpected metadata %v", params.Metadata)
	}
	if *params.LineItems[0].Price != "price_pro" {
		t.Fatalf("unexpected price %q", *params.LineItems[0].Price)
	}
	if len(store.sessions) != 1 || store.sessions[0].StripeSessionID != "cs_test_1" || !store.tx.committed {
		t.Fatalf("session not persisted: %+v", store.sessions)
	}
}

func TestCheckoutRejectsMalformedIDs(t *testing.T) {
	b := newBilling(newFakeStore(), &fakeSubs{}, "sk_test")
	for _, body := range []string{
		`{"tenant_id":"x","plan_id":"` + planPro + `"}`,
		`{"tenant_id":"` + tenantA + `","plan_id":"pro"}`,
	} {
		rec := do(b.Checkout, http.MethodPost, "/api/v1/manager/billing/checkout", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestCheckoutPlanWithoutPrice(t *testing.T) {
	store := newFakeStore()
	p := store.plans[planPro]
	p.StripePriceID = ""
	store.plans[planPro] = p
	b := newBilling(store, &fakeSubs{}, "sk_test")

	rec := do(b.Checkout, http.MethodPost, "/api/v1/manager/billing/checkout", `{"tenant_id":"`+tenantA+`","plan_id":"`+planPro+`"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCancelSubscription(t *testing.T) {
	store := newFakeStore()
	store.subscription = &storage.Subscription{TenantID: tenantA, PlanID: planPro, StripeSubscriptionID: "sub_1"}
	subs := &fakeSubs{}
	b := newBilling(store, subs, "sk_test")
	b.cancelSubscription = func(id string, _ *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
		return &stripe.Subscription{ID: id, Customer: &stripe.Customer{ID: "cus_1"}}, nil
	}

	rec := do(b.Cancel, http.MethodPost, "/api/v1/manager/billing/cancel?tenant_id="+tenantA, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(subs.changes) != 1 || subs.changes[0].kind != "canceled" || subs.changes[0].provider.StripeCustomerID != "cus_1" {
		t.Fatalf("unexpected changes %+v", subs.changes)
	}

	rec = do(b.Cancel, http.MethodPost, "/api/v1/manager/billing/cancel?tenant_id="+tenantA, "")
	if !strings.Contains(rec.Body.String(), "duplicate") {
		t.Fatalf("expected duplicate on replay, got %s", rec.Body.String())
	}
}

func signedWebhook(t *testing.T, id, eventType string, object map[string]any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhookCheckoutCompleted(t *testing.T) {
	store := newFakeStore()
	subs := &fakeSubs{}
	b := newBilling(store, subs, "")

	object := map[string]any{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]any{"tenant_id": tenantA, "plan_id": planPro},
	}
	rec := httptest.NewRecorder()
	b.StripeWebhook(rec, signedWebhook(t, "evt_1", "checkout.session.completed", object))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(subs.changes) != 1 || subs.changes[0].kind != "activated" || subs.changes[0].planID != planPro {
		t.Fatalf("unexpected changes %+v", subs.changes)
	}
	if subs.changes[0].provider.StripeSubscriptionID != "sub_1" {
		t.Fatalf("subscription id not carried: %+v", subs.changes[0].provider)
	}
	if len(store.completed) != 1 || store.completed[0] != "cs_test_1" {
		t.Fatalf("checkout session not marked completed: %v", store.completed)
	}

	rec = httptest.NewRecorder()
	b.StripeWebhook(rec, signedWebhook(t, "evt_1", "checkout.session.completed", object))
	if !strings.Contains(rec.Body.String(), "duplicate") || len(subs.changes) != 1 {
		t.Fatalf("replay was applied again: %s", rec.Body.String())
	}
}

func TestStripeWebhookSubscriptionLifecycle(t *testing.T) {
	subs := &fakeSubs{}
	b := newBilling(newFakeStore(), subs, "")
	meta := map[string]any{"tenant_id": tenantA, "plan_id": planPro}

	rec := httptest.NewRecorder()
	b.StripeWebhook(rec, signedWebhook(t, "evt_past_due", "customer.subscription.updated",
		map[string]any{"id": "sub_1", "object": "subscription", "status": "past_due", "metadata": meta}))
	if rec.Code != http.StatusOK || len(subs.changes) != 0 {
		t.Fatalf("past_due must not activate: %d %+v", rec.Code, subs.changes)
	}

	rec = httptest.NewRecorder()
	b.StripeWebhook(rec, signedWebhook(t, "evt_active", "customer.subscription.updated",
		map[string]any{"id": "sub_1", "object": "subscription", "status": "active", "metadata": meta}))
	if rec.Code != http.StatusOK || len(subs.changes) != 1 || subs.changes[0].kind != "activated" {
		t.Fatalf("expected activation, got %d %+v", rec.Code, subs.changes)
	}

	rec = httptest.NewRecorder()
	b.StripeWebhook(rec, signedWebhook(t, "evt_deleted", "customer.subscription.deleted",
		map[string]any{"id": "sub_1", "object": "subscription", "status": "canceled", "metadata": meta}))
	if rec.Code != http.StatusOK || len(subs.changes) != 2 || subs.changes[1].kind != "canceled" {
		t.Fatalf("expected cancellation, got %d %+v", rec.Code, subs.changes)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	b := newBilling(newFakeStore(), &fakeSubs{}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/stripe", strings.NewReader(`{"id":"evt_x"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	b.StripeWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
