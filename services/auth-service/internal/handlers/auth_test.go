package handlers

import (
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
	"github.com/barberflow/barberflow/libs/auth"
	"github.com/barberflow/barberflow/services/auth-service/internal/sessions"
	"github.com/barberflow/barberflow/services/auth-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"
)

const testTenant = "3c9d1e2f-4a5b-4c6d-8e7f-9a0b1c2d3e4f"

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

type fakeCreds struct {
	operators map[string]storage.Operator
	admins    map[string]storage.TenantAdmin
	changed   []audit.Event
}

func (f *fakeCreds) OperatorByEmail(_ context.Context, email string) (storage.Operator, error) {
	for _, op := range f.operators {
		if op.Email == strings.ToLower(email) {
			return op, nil
		}
	}
	return storage.Operator{}, pgx.ErrNoRows
}

func (f *fakeCreds) OperatorByID(_ context.Context, id string) (storage.Operator, error) {
	op, ok := f.operators[id]
	if !ok {
		return storage.Operator{}, pgx.ErrNoRows
	}
	return op, nil
}

func (f *fakeCreds) AdminBySlug(_ context.Context, slug string) (storage.TenantAdmin, error) {
	for _, a := range f.admins {
		if a.Slug == slug {
			return a, nil
		}
	}
	return storage.TenantAdmin{}, pgx.ErrNoRows
}

func (f *fakeCreds) AdminByTenantID(_ context.Context, id string) (storage.TenantAdmin, error) {
	a, ok := f.admins[id]
	if !ok {
		return storage.TenantAdmin{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeCreds) ChangeAdminPassword(_ context.Context, tenantID, hash string, evt audit.Event) error {
	a := f.admins[tenantID]
	a.PasswordHash = hash
	f.admins[tenantID] = a
	f.changed = append(f.changed, evt)
	return nil
}

func (f *fakeCreds) RecordAudit(context.Context, audit.Event) error { return nil }

func (f *fakeCreds) ListAudit(context.Context, string, int) ([]audit.Record, error) {
	return []audit.Record{}, nil
}

type memoryRefresh struct {
	tokens map[string]*sessions.RefreshToken
}

func (m *memoryRefresh) Create(_ context.Context, subject sessions.Subject, raw string, expiresAt time.Time) (string, error) {
	id := "rt-" + raw[:8]
	m.tokens[sessions.HashToken(raw)] = &sessions.RefreshToken{ID: id, Subject: subject, Hash: sessions.HashToken(raw), ExpiresAt: expiresAt}
	return id, nil
}

func (m *memoryRefresh) GetByHash(_ context.Context, hash string) (sessions.RefreshToken, error) {
	t, ok := m.tokens[hash]
	if !ok {
		return sessions.RefreshToken{}, pgx.ErrNoRows
	}
	return *t, nil
}

func (m *memoryRefresh) Revoke(_ context.Context, id string) error {
	for _, t := range m.tokens {
		if t.ID == id && t.RevokedAt == nil {
			now := time.Now()
			t.RevokedAt = &now
			return nil
		}
	}
	return pgx.ErrNoRows
}

// racingRefresh hands out the token as still usable, while another request
// revokes it before this one gets to.
type racingRefresh struct {
	*memoryRefresh
}

func (r racingRefresh) GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error) {
	token, err := r.memoryRefresh.GetByHash(ctx, hash)
	if err != nil {
		return token, err
	}
	if err := r.memoryRefresh.Revoke(ctx, token.ID); err != nil {
		return token, err
	}
	return token, nil
}

func mustHash(t *testing.T, raw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

type fixture struct {
	h       *AuthHandler
	creds   *fakeCreds
	refresh *memoryRefresh
	metrics *Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	creds := &fakeCreds{
		operators: map[string]storage.Operator{
			"op-1": {ID: "op-1", Email: "ops@barberflow.test", PasswordHash: mustHash(t, "operator-pass")},
		},
		admins: map[string]storage.TenantAdmin{
			testTenant: {TenantID: testTenant, Slug: "barbearia-do-ze", Status: "active", PasswordHash: mustHash(t, "admin-pass")},
		},
	}
	refresh := &memoryRefresh{tokens: map[string]*sessions.RefreshToken{}}
	metrics := NewMetrics(prometheus.NewRegistry())
	h := NewAuthHandler(NewHS256Signer("test-secret"), creds, refresh, 24*time.Hour, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return fixture{h: h, creds: creds, refresh: refresh, metrics: metrics}
}

func post(h http.HandlerFunc, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeLogin(t *testing.T, rec *httptest.ResponseRecorder) loginResponse {
	t.Helper()
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestManagerLogin(t *testing.T) {
	f := newFixture(t)

	rec := post(f.h.ManagerLogin, `{"email":"OPS@barberflow.test","password":"operator-pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeLogin(t, rec)
	claims, err := auth.ParseAndVerifyHS256(resp.AccessToken, "test-secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != auth.RoleManager || claims.Sub != "op-1" || claims.TenantID != "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Exp-claims.Iat != int64(accessTTL.Seconds()) {
		t.Fatalf("unexpected token lifetime %d", claims.Exp-claims.Iat)
	}

	rec = post(f.h.ManagerLogin, `{"email":"ops@barberflow.test","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(f.metrics.logins.WithLabelValues(auth.RoleManager, "invalid")); got != 1 {
		t.Fatalf("expected one invalid login, got %v", got)
	}
}

func TestAdminLogin(t *testing.T) {
	f := newFixture(t)

	rec := post(f.h.AdminLogin, `{"slug":"  Barbearia do Zé ","password":"admin-pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeLogin(t, rec)
	if resp.TenantID != testTenant || resp.Slug != "barbearia-do-ze" || resp.Role != auth.RoleAdmin {
		t.Fatalf("unexpected response %+v", resp)
	}

	if rec := post(f.h.AdminLogin, `{"slug":"barbearia-do-ze","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := post(f.h.AdminLogin, `{"slug":"outra","password":"admin-pass"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown slug, got %d", rec.Code)
	}

	a := f.creds.admins[testTenant]
	a.Status = "suspended"
	f.creds.admins[testTenant] = a
	if rec := post(f.h.AdminLogin, `{"slug":"barbearia-do-ze","password":"admin-pass"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for suspended tenant, got %d", rec.Code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t)
	first := decodeLogin(t, post(f.h.AdminLogin, `{"slug":"barbearia-do-ze","password":"admin-pass"}`))

	rec := post(f.h.Refresh, `{"refresh_token":"`+first.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	second := decodeLogin(t, rec)
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if second.TenantID != testTenant {
		t.Fatalf("tenant lost on refresh: %+v", second)
	}

	if rec := post(f.h.Refresh, `{"refresh_token":"`+first.RefreshToken+`"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused token to be rejected, got %d", rec.Code)
	}
}

func TestRefreshLosingConcurrentRotation(t *testing.T) {
	f := newFixture(t)
	login := decodeLogin(t, post(f.h.AdminLogin, `{"slug":"barbearia-do-ze","password":"admin-pass"}`))

	h := NewAuthHandler(NewHS256Signer("test-secret"), f.creds, racingRefresh{f.refresh}, 24*time.Hour, f.metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	before := len(f.refresh.tokens)
	rec := post(h.Refresh, `{"refresh_token":"`+login.RefreshToken+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when the token was revoked concurrently, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.refresh.tokens) != before {
		t.Fatal("no new refresh token may be issued to the losing request")
	}
}

func TestRefreshRejectsSuspendedTenant(t *testing.T) {
	f := newFixture(t)
	first := decodeLogin(t, post(f.h.AdminLogin, `{"slug":"barbearia-do-ze","password":"admin-pass"}`))

	a := f.creds.admins[testTenant]
	a.Status = "suspended"
	f.creds.admins[testTenant] = a

	if rec := post(f.h.Refresh, `{"refresh_token":"`+first.RefreshToken+`"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	login := decodeLogin(t, post(f.h.ManagerLogin, `{"email":"ops@barberflow.test","password":"operator-pass"}`))

	for i := 0; i < 2; i++ {
		if rec := post(f.h.Logout, `{"refresh_token":"`+login.RefreshToken+`"}`); rec.Code != http.StatusNoContent {
			t.Fatalf("attempt %d: expected 204, got %d", i, rec.Code)
		}
	}
	if rec := post(f.h.Logout, `{"refresh_token":"unknown"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for unknown token, got %d", rec.Code)
	}
	if rec := post(f.h.Refresh, `{"refresh_token":"`+login.RefreshToken+`"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to fail refresh, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	login := decodeLogin(t, post(f.h.AdminLogin, `{"slug":"barbearia-do-ze","password":"admin-pass"}`))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	f.h.Me(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), testTenant) {
		t.Fatalf("unexpected me response %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec = httptest.NewRecorder()
	f.h.Me(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestChangeAdminPassword(t *testing.T) {
	f := newFixture(t)
	login := decodeLogin(t, post(f.h.AdminLogin, `{"slug":"barbearia-do-ze","password":"admin-pass"}`))
	bearer := "Bearer " + login.AccessToken

	if rec := post(f.h.ChangeAdminPassword, `{"current_password":"admin-pass","new_password":"short"}`, "Authorization", bearer); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := post(f.h.ChangeAdminPassword, `{"current_password":"wrong","new_password":"nova-senha-1"}`, "Authorization", bearer); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec := post(f.h.ChangeAdminPassword, `{"current_password":"admin-pass","new_password":"nova-senha-1"}`, "Authorization", bearer)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.creds.changed) != 1 || f.creds.changed[0].TenantID != testTenant {
		t.Fatalf("expected audit for tenant, got %+v", f.creds.changed)
	}
	if err := verifyPassword(f.creds.admins[testTenant].PasswordHash, "nova-senha-1"); err != nil {
		t.Fatalf("new password not stored: %v", err)
	}

	manager := decodeLogin(t, post(f.h.ManagerLogin, `{"email":"ops@barberflow.test","password":"operator-pass"}`))
	if rec := post(f.h.ChangeAdminPassword, `{"current_password":"x","new_password":"nova-senha-2"}`, "Authorization", "Bearer "+manager.AccessToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager token, got %d", rec.Code)
	}
}

func TestRotateRequiresKey(t *testing.T) {
	f := newFixture(t)
	if rec := post(f.h.Rotate, `{"active_kid":"k1"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non rotating signer, got %d", rec.Code)
	}
}
