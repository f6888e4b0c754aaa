package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/auth"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/httpx"
	"github.com/barberflow/barberflow/libs/slug"
	"github.com/barberflow/barberflow/services/auth-service/internal/sessions"
	"github.com/barberflow/barberflow/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTTL         = time.Hour
	minPasswordLength = 8
)

type Credentials interface {
	OperatorByEmail(ctx context.Context, email string) (storage.Operator, error)
	OperatorByID(ctx context.Context, id string) (storage.Operator, error)
	AdminBySlug(ctx context.Context, slug string) (storage.TenantAdmin, error)
	AdminByTenantID(ctx context.Context, tenantID string) (storage.TenantAdmin, error)
	ChangeAdminPassword(ctx context.Context, tenantID, passwordHash string, evt audit.Event) error
	RecordAudit(ctx context.Context, evt audit.Event) error
	ListAudit(ctx context.Context, tenantID string, limit int) ([]audit.Record, error)
}

type RefreshStore interface {
	Create(ctx context.Context, subject sessions.Subject, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
}

type AuthHandler struct {
	signer     TokenSigner
	creds      Credentials
	refresh    RefreshStore
	refreshTTL time.Duration
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewAuthHandler(signer TokenSigner, creds Credentials, refresh RefreshStore, refreshTTL time.Duration, metrics *Metrics, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		signer:     signer,
		creds:      creds,
		refresh:    refresh,
		refreshTTL: refreshTTL,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

type managerLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminLoginRequest struct {
	Slug     string `json:"slug"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Role         string `json:"role"`
	TenantID     string `json:"tenant_id,omitempty"`
	Slug         string `json:"slug,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ManagerLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req managerLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	op, err := h.creds.OperatorByEmail(r.Context(), req.Email)
	if err != nil {
		if db.IsNotFound(err) {
			h.metrics.login(auth.RoleManager, "invalid")
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error("operator lookup failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if err := verifyPassword(op.PasswordHash, req.Password); err != nil {
		h.metrics.login(auth.RoleManager, "invalid")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.metrics.login(auth.RoleManager, "success")
	h.issue(w, r, http.StatusOK, auth.Claims{Sub: op.ID, Role: auth.RoleManager})
}

func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Slug) == "" || req.Password == "" {
		http.Error(w, "slug and password required", http.StatusBadRequest)
		return
	}
	s, err := slug.Normalize(req.Slug)
	if err != nil {
		h.metrics.login(auth.RoleAdmin, "invalid")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	admin, err := h.creds.AdminBySlug(r.Context(), s)
	if err != nil {
		if db.IsNotFound(err) {
			h.metrics.login(auth.RoleAdmin, "invalid")
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error("tenant admin lookup failed", "err", err, "slug", s)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if err := verifyPassword(admin.PasswordHash, req.Password); err != nil {
		h.metrics.login(auth.RoleAdmin, "invalid")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if admin.Suspended() {
		h.metrics.login(auth.RoleAdmin, "suspended")
		http.Error(w, "tenant suspended", http.StatusForbidden)
		return
	}

	h.metrics.login(auth.RoleAdmin, "success")
	h.issue(w, r, http.StatusOK, adminClaims(admin))
}

func adminClaims(a storage.TenantAdmin) auth.Claims {
	return auth.Claims{Sub: a.TenantID, TenantID: a.TenantID, Slug: a.Slug, Role: auth.RoleAdmin}
}

// Refresh rotates the refresh token: the presented one is revoked and a new
// pair is issued from the current credential state.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	record, err := h.refresh.GetByHash(ctx, sessions.HashToken(req.RefreshToken))
	if err != nil {
		if db.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if !record.Usable(h.now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	var claims auth.Claims
	switch record.Subject.Role {
	case auth.RoleManager:
		op, err := h.creds.OperatorByID(ctx, record.Subject.ID)
		if err != nil {
			h.writeSubjectError(w, err)
			return
		}
		claims = auth.Claims{Sub: op.ID, Role: auth.RoleManager}
	case auth.RoleAdmin:
		admin, err := h.creds.AdminByTenantID(ctx, record.Subject.TenantID)
		if err != nil {
			h.writeSubjectError(w, err)
			return
		}
		if admin.Suspended() {
			http.Error(w, "tenant suspended", http.StatusForbidden)
			return
		}
		claims = adminClaims(admin)
	default:
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	if err := h.refresh.Revoke(ctx, record.ID); err != nil {
		if db.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}
	h.issue(w, r, http.StatusOK, claims)
}

func (h *AuthHandler) writeSubjectError(w http.ResponseWriter, err error) {
	if db.IsNotFound(err) {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	h.logger.Error("refresh subject lookup failed", "err", err)
	http.Error(w, "failed to lookup user", http.StatusInternalServerError)
}

// Logout is idempotent: unknown or already revoked tokens still get 204.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.refresh.GetByHash(r.Context(), sessions.HashToken(req.RefreshToken))
	if err != nil {
		if db.IsNotFound(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt == nil {
		if err := h.refresh.Revoke(r.Context(), record.ID); err != nil && !db.IsNotFound(err) {
			http.Error(w, "failed to revoke refresh token", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.verify(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// ChangeAdminPassword lets a tenant admin rotate their own password.
func (h *AuthHandler) ChangeAdminPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.verify(w, r)
	if !ok {
		return
	}
	if claims.Role != auth.RoleAdmin || claims.TenantID == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		http.Error(w, "new_password must have at least 8 characters", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	admin, err := h.creds.AdminByTenantID(ctx, claims.TenantID)
	if err != nil {
		if db.IsNotFound(err) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if err := verifyPassword(admin.PasswordHash, req.CurrentPassword); err != nil {
		http.Error(w, "current password is incorrect", http.StatusUnauthorized)
		return
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}
	evt := audit.Event{
		EventType: "auth.admin.password_changed",
		ActorType: auth.RoleAdmin,
		ActorID:   claims.Sub,
		TenantID:  claims.TenantID,
		Metadata:  map[string]any{},
	}
	if reqID := r.Header.Get("X-Request-Id"); reqID != "" {
		evt.Metadata["request_id"] = reqID
	}
	if err := h.creds.ChangeAdminPassword(ctx, claims.TenantID, hash, evt); err != nil {
		h.logger.Error("password change failed", "err", err, "tenant_id", claims.TenantID)
		http.Error(w, "failed to change password", http.StatusInternalServerError)
		return
	}
	h.logger.Info("admin password changed", "tenant_id", claims.TenantID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jwks := h.signer.JWKS()
	if len(jwks) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": jwks})
}

func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.signer.CanRotate() {
		http.Error(w, "rotation not enabled", http.StatusBadRequest)
		return
	}
	if !h.rotateKeyMatches(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ActiveKid string `json:"active_kid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ActiveKid == "" {
		http.Error(w, "active_kid is required", http.StatusBadRequest)
		return
	}
	if err := h.signer.SetActiveKid(req.ActiveKid); err != nil {
		http.Error(w, "invalid active_kid", http.StatusBadRequest)
		return
	}

	if err := h.creds.RecordAudit(r.Context(), audit.FromRequest(r, "jwt.rotate", "", map[string]any{
		"active_kid": req.ActiveKid,
	})); err != nil {
		h.logger.Warn("jwt rotate audit failed", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.rotateKeyMatches(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events, err := h.creds.ListAudit(r.Context(), strings.TrimSpace(r.URL.Query().Get("tenant_id")), limit)
	if err != nil {
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AuthHandler) rotateKeyMatches(r *http.Request) bool {
	reqKey := r.Header.Get("X-Rotate-Key")
	return reqKey != "" && reqKey == h.signer.RotateKey()
}

func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token := httpx.BearerToken(r)
	if token == "" {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := h.signer.Verify(token)
	if err != nil || claims.Exp < h.now().Unix() {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, code int, claims auth.Claims) {
	now := h.now()
	claims.Iat = now.Unix()
	claims.Exp = now.Add(accessTTL).Unix()
	access, err := h.signer.Sign(claims)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	raw, err := newRefreshToken()
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}
	subject := sessions.Subject{ID: claims.Sub, TenantID: claims.TenantID, Role: claims.Role}
	if _, err := h.refresh.Create(r.Context(), subject, raw, now.Add(h.refreshTTL)); err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, code, loginResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int(accessTTL.Seconds()),
		Role:         claims.Role,
		TenantID:     claims.TenantID,
		Slug:         claims.Slug,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword is also used by the operator bootstrap.
func HashPassword(raw string) (string, error) {
	return hashPassword(raw)
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
