package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to every tenant admin password.
const MinPasswordLength = 8

type Store interface {
	ListTenants(ctx context.Context, status string) ([]storage.Tenant, error)
	GetTenant(ctx context.Context, id string) (storage.Tenant, error)
	CreateTenant(ctx context.Context, p storage.Provision, evt audit.Event) (storage.Tenant, error)
	UpdateTenant(ctx context.Context, u storage.TenantUpdate, evt audit.Event) (storage.Tenant, error)
	DeleteTenant(ctx context.Context, id string, evt audit.Event) error
	ResetAdminPassword(ctx context.Context, tenantID, passwordHash string, evt audit.Event) error

	ListPlans(ctx context.Context) ([]storage.Plan, error)
	GetPlan(ctx context.Context, id string) (storage.Plan, error)
	CreatePlan(ctx context.Context, p storage.Plan) (storage.Plan, error)
	UpdatePlan(ctx context.Context, p storage.Plan) (storage.Plan, error)
	DeletePlan(ctx context.Context, id string) error

	Overview(ctx context.Context) (storage.Overview, error)
}

// PlanAssigner is implemented by subscriptions.Service.
type PlanAssigner interface {
	Assign(ctx context.Context, tenantID, planID string, evt audit.Event) error
}

// Console serves the platform operator routes under /api/v1/manager.
type Console struct {
	store        Store
	assigner     PlanAssigner
	logger       *slog.Logger
	hashPassword func(string) (string, error)
}

func NewConsole(store Store, assigner PlanAssigner, logger *slog.Logger) *Console {
	return &Console{store: store, assigner: assigner, logger: logger, hashPassword: hashPassword}
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get(name))
	if !validID(id) {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// writeStoreError maps repository errors; conflict is the message for 409.
func (c *Console) writeStoreError(w http.ResponseWriter, err error, action, conflict string) {
	switch {
	case db.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	case db.IsUniqueViolation(err), db.IsForeignKeyViolation(err):
		http.Error(w, conflict, http.StatusConflict)
	default:
		c.logger.Error(action+" failed", "err", err)
		http.Error(w, "failed to "+action, http.StatusInternalServerError)
	}
}
