package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/slug"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
)

type createTenantRequest struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	OwnerName     string `json:"owner_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PlanID        string `json:"plan_id"`
	AdminPassword string `json:"admin_password"`
}

type updateTenantRequest struct {
	Name      string `json:"name"`
	OwnerName string `json:"owner_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
}

func validEmail(s string) bool {
	if s == "" {
		return true
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func (req createTenantRequest) provision() (storage.Provision, error) {
	p := storage.Provision{
		Name:      strings.TrimSpace(req.Name),
		OwnerName: strings.TrimSpace(req.OwnerName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		PlanID:    strings.TrimSpace(req.PlanID),
	}
	if p.Name == "" {
		return p, errors.New("name is required")
	}
	if raw := strings.TrimSpace(req.Slug); raw != "" {
		s, err := slug.Normalize(raw)
		if err != nil {
			return p, errors.New("invalid slug")
		}
		p.Slug = s
	} else {
		p.Slug = slug.Make(p.Name)
	}
	if !slug.Valid(p.Slug) {
		return p, errors.New("invalid slug")
	}
	if !validEmail(p.Email) {
		return p, errors.New("invalid email")
	}
	if p.PlanID != "" && !validID(p.PlanID) {
		return p, errors.New("invalid plan_id")
	}
	if len(req.AdminPassword) < MinPasswordLength {
		return p, errors.New("admin_password must have at least 8 characters")
	}
	return p, nil
}

// Tenants serves /api/v1/manager/tenants.
func (c *Console) Tenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			t, err := c.store.GetTenant(ctx, id)
			if err != nil {
				c.writeStoreError(w, err, "load tenant", "")
				return
			}
			writeJSON(w, http.StatusOK, t)
			return
		}
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		if status != "" && status != "active" && status != "suspended" {
			http.Error(w, "status must be active or suspended", http.StatusBadRequest)
			return
		}
		list, err := c.store.ListTenants(ctx, status)
		if err != nil {
			c.writeStoreError(w, err, "list tenants", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenants": list})

	case http.MethodPost:
		var req createTenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		p, err := req.provision()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if p.PlanID != "" {
			if _, err := c.store.GetPlan(ctx, p.PlanID); err != nil {
				if db.IsNotFound(err) {
					http.Error(w, "unknown plan_id", http.StatusBadRequest)
					return
				}
				c.writeStoreError(w, err, "load plan", "")
				return
			}
		}
		p.PasswordHash, err = c.hashPassword(req.AdminPassword)
		if err != nil {
			c.writeStoreError(w, err, "hash password", "")
			return
		}
		evt := audit.FromRequest(r, "manager.tenant.provisioned", "", map[string]any{"slug": p.Slug, "plan_id": p.PlanID})
		t, err := c.store.CreateTenant(ctx, p, evt)
		if err != nil {
			c.writeStoreError(w, err, "provision tenant", "slug already in use")
			return
		}
		c.logger.Info("tenant provisioned", "tenant_id", t.ID, "slug", t.Slug)
		writeJSON(w, http.StatusCreated, map[string]any{"id": t.ID, "slug": t.Slug})

	case http.MethodPut:
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req updateTenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		current, err := c.store.GetTenant(ctx, id)
		if err != nil {
			c.writeStoreError(w, err, "load tenant", "")
			return
		}
		u := storage.TenantUpdate{
			ID:        id,
			Name:      orDefault(req.Name, current.Name),
			OwnerName: orDefault(req.OwnerName, current.OwnerName),
			Email:     strings.ToLower(orDefault(req.Email, current.Email)),
			Phone:     orDefault(req.Phone, current.Phone),
			Status:    orDefault(req.Status, current.Status),
		}
		if u.Status != "active" && u.Status != "suspended" {
			http.Error(w, "status must be active or suspended", http.StatusBadRequest)
			return
		}
		if !validEmail(u.Email) {
			http.Error(w, "invalid email", http.StatusBadRequest)
			return
		}
		evt := audit.FromRequest(r, "manager.tenant.updated", id, map[string]any{"status": u.Status})
		t, err := c.store.UpdateTenant(ctx, u, evt)
		if err != nil {
			c.writeStoreError(w, err, "update tenant", "")
			return
		}
		writeJSON(w, http.StatusOK, t)

	case http.MethodDelete:
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		evt := audit.FromRequest(r, "manager.tenant.deleted", id, nil)
		if err := c.store.DeleteTenant(ctx, id, evt); err != nil {
			c.writeStoreError(w, err, "delete tenant", "")
			return
		}
		c.logger.Info("tenant deleted", "tenant_id", id)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ResetPassword serves POST /api/v1/manager/tenants/password?id=.
func (c *Console) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < MinPasswordLength {
		http.Error(w, "new_password must have at least 8 characters", http.StatusBadRequest)
		return
	}
	hash, err := c.hashPassword(req.NewPassword)
	if err != nil {
		c.writeStoreError(w, err, "hash password", "")
		return
	}
	evt := audit.FromRequest(r, "manager.tenant.password_reset", id, nil)
	if err := c.store.ResetAdminPassword(r.Context(), id, hash, evt); err != nil {
		c.writeStoreError(w, err, "reset password", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignPlan serves POST /api/v1/manager/tenants/plan?id=.
func (c *Console) AssignPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PlanID = strings.TrimSpace(req.PlanID)
	if !validID(req.PlanID) {
		http.Error(w, "invalid plan_id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if _, err := c.store.GetTenant(ctx, id); err != nil {
		c.writeStoreError(w, err, "load tenant", "")
		return
	}
	plan, err := c.store.GetPlan(ctx, req.PlanID)
	if err != nil {
		if db.IsNotFound(err) {
			http.Error(w, "unknown plan_id", http.StatusBadRequest)
			return
		}
		c.writeStoreError(w, err, "load plan", "")
		return
	}

	evt := audit.FromRequest(r, "manager.tenant.plan_assigned", id, map[string]any{"plan_id": plan.ID, "plan_name": plan.Name})
	if err := c.assigner.Assign(ctx, id, plan.ID, evt); err != nil {
		c.writeStoreError(w, err, "assign plan", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": id, "plan_id": plan.ID, "plan_name": plan.Name})
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
