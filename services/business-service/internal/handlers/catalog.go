package handlers

import (
	"net/http"
	"strings"

	"github.com/barberflow/barberflow/services/business-service/internal/storage"
)

const (
	minServiceMinutes = 5
	maxServiceMinutes = 480
)

type serviceRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	IsActive        *bool  `json:"is_active"`
}

func (req serviceRequest) validate() (storage.Service, string) {
	s := storage.Service{
		Name:            strings.TrimSpace(req.Name),
		Description:     strings.TrimSpace(req.Description),
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	switch {
	case s.Name == "":
		return s, "name is required"
	case s.DurationMinutes < minServiceMinutes || s.DurationMinutes > maxServiceMinutes:
		return s, "duration_minutes must be between 5 and 480"
	case s.PriceCents < 0:
		return s, "price_cents must be >= 0"
	}
	return s, ""
}

// Services serves /api/v1/admin/services.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			id, ok := idParam(w, r)
			if !ok {
				return
			}
			s, err := h.store.GetService(ctx, tenantID, id)
			if err != nil {
				h.writeError(w, err, "load service")
				return
			}
			writeJSON(w, http.StatusOK, s)
			return
		}
		list, err := h.store.ListServices(ctx, tenantID)
		if err != nil {
			h.writeError(w, err, "list services")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": list})

	case http.MethodPost:
		var req serviceRequest
		if !decodeJSON(r, &req) {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		s, msg := req.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		s.TenantID = tenantID
		created, err := h.store.CreateService(ctx, s)
		if err != nil {
			h.writeError(w, err, "create service")
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodPut:
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var req serviceRequest
		if !decodeJSON(r, &req) {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		s, msg := req.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		s.TenantID, s.ID = tenantID, id
		updated, err := h.store.UpdateService(ctx, s)
		if err != nil {
			h.writeError(w, err, "update service")
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := h.store.DeleteService(ctx, tenantID, id); err != nil {
			h.writeError(w, err, "delete service")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type staffRequest struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
	IsActive  *bool  `json:"is_active"`
}

func (req staffRequest) validate() (storage.Staff, string) {
	s := storage.Staff{
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Specialty: strings.TrimSpace(req.Specialty),
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	if s.Name == "" {
		return s, "name is required"
	}
	return s, ""
}

// Staff serves /api/v1/admin/staff.
func (h *Handler) Staff(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			id, ok := idParam(w, r)
			if !ok {
				return
			}
			s, err := h.store.GetStaff(ctx, tenantID, id)
			if err != nil {
				h.writeError(w, err, "load staff")
				return
			}
			writeJSON(w, http.StatusOK, s)
			return
		}
		list, err := h.store.ListStaff(ctx, tenantID)
		if err != nil {
			h.writeError(w, err, "list staff")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"staff": list})

	case http.MethodPost:
		var req staffRequest
		if !decodeJSON(r, &req) {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		s, msg := req.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		s.TenantID = tenantID
		created, err := h.store.CreateStaff(ctx, s)
		if err != nil {
			h.writeError(w, err, "create staff")
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodPut:
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var req staffRequest
		if !decodeJSON(r, &req) {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		s, msg := req.validate()
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		s.TenantID, s.ID = tenantID, id
		updated, err := h.store.UpdateStaff(ctx, s)
		if err != nil {
			h.writeError(w, err, "update staff")
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := h.store.DeleteStaff(ctx, tenantID, id); err != nil {
			h.writeError(w, err, "delete staff")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
