package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
)

type planRequest struct {
	Name                   string   `json:"name"`
	PriceCents             int64    `json:"price_cents"`
	MaxStaff               int      `json:"max_staff"`
	MaxServices            int      `json:"max_services"`
	MaxMonthlyAppointments int      `json:"max_monthly_appointments"`
	Features               []string `json:"features"`
	StripePriceID          string   `json:"stripe_price_id"`
	IsActive               *bool    `json:"is_active"`
}

func (req planRequest) plan(id string) (storage.Plan, error) {
	p := storage.Plan{
		ID:                     id,
		Name:                   strings.TrimSpace(req.Name),
		PriceCents:             req.PriceCents,
		MaxStaff:               req.MaxStaff,
		MaxServices:            req.MaxServices,
		MaxMonthlyAppointments: req.MaxMonthlyAppointments,
		StripePriceID:          strings.TrimSpace(req.StripePriceID),
		IsActive:               req.IsActive == nil || *req.IsActive,
		Features:               []string{},
	}
	for _, f := range req.Features {
		if f = strings.TrimSpace(f); f != "" {
			p.Features = append(p.Features, f)
		}
	}
	switch {
	case p.Name == "":
		return p, errors.New("name is required")
	case p.PriceCents < 0:
		return p, errors.New("price_cents must be >= 0")
	case p.MaxStaff < 0 || p.MaxServices < 0 || p.MaxMonthlyAppointments < 0:
		return p, errors.New("limits must be >= 0")
	}
	return p, nil
}

// Plans serves /api/v1/manager/plans. A zero limit means unlimited.
func (c *Console) Plans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			id, ok := idParam(w, r, "id")
			if !ok {
				return
			}
			p, err := c.store.GetPlan(ctx, id)
			if err != nil {
				c.writeStoreError(w, err, "load plan", "")
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		}
		list, err := c.store.ListPlans(ctx)
		if err != nil {
			c.writeStoreError(w, err, "list plans", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plans": list})

	case http.MethodPost, http.MethodPut:
		id := ""
		if r.Method == http.MethodPut {
			var ok bool
			if id, ok = idParam(w, r, "id"); !ok {
				return
			}
		}
		var req planRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		p, err := req.plan(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodPost {
			p, err = c.store.CreatePlan(ctx, p)
		} else {
			p, err = c.store.UpdatePlan(ctx, p)
		}
		if err != nil {
			c.writeStoreError(w, err, "save plan", "plan name already exists")
			return
		}
		code := http.StatusOK
		if r.Method == http.MethodPost {
			code = http.StatusCreated
		}
		writeJSON(w, code, p)

	case http.MethodDelete:
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if err := c.store.DeletePlan(ctx, id); err != nil {
			c.writeStoreError(w, err, "delete plan", "plan is assigned to tenants")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *Console) Overview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	o, err := c.store.Overview(r.Context())
	if err != nil {
		c.writeStoreError(w, err, "load overview", "")
		return
	}
	writeJSON(w, http.StatusOK, o)
}
