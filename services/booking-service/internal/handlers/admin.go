package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/services/booking-service/internal/model"
	"github.com/barberflow/barberflow/services/booking-service/internal/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	maxListRangeDays = 366
)

// Appointments serves the admin collection: GET lists, POST creates,
// DELETE ?id= removes.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromHeader(r)
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.listAppointments(w, r, tenantID)
	case http.MethodPost:
		h.createAppointment(w, r, tenantID)
	case http.MethodDelete:
		h.deleteAppointment(w, r, tenantID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) listAppointments(w http.ResponseWriter, r *http.Request, tenantID string) {
	ctx := r.Context()
	q := r.URL.Query()

	if id := strings.TrimSpace(q.Get("id")); id != "" {
		if !validID(id) {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		appt, err := h.store.Get(ctx, tenantID, id)
		if err != nil {
			h.writeError(w, err, "failed to load appointment")
			return
		}
		writeJSON(w, http.StatusOK, toResponse(appt))
		return
	}

	tenant, err := h.store.TenantByID(ctx, tenantID)
	if err != nil {
		h.writeError(w, err, "failed to load tenant")
		return
	}
	filter, err := parseListFilter(q, model.LoadLocation(tenant.Timezone))
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	appts, err := h.store.List(ctx, tenantID, filter)
	if err != nil {
		h.writeError(w, err, "failed to list appointments")
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toResponse(appt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type queryGetter interface {
	Get(key string) string
}

// parseListFilter reads date, from/to (inclusive local dates), status,
// staff_id and limit.
func parseListFilter(q queryGetter, loc *time.Location) (storage.ListFilter, error) {
	var f storage.ListFilter
	parseDay := func(name string) (time.Time, error) {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return time.Time{}, nil
		}
		d, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return time.Time{}, badRequest("invalid " + name)
		}
		return d, nil
	}

	date, err := parseDay("date")
	if err != nil {
		return f, err
	}
	from, err := parseDay("from")
	if err != nil {
		return f, err
	}
	to, err := parseDay("to")
	if err != nil {
		return f, err
	}
	switch {
	case !date.IsZero():
		f.From, f.To = date, date.AddDate(0, 0, 1)
	default:
		if !from.IsZero() {
			f.From = from
		}
		if !to.IsZero() {
			f.To = to.AddDate(0, 0, 1)
		}
		if !f.From.IsZero() && !f.To.IsZero() {
			if !f.To.After(f.From) {
				return f, badRequest("from must not be after to")
			}
			if f.To.After(f.From.AddDate(0, 0, maxListRangeDays)) {
				return f, badRequest("range too large")
			}
		}
	}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st := model.Status(raw)
		if !st.Valid() {
			return f, badRequest("invalid status")
		}
		f.Status = st
	}
	if raw := strings.TrimSpace(q.Get("staff_id")); raw != "" {
		if !validID(raw) {
			return f, badRequest("invalid staff_id")
		}
		f.StaffID = raw
	}
	f.Limit = defaultListLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, badRequest("invalid limit")
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		f.Limit = n
	}
	return f, nil
}

type adminCreateRequest struct {
	bookingInput
	Status string `json:"status"`
}

func (h *BookingHandler) createAppointment(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req adminCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.normalize()
	status := model.Status(strings.TrimSpace(req.Status))
	if status == "" {
		status = model.StatusPending
	}
	if status != model.StatusPending && status != model.StatusConfirmed {
		http.Error(w, "status must be pending or confirmed", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tenant, err := h.store.TenantByID(ctx, tenantID)
	if err != nil {
		h.writeError(w, err, "failed to load tenant")
		return
	}
	idem := newIdempotency(r, "admin", tenant.ID, req.bookingInput, status)
	if h.replayed(w, r, tenant.ID, idem) {
		return
	}
	appt, err := h.prepare(ctx, tenant, req.bookingInput, modeAdmin)
	if err != nil {
		h.metrics.bookingRejected("validation")
		h.writeError(w, err, "failed to validate booking")
		return
	}
	appt.Status = status
	h.create(w, r, tenant, appt, idem, "admin")
}

func (h *BookingHandler) deleteAppointment(w http.ResponseWriter, r *http.Request, tenantID string) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !validID(id) {
		http.Error(w, "valid id required", http.StatusBadRequest)
		return
	}
	if err := h.store.Delete(r.Context(), tenantID, id); err != nil {
		if db.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.writeError(w, err, "failed to delete appointment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// AppointmentStatus handles PUT ?id= with a status transition.
func (h *BookingHandler) AppointmentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID := tenantFromHeader(r)
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !validID(id) {
		http.Error(w, "valid id required", http.StatusBadRequest)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	to := model.Status(strings.TrimSpace(req.Status))
	if !to.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	payment := model.PaymentStatus(strings.TrimSpace(req.PaymentStatus))
	if payment != "" && !payment.Valid() {
		http.Error(w, "invalid payment_status", http.StatusBadRequest)
		return
	}

	appt, changed, err := h.store.UpdateStatus(r.Context(), tenantID, id, to, payment)
	if err != nil {
		h.writeError(w, err, "failed to update status")
		return
	}
	if changed {
		h.logger.Info("appointment status changed", "appointment_id", id, "tenant_id", tenantID, "status", appt.Status)
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}
