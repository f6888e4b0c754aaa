package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/slug"
	"github.com/barberflow/barberflow/services/booking-service/internal/availability"
	"github.com/barberflow/barberflow/services/booking-service/internal/model"
	"github.com/barberflow/barberflow/services/booking-service/internal/storage"
)

type publicService struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
}

type publicStaff struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
}

type publicHours struct {
	Weekday int    `json:"weekday"`
	IsOpen  bool   `json:"is_open"`
	Open    string `json:"open,omitempty"`
	Close   string `json:"close,omitempty"`
}

type tenantProfile struct {
	ID         string          `json:"id"`
	Slug       string          `json:"slug"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone,omitempty"`
	Address    string          `json:"address,omitempty"`
	Timezone   string          `json:"timezone"`
	LogoURL    string          `json:"logo_url,omitempty"`
	PixEnabled bool            `json:"pix_enabled"`
	Services   []publicService `json:"services"`
	Staff      []publicStaff   `json:"staff"`
	Hours      []publicHours   `json:"hours"`
}

// activeTenant resolves a public slug. Unknown and suspended tenants are
// both reported as not found.
func (h *BookingHandler) activeTenant(r *http.Request, raw string) (model.Tenant, bool, error) {
	s, err := slug.Normalize(raw)
	if err != nil {
		return model.Tenant{}, false, nil
	}
	tenant, err := h.store.TenantBySlug(r.Context(), s)
	if err != nil {
		if db.IsNotFound(err) {
			return model.Tenant{}, false, nil
		}
		return model.Tenant{}, false, err
	}
	return tenant, tenant.Active(), nil
}

// Tenant serves the public profile used by the first step of the wizard.
func (h *BookingHandler) Tenant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("slug"))
	if raw == "" {
		http.Error(w, "slug required", http.StatusBadRequest)
		return
	}
	key, err := slug.Normalize(raw)
	if err != nil {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	ctx := r.Context()
	if h.cache != nil {
		if body, ok := h.cache.Get(ctx, key); ok {
			writeRaw(w, http.StatusOK, body)
			return
		}
	}

	tenant, ok, err := h.activeTenant(r, key)
	if err != nil {
		h.writeError(w, err, "failed to load tenant")
		return
	}
	if !ok {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	services, err := h.store.ListServices(ctx, tenant.ID, true)
	if err != nil {
		h.writeError(w, err, "failed to load services")
		return
	}
	staff, err := h.store.ListStaff(ctx, tenant.ID, true)
	if err != nil {
		h.writeError(w, err, "failed to load staff")
		return
	}
	hours, err := h.store.BusinessHours(ctx, tenant.ID)
	if err != nil {
		h.writeError(w, err, "failed to load business hours")
		return
	}

	profile := tenantProfile{
		ID:         tenant.ID,
		Slug:       tenant.Slug,
		Name:       tenant.Name,
		Phone:      tenant.Phone,
		Address:    tenant.Address,
		Timezone:   tenant.Timezone,
		PixEnabled: tenant.PixEnabled(),
		Services:   make([]publicService, 0, len(services)),
		Staff:      make([]publicStaff, 0, len(staff)),
	}
	if tenant.LogoKey != "" {
		if url, err := h.blobs.PresignGet(ctx, tenant.LogoKey, logoURLTTL); err == nil {
			profile.LogoURL = url
		} else {
			h.logger.Warn("logo presign failed", "err", err, "tenant_id", tenant.ID)
		}
	}
	for _, s := range services {
		profile.Services = append(profile.Services, publicService{
			ID:              s.ID,
			Name:            s.Name,
			Description:     s.Description,
			DurationMinutes: s.DurationMinutes,
			PriceCents:      s.PriceCents,
		})
	}
	for _, s := range staff {
		profile.Staff = append(profile.Staff, publicStaff{ID: s.ID, Name: s.Name, Specialty: s.Specialty})
	}
	for day, hrs := range weekHours(hours) {
		item := publicHours{Weekday: day, IsOpen: hrs.IsOpen}
		if hrs.IsOpen {
			item.Open = availability.Label(hrs.OpenMinute)
			item.Close = availability.Label(hrs.CloseMinute)
		}
		profile.Hours = append(profile.Hours, item)
	}

	body, err := json.Marshal(profile)
	if err != nil {
		http.Error(w, "failed to encode profile", http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		h.cache.Set(ctx, key, body)
	}
	writeRaw(w, http.StatusOK, body)
}

type slotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// Slots lists the open half-hour labels for a service and staff member.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	date := strings.TrimSpace(q.Get("date"))
	if q.Get("slug") == "" || serviceID == "" || staffID == "" || date == "" {
		http.Error(w, "slug, service_id, staff_id and date are required", http.StatusBadRequest)
		return
	}
	if !validID(serviceID) || !validID(staffID) {
		http.Error(w, "invalid service_id or staff_id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tenant, ok, err := h.activeTenant(r, q.Get("slug"))
	if err != nil {
		h.writeError(w, err, "failed to load tenant")
		return
	}
	if !ok {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	loc := model.LoadLocation(tenant.Timezone)
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	if err := h.checkHorizon(day, loc); err != nil {
		h.writeError(w, err, "")
		return
	}

	svc, staff, err := h.catalogItems(ctx, tenant.ID, serviceID, staffID)
	if err != nil {
		h.writeError(w, err, "failed to load catalog")
		return
	}
	hours, err := h.hoursFor(ctx, tenant.ID, day.Weekday())
	if err != nil {
		h.writeError(w, err, "failed to load business hours")
		return
	}
	slots, err := h.daySlots(ctx, tenant.ID, staff.ID, day, loc, hours, time.Duration(svc.DurationMinutes)*time.Minute)
	if err != nil {
		h.writeError(w, err, "failed to compute slots")
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: date, Slots: slots})
}

type publicBookRequest struct {
	Slug string `json:"slug"`
	bookingInput
}

// Book creates a pending appointment from the public wizard.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req publicBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.normalize()
	if strings.TrimSpace(req.Slug) == "" {
		http.Error(w, "slug required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tenant, ok, err := h.activeTenant(r, req.Slug)
	if err != nil {
		h.writeError(w, err, "failed to load tenant")
		return
	}
	if !ok {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	idem := newIdempotency(r, "public", tenant.ID, req.bookingInput, model.StatusPending)
	if h.replayed(w, r, tenant.ID, idem) {
		return
	}
	appt, err := h.prepare(ctx, tenant, req.bookingInput, modePublic)
	if err != nil {
		h.metrics.bookingRejected("validation")
		h.writeError(w, err, "failed to validate booking")
		return
	}
	h.create(w, r, tenant, appt, idem, "public")
}

type idempotency struct {
	key  string
	hash string
}

func newIdempotency(r *http.Request, channel, tenantID string, in bookingInput, status model.Status) idempotency {
	return idempotency{
		key:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		hash: requestHash(channel, tenantID, in, status),
	}
}

// replayed writes the stored response of a finished request with the same
// Idempotency-Key. Retries are answered before validation, since the first
// attempt's appointment already holds the slot.
func (h *BookingHandler) replayed(w http.ResponseWriter, r *http.Request, tenantID string, idem idempotency) bool {
	if idem.key == "" {
		return false
	}
	res, ok, err := h.store.Replay(r.Context(), tenantID, idem.key, idem.hash)
	if err != nil {
		h.writeError(w, err, "failed to load idempotency key")
		return true
	}
	if !ok {
		return false
	}
	writeRaw(w, res.StatusCode, res.Body)
	return true
}

// create runs the insert and writes either the fresh or the replayed
// response.
func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request, tenant model.Tenant, appt model.Appointment, idem idempotency, channel string) {
	res, err := h.store.Create(r.Context(), storage.CreateRequest{
		Appointment:    appt,
		IdempotencyKey: idem.key,
		RequestHash:    idem.hash,
		Render: func(created model.Appointment) (int, []byte, error) {
			resp := toResponse(created)
			p, err := pixFor(tenant, created)
			if err != nil {
				return 0, nil, err
			}
			resp.Pix = p
			body, err := json.Marshal(resp)
			return http.StatusCreated, body, err
		},
	})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			h.metrics.bookingRejected("conflict")
		}
		h.writeError(w, err, "failed to create appointment")
		return
	}
	if !res.Replayed {
		h.metrics.bookingCreated(channel)
		h.logger.Info("appointment created", "appointment_id", res.Appointment.ID, "tenant_id", tenant.ID, "channel", channel)
	}
	writeRaw(w, res.StatusCode, res.Body)
}

type paymentRequest struct {
	Slug          string `json:"slug"`
	AppointmentID string `json:"appointment_id"`
}

// ReportPayment records the client's "I have paid" confirmation.
func (h *BookingHandler) ReportPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if strings.TrimSpace(req.Slug) == "" || req.AppointmentID == "" {
		http.Error(w, "slug and appointment_id are required", http.StatusBadRequest)
		return
	}
	if !validID(req.AppointmentID) {
		http.Error(w, "invalid appointment_id", http.StatusBadRequest)
		return
	}

	tenant, ok, err := h.activeTenant(r, req.Slug)
	if err != nil {
		h.writeError(w, err, "failed to load tenant")
		return
	}
	if !ok {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	appt, _, err := h.store.ReportPayment(r.Context(), tenant.ID, req.AppointmentID)
	if err != nil {
		h.writeError(w, err, "failed to report payment")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}
