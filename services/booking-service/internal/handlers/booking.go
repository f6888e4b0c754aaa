package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/blob"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/barberflow/barberflow/libs/pix"
	"github.com/barberflow/barberflow/services/booking-service/internal/availability"
	"github.com/barberflow/barberflow/services/booking-service/internal/model"
	"github.com/barberflow/barberflow/services/booking-service/internal/storage"
)

const logoURLTTL = time.Hour

type BookingHandler struct {
	store   Store
	cache   ProfileCache
	blobs   blob.Store
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Options struct {
	Cache   ProfileCache
	Blobs   blob.Store
	Metrics *Metrics
	Now     func() time.Time
}

func NewBookingHandler(store Store, logger *slog.Logger, opts Options) *BookingHandler {
	h := &BookingHandler{
		store:   store,
		cache:   opts.Cache,
		blobs:   opts.Blobs,
		metrics: opts.Metrics,
		logger:  logger,
		now:     opts.Now,
	}
	if h.blobs == nil {
		h.blobs = blob.Disabled{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// bookingInput is the part of a create request shared by the public and
// admin flows.
type bookingInput struct {
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	ClientEmail   string `json:"client_email"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes,omitempty"`
}

func (in *bookingInput) normalize() {
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	in.StaffID = strings.TrimSpace(in.StaffID)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.ClientPhone = strings.TrimSpace(in.ClientPhone)
	in.ClientEmail = strings.TrimSpace(in.ClientEmail)
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	in.Notes = strings.TrimSpace(in.Notes)
	if in.PaymentMethod == "" {
		in.PaymentMethod = string(model.PaymentPix)
	}
}

// requestError carries the status code a validation failure maps to.
type requestError struct {
	code int
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error   { return &requestError{http.StatusBadRequest, msg} }
func unprocessable(msg string) error { return &requestError{http.StatusUnprocessableEntity, msg} }

// writeError maps validation, domain and storage errors to responses.
func (h *BookingHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		http.Error(w, reqErr.msg, reqErr.code)
	case db.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrSlotTaken):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, model.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, entitlements.ErrLimitReached):
		http.Error(w, "monthly appointment limit reached", http.StatusPaymentRequired)
	case errors.Is(err, storage.ErrIdempotencyMismatch):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

type bookingMode int

const (
	modePublic bookingMode = iota
	modeAdmin
)

// prepare validates a booking against the tenant's catalog and calendar and
// returns the appointment to insert. Public bookings must pick an offered
// slot; admin bookings only need a grid-aligned time inside business hours.
func (h *BookingHandler) prepare(ctx context.Context, tenant model.Tenant, in bookingInput, mode bookingMode) (model.Appointment, error) {
	if in.ServiceID == "" || in.StaffID == "" || in.Date == "" || in.Time == "" {
		return model.Appointment{}, badRequest("service_id, staff_id, date and time are required")
	}
	if in.ClientName == "" || in.ClientPhone == "" {
		return model.Appointment{}, badRequest("client_name and client_phone are required")
	}
	if !validID(in.ServiceID) || !validID(in.StaffID) {
		return model.Appointment{}, badRequest("invalid service_id or staff_id")
	}
	method := model.PaymentMethod(in.PaymentMethod)
	if !method.Valid() {
		return model.Appointment{}, badRequest("payment_method must be pix or cash")
	}

	svc, staff, err := h.catalogItems(ctx, tenant.ID, in.ServiceID, in.StaffID)
	if err != nil {
		return model.Appointment{}, err
	}

	loc := model.LoadLocation(tenant.Timezone)
	day, err := time.ParseInLocation("2006-01-02", in.Date, loc)
	if err != nil {
		return model.Appointment{}, badRequest("invalid date")
	}
	minute, err := availability.ParseLabel(in.Time)
	if err != nil {
		return model.Appointment{}, badRequest("invalid time")
	}
	hours, err := h.hoursFor(ctx, tenant.ID, day.Weekday())
	if err != nil {
		return model.Appointment{}, err
	}
	duration := time.Duration(svc.DurationMinutes) * time.Minute

	switch mode {
	case modePublic:
		if err := h.checkHorizon(day, loc); err != nil {
			return model.Appointment{}, err
		}
		slots, err := h.daySlots(ctx, tenant.ID, staff.ID, day, loc, hours, duration)
		if err != nil {
			return model.Appointment{}, err
		}
		if !contains(slots, availability.Label(minute)) {
			return model.Appointment{}, unprocessable("time not available")
		}
	case modeAdmin:
		if !availability.OnGrid(hours, minute, duration) {
			return model.Appointment{}, unprocessable("time outside business hours")
		}
	}

	start := availability.At(day, minute, loc)
	return model.Appointment{
		TenantID:      tenant.ID,
		ServiceID:     svc.ID,
		StaffID:       staff.ID,
		ServiceName:   svc.Name,
		StaffName:     staff.Name,
		ClientName:    in.ClientName,
		ClientPhone:   in.ClientPhone,
		ClientEmail:   in.ClientEmail,
		StartsAt:      start,
		EndsAt:        start.Add(duration),
		Status:        model.StatusPending,
		TotalCents:    svc.PriceCents,
		PaymentMethod: method,
		PaymentStatus: model.PaymentUnpaid,
		Notes:         in.Notes,
		Timezone:      tenant.Timezone,
	}, nil
}

func (h *BookingHandler) catalogItems(ctx context.Context, tenantID, serviceID, staffID string) (model.Service, model.Staff, error) {
	svc, err := h.store.GetService(ctx, tenantID, serviceID)
	if err != nil {
		if db.IsNotFound(err) {
			return model.Service{}, model.Staff{}, unprocessable("service not available")
		}
		return model.Service{}, model.Staff{}, err
	}
	if !svc.IsActive {
		return model.Service{}, model.Staff{}, unprocessable("service not available")
	}
	staff, err := h.store.GetStaff(ctx, tenantID, staffID)
	if err != nil {
		if db.IsNotFound(err) {
			return model.Service{}, model.Staff{}, unprocessable("staff member not available")
		}
		return model.Service{}, model.Staff{}, err
	}
	if !staff.IsActive {
		return model.Service{}, model.Staff{}, unprocessable("staff member not available")
	}
	return svc, staff, nil
}

// checkHorizon rejects dates too far ahead.
func (h *BookingHandler) checkHorizon(day time.Time, loc *time.Location) error {
	today := availability.At(h.now().In(loc), 0, loc)
	if day.After(today.AddDate(0, 0, availability.MaxDaysAhead)) {
		return badRequest("date is too far ahead")
	}
	return nil
}

func (h *BookingHandler) daySlots(ctx context.Context, tenantID, staffID string, day time.Time, loc *time.Location, hours availability.Hours, duration time.Duration) ([]string, error) {
	from := availability.At(day, 0, loc)
	to := from.AddDate(0, 0, 1)
	busy, err := h.store.BusyIntervals(ctx, tenantID, staffID, from, to)
	if err != nil {
		return nil, err
	}
	return availability.DaySlots(day, loc, hours, duration, busy, h.now()), nil
}

func (h *BookingHandler) hoursFor(ctx context.Context, tenantID string, weekday time.Weekday) (availability.Hours, error) {
	rows, err := h.store.BusinessHours(ctx, tenantID)
	if err != nil {
		return availability.Hours{}, err
	}
	return weekHours(rows)[weekday], nil
}

// weekHours fills unconfigured weekdays with the default opening hours.
func weekHours(rows []model.BusinessHours) [7]availability.Hours {
	var week [7]availability.Hours
	for i := range week {
		week[i] = availability.DefaultHours()
	}
	for _, r := range rows {
		if r.Weekday < 0 || r.Weekday > 6 {
			continue
		}
		week[r.Weekday] = availability.Hours{IsOpen: r.IsOpen, OpenMinute: r.OpenMinute, CloseMinute: r.CloseMinute}
	}
	return week
}

type pixInstructions struct {
	CopyPaste string `json:"copy_paste"`
	Key       string `json:"key,omitempty"`
	KeyType   string `json:"key_type,omitempty"`
	Amount    string `json:"amount"`
}

type appointmentResponse struct {
	AppointmentID string           `json:"appointment_id"`
	Status        string           `json:"status"`
	PaymentStatus string           `json:"payment_status"`
	PaymentMethod string           `json:"payment_method"`
	ServiceID     string           `json:"service_id"`
	ServiceName   string           `json:"service_name"`
	StaffID       string           `json:"staff_id"`
	StaffName     string           `json:"staff_name"`
	ClientName    string           `json:"client_name"`
	ClientPhone   string           `json:"client_phone,omitempty"`
	ClientEmail   string           `json:"client_email,omitempty"`
	Date          string           `json:"date"`
	Time          string           `json:"time"`
	EndTime       string           `json:"end_time"`
	StartsAt      string           `json:"starts_at"`
	TotalCents    int64            `json:"total_cents"`
	Notes         string           `json:"notes,omitempty"`
	Pix           *pixInstructions `json:"pix,omitempty"`
}

func toResponse(appt model.Appointment) appointmentResponse {
	loc := appt.Location()
	start := appt.StartsAt.In(loc)
	return appointmentResponse{
		AppointmentID: appt.ID,
		Status:        string(appt.Status),
		PaymentStatus: string(appt.PaymentStatus),
		PaymentMethod: string(appt.PaymentMethod),
		ServiceID:     appt.ServiceID,
		ServiceName:   appt.ServiceName,
		StaffID:       appt.StaffID,
		StaffName:     appt.StaffName,
		ClientName:    appt.ClientName,
		ClientPhone:   appt.ClientPhone,
		ClientEmail:   appt.ClientEmail,
		Date:          start.Format("2006-01-02"),
		Time:          start.Format("15:04"),
		EndTime:       appt.EndsAt.In(loc).Format("15:04"),
		StartsAt:      appt.StartsAt.UTC().Format(time.RFC3339),
		TotalCents:    appt.TotalCents,
		Notes:         appt.Notes,
	}
}

// pixFor returns the payment instructions of a PIX appointment. The tenant's
// static copy-paste string wins over a generated BR Code.
func pixFor(tenant model.Tenant, appt model.Appointment) (*pixInstructions, error) {
	if appt.PaymentMethod != model.PaymentPix || !tenant.PixEnabled() {
		return nil, nil
	}
	out := &pixInstructions{
		CopyPaste: tenant.PixCopyPaste,
		Key:       tenant.PixKey,
		KeyType:   tenant.PixKeyType,
		Amount:    pix.FormatAmount(appt.TotalCents),
	}
	if out.CopyPaste != "" {
		return out, nil
	}
	merchant := tenant.PixMerchantName
	if merchant == "" {
		merchant = tenant.Name
	}
	code, err := pix.Build(pix.Payment{
		Key:          tenant.PixKey,
		MerchantName: merchant,
		MerchantCity: tenant.PixMerchantCity,
		AmountCents:  appt.TotalCents,
		TxID:         strings.ReplaceAll(appt.ID, "-", ""),
	})
	if err != nil {
		return nil, err
	}
	out.CopyPaste = code
	return out, nil
}

func requestHash(parts ...any) string {
	raw, _ := json.Marshal(parts)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
