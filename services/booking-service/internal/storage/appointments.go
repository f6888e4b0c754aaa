package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/barberflow/barberflow/services/booking-service/internal/availability"
	"github.com/barberflow/barberflow/services/booking-service/internal/events"
	"github.com/barberflow/barberflow/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

var (
	ErrSlotTaken           = errors.New("time slot already booked")
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different request")
)

const appointmentSelect = `
	SELECT a.id::text, a.tenant_id::text, a.service_id::text, a.staff_id::text, s.name, st.name,
		a.client_name, a.client_phone, a.client_email, a.starts_at, a.ends_at, a.status,
		a.total_cents, a.payment_method, a.payment_status, a.notes, t.timezone,
		a.created_at, a.updated_at
	FROM appointments a
	JOIN services s ON s.id = a.service_id
	JOIN staff st ON st.id = a.staff_id
	JOIN tenants t ON t.id = a.tenant_id`

func scanAppointment(row scanner) (model.Appointment, error) {
	var (
		appt                   model.Appointment
		status, method, paymnt string
	)
	err := row.Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.ServiceID,
		&appt.StaffID,
		&appt.ServiceName,
		&appt.StaffName,
		&appt.ClientName,
		&appt.ClientPhone,
		&appt.ClientEmail,
		&appt.StartsAt,
		&appt.EndsAt,
		&status,
		&appt.TotalCents,
		&method,
		&paymnt,
		&appt.Notes,
		&appt.Timezone,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.PaymentMethod = model.PaymentMethod(method)
	appt.PaymentStatus = model.PaymentStatus(paymnt)
	return appt, nil
}

// BusyIntervals returns the time ranges held by non-cancelled appointments of
// a staff member that intersect [from, to).
func (r *Repository) BusyIntervals(ctx context.Context, tenantID, staffID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT starts_at, ends_at
		FROM appointments
		WHERE tenant_id = $1
			AND staff_id = $2
			AND status <> 'cancelled'
			AND starts_at < $4
			AND ends_at > $3
		ORDER BY starts_at ASC
	`, tenantID, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

type CreateRequest struct {
	Appointment    model.Appointment
	IdempotencyKey string
	RequestHash    string
	// Render builds the HTTP response stored with the idempotency key.
	Render func(model.Appointment) (int, []byte, error)
}

type CreateResult struct {
	Appointment model.Appointment
	StatusCode  int
	Body        []byte
	Replayed    bool
}

// Create inserts a pending or confirmed appointment after enforcing the
// tenant's monthly cap, and records the outbox event in the same transaction.
func (r *Repository) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	appt := req.Appointment

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.IdempotencyKey != "" {
		rec, exists, err := lockIdempotencyKey(ctx, tx, appt.TenantID, req.IdempotencyKey, req.RequestHash)
		if err != nil {
			return CreateResult{}, err
		}
		if exists {
			if rec.RequestHash != req.RequestHash {
				return CreateResult{}, ErrIdempotencyMismatch
			}
			if rec.StatusCode > 0 {
				return CreateResult{StatusCode: rec.StatusCode, Body: rec.Response, Replayed: true}, nil
			}
		}
	}

	// One booking at a time per tenant keeps the monthly count exact.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "booking:"+appt.TenantID); err != nil {
		return CreateResult{}, err
	}
	limits, err := entitlements.ForTenant(ctx, tx, appt.TenantID)
	if err != nil {
		return CreateResult{}, err
	}
	if limits.MaxMonthlyAppointments > 0 {
		used, err := countInMonth(ctx, tx, appt.TenantID, appt.StartsAt)
		if err != nil {
			return CreateResult{}, err
		}
		if err := entitlements.Check(used, limits.MaxMonthlyAppointments); err != nil {
			return CreateResult{}, err
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(tenant_id, service_id, staff_id, client_name, client_phone, client_email,
			 starts_at, ends_at, status, total_cents, payment_method, payment_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id::text, created_at, updated_at
	`, appt.TenantID, appt.ServiceID, appt.StaffID, appt.ClientName, appt.ClientPhone, appt.ClientEmail,
		appt.StartsAt, appt.EndsAt, string(appt.Status), appt.TotalCents, string(appt.PaymentMethod),
		string(appt.PaymentStatus), appt.Notes).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if db.IsConflict(err) {
			return CreateResult{}, ErrSlotTaken
		}
		return CreateResult{}, err
	}

	if err := r.emit(ctx, tx, events.AppointmentCreated, events.FromAppointment(appt)); err != nil {
		return CreateResult{}, err
	}

	code, body, err := req.Render(appt)
	if err != nil {
		return CreateResult{}, err
	}
	if req.IdempotencyKey != "" {
		if err := finalizeIdempotency(ctx, tx, appt.TenantID, req.IdempotencyKey, appt.ID, code, body); err != nil {
			return CreateResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Appointment: appt, StatusCode: code, Body: body}, nil
}

// countInMonth counts non-cancelled appointments starting in the UTC
// calendar month of at.
func countInMonth(ctx context.Context, tx pgx.Tx, tenantID string, at time.Time) (int, error) {
	at = at.UTC()
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE tenant_id = $1
			AND status <> 'cancelled'
			AND starts_at >= $2
			AND starts_at < $3
	`, tenantID, start, end).Scan(&n)
	return n, err
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, appointmentSelect+` WHERE a.tenant_id = $1 AND a.id = $2`, tenantID, id))
}

type ListFilter struct {
	From    time.Time
	To      time.Time
	Status  model.Status
	StaffID string
	Limit   int
}

func (r *Repository) List(ctx context.Context, tenantID string, f ListFilter) ([]model.Appointment, error) {
	var (
		where = []string{"a.tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.From.IsZero() {
		add("a.starts_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("a.starts_at < ?", f.To)
	}
	if f.Status != "" {
		add("a.status = ?", string(f.Status))
	}
	if f.StaffID != "" {
		add("a.staff_id = ?", f.StaffID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, appointmentSelect+`
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY a.starts_at ASC
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// UpdateStatus applies a status transition under a row lock. The bool
// reports whether anything changed; unchanged updates emit no event.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id string, to model.Status, payment model.PaymentStatus) (model.Appointment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := getForUpdate(ctx, tx, tenantID, id)
	if err != nil {
		return model.Appointment{}, false, err
	}
	next, changed, err := model.Transition(current, to, payment)
	if err != nil {
		return current, false, err
	}
	if !changed {
		return current, false, nil
	}

	if err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, payment_status = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`, tenantID, id, string(next.Status), string(next.PaymentStatus)).Scan(&next.UpdatedAt); err != nil {
		return current, false, err
	}

	evt := events.FromAppointment(next)
	evt.PreviousStatus = string(current.Status)
	if err := r.emit(ctx, tx, events.AppointmentStatusChanged, evt); err != nil {
		return current, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return current, false, err
	}
	return next, true, nil
}

// ReportPayment marks an unpaid appointment as reported by the client.
// Repeated calls are no-ops.
func (r *Repository) ReportPayment(ctx context.Context, tenantID, id string) (model.Appointment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := getForUpdate(ctx, tx, tenantID, id)
	if err != nil {
		return model.Appointment{}, false, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, false, model.ErrInvalidTransition
	}
	if appt.PaymentStatus != model.PaymentUnpaid {
		return appt, false, nil
	}

	appt.PaymentStatus = model.PaymentReported
	if err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET payment_status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`, tenantID, id, string(appt.PaymentStatus)).Scan(&appt.UpdatedAt); err != nil {
		return model.Appointment{}, false, err
	}
	if err := r.emit(ctx, tx, events.AppointmentPaymentReported, events.FromAppointment(appt)); err != nil {
		return model.Appointment{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

// Delete removes the appointment; pgx.ErrNoRows when it does not exist.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := getForUpdate(ctx, tx, tenantID, id)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE tenant_id = $1 AND id = $2`, tenantID, id); err != nil {
		return err
	}
	if err := r.emit(ctx, tx, events.AppointmentDeleted, events.FromAppointment(appt)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func getForUpdate(ctx context.Context, tx pgx.Tx, tenantID, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, appointmentSelect+`
		WHERE a.tenant_id = $1 AND a.id = $2
		FOR UPDATE OF a`, tenantID, id))
}

func (r *Repository) emit(ctx context.Context, tx pgx.Tx, eventType string, payload events.Appointment) error {
	evt, err := outbox.NewEvent(events.AggregateAppointment, payload.AppointmentID, eventType, payload)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}
