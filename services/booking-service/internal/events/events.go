// Package events defines the appointment events booking-service writes to
// the outbox. The Kafka topic equals the event type.
package events

import (
	"strings"
	"time"

	"github.com/barberflow/barberflow/services/booking-service/internal/model"
)

const (
	AppointmentCreated         = "booking.appointment.created.v1"
	AppointmentStatusChanged   = "booking.appointment.status_changed.v1"
	AppointmentPaymentReported = "booking.appointment.payment_reported.v1"
	AppointmentDeleted         = "booking.appointment.deleted.v1"

	AggregateAppointment = "appointment"
)

// Topics lists every appointment topic, for consumers.
func Topics() []string {
	return []string{
		AppointmentCreated,
		AppointmentStatusChanged,
		AppointmentPaymentReported,
		AppointmentDeleted,
	}
}

// Kind strips the topic down to its action, e.g. "status_changed".
func Kind(eventType string) string {
	k := strings.TrimPrefix(eventType, "booking.appointment.")
	return strings.TrimSuffix(k, ".v1")
}

type Appointment struct {
	AppointmentID  string `json:"appointment_id"`
	TenantID       string `json:"tenant_id"`
	ServiceID      string `json:"service_id"`
	StaffID        string `json:"staff_id"`
	ClientName     string `json:"client_name"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	PaymentStatus  string `json:"payment_status"`
	PaymentMethod  string `json:"payment_method"`
	TotalCents     int64  `json:"total_cents"`
	StartsAt       string `json:"starts_at"`
	EndsAt         string `json:"ends_at"`
	Date           string `json:"date"`
	Time           string `json:"time"`
}

// FromAppointment renders date and time in the tenant's timezone.
func FromAppointment(appt model.Appointment) Appointment {
	local := appt.Local()
	return Appointment{
		AppointmentID: appt.ID,
		TenantID:      appt.TenantID,
		ServiceID:     appt.ServiceID,
		StaffID:       appt.StaffID,
		ClientName:    appt.ClientName,
		Status:        string(appt.Status),
		PaymentStatus: string(appt.PaymentStatus),
		PaymentMethod: string(appt.PaymentMethod),
		TotalCents:    appt.TotalCents,
		StartsAt:      appt.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:        appt.EndsAt.UTC().Format(time.RFC3339),
		Date:          local.Format("2006-01-02"),
		Time:          local.Format("15:04"),
	}
}
