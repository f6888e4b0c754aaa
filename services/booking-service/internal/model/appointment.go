package model

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentReported PaymentStatus = "reported"
	PaymentPaid     PaymentStatus = "paid"
)

type PaymentMethod string

const (
	PaymentPix  PaymentMethod = "pix"
	PaymentCash PaymentMethod = "cash"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal states accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentReported, PaymentPaid:
		return true
	}
	return false
}

func (m PaymentMethod) Valid() bool {
	return m == PaymentPix || m == PaymentCash
}

// CanTransition reports whether from -> to is allowed. Same-state is allowed
// and treated as a no-op by callers.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies a status change and derives the payment status.
// Completing marks the appointment paid unless payment is given explicitly.
// Repeating a terminal status is a no-op.
func Transition(appt Appointment, to Status, payment PaymentStatus) (Appointment, bool, error) {
	if !to.Valid() {
		return appt, false, ErrInvalidTransition
	}
	if payment != "" && !payment.Valid() {
		return appt, false, ErrInvalidTransition
	}
	if !CanTransition(appt.Status, to) {
		return appt, false, ErrInvalidTransition
	}
	// Terminal appointments are frozen, payment included.
	if appt.Status.Terminal() {
		return appt, false, nil
	}

	next := appt
	next.Status = to
	switch {
	case payment != "":
		next.PaymentStatus = payment
	case to == StatusCompleted && appt.Status != StatusCompleted:
		next.PaymentStatus = PaymentPaid
	}
	changed := next.Status != appt.Status || next.PaymentStatus != appt.PaymentStatus
	return next, changed, nil
}

type Appointment struct {
	ID            string
	TenantID      string
	ServiceID     string
	StaffID       string
	ServiceName   string
	StaffName     string
	ClientName    string
	ClientPhone   string
	ClientEmail   string
	StartsAt      time.Time
	EndsAt        time.Time
	Status        Status
	TotalCents    int64
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Notes         string
	Timezone      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Location is the tenant timezone, UTC when unknown.
func (a Appointment) Location() *time.Location {
	return LoadLocation(a.Timezone)
}

// Local is the start time on the tenant's wall clock.
func (a Appointment) Local() time.Time {
	return a.StartsAt.In(a.Location())
}

// LoadLocation resolves an IANA name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
