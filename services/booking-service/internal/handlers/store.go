package handlers

import (
	"context"
	"time"

	"github.com/barberflow/barberflow/services/booking-service/internal/availability"
	"github.com/barberflow/barberflow/services/booking-service/internal/model"
	"github.com/barberflow/barberflow/services/booking-service/internal/storage"
)

// Store is implemented by storage.Repository. Lookups return pgx.ErrNoRows
// when nothing matches.
type Store interface {
	TenantBySlug(ctx context.Context, slug string) (model.Tenant, error)
	TenantByID(ctx context.Context, id string) (model.Tenant, error)
	ListServices(ctx context.Context, tenantID string, activeOnly bool) ([]model.Service, error)
	GetService(ctx context.Context, tenantID, id string) (model.Service, error)
	ListStaff(ctx context.Context, tenantID string, activeOnly bool) ([]model.Staff, error)
	GetStaff(ctx context.Context, tenantID, id string) (model.Staff, error)
	BusinessHours(ctx context.Context, tenantID string) ([]model.BusinessHours, error)

	BusyIntervals(ctx context.Context, tenantID, staffID string, from, to time.Time) ([]availability.Interval, error)
	Create(ctx context.Context, req storage.CreateRequest) (storage.CreateResult, error)
	Replay(ctx context.Context, tenantID, key, requestHash string) (storage.CreateResult, bool, error)
	Get(ctx context.Context, tenantID, id string) (model.Appointment, error)
	List(ctx context.Context, tenantID string, f storage.ListFilter) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, tenantID, id string, to model.Status, payment model.PaymentStatus) (model.Appointment, bool, error)
	ReportPayment(ctx context.Context, tenantID, id string) (model.Appointment, bool, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ProfileCache holds rendered public tenant profiles by slug.
type ProfileCache interface {
	Get(ctx context.Context, slug string) ([]byte, bool)
	Set(ctx context.Context, slug string, body []byte)
}
