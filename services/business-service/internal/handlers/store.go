package handlers

import (
	"context"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/barberflow/barberflow/services/business-service/internal/finance"
	"github.com/barberflow/barberflow/services/business-service/internal/storage"
)

// Store is what the admin console handlers need from storage.Repository.
type Store interface {
	ListServices(ctx context.Context, tenantID string) ([]storage.Service, error)
	GetService(ctx context.Context, tenantID, id string) (storage.Service, error)
	CreateService(ctx context.Context, s storage.Service) (storage.Service, error)
	UpdateService(ctx context.Context, s storage.Service) (storage.Service, error)
	DeleteService(ctx context.Context, tenantID, id string) error

	ListStaff(ctx context.Context, tenantID string) ([]storage.Staff, error)
	GetStaff(ctx context.Context, tenantID, id string) (storage.Staff, error)
	CreateStaff(ctx context.Context, s storage.Staff) (storage.Staff, error)
	UpdateStaff(ctx context.Context, s storage.Staff) (storage.Staff, error)
	DeleteStaff(ctx context.Context, tenantID, id string) error

	GetSettings(ctx context.Context, tenantID string) (storage.Settings, error)
	UpdateSettings(ctx context.Context, s storage.Settings, evt audit.Event) (storage.Settings, error)
	SetLogo(ctx context.Context, tenantID, key string) error
	Limits(ctx context.Context, tenantID string) (entitlements.Limits, error)
	BusinessHours(ctx context.Context, tenantID string) ([]storage.Hours, error)
	ReplaceBusinessHours(ctx context.Context, tenantID string, hours []storage.Hours) error

	AppointmentsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]finance.Appointment, error)
	ActiveCounts(ctx context.Context, tenantID string) (services, staff int, err error)
}
