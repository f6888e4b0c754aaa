package storage

import (
	"context"
	"time"

	"github.com/barberflow/barberflow/services/business-service/internal/finance"
)

// AppointmentsBetween returns appointments starting in [from, to), all
// statuses included.
func (r *Repository) AppointmentsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]finance.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.service_id::text, s.name, a.staff_id::text, st.name,
			a.client_name, a.starts_at, a.status, a.total_cents
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		JOIN staff st ON st.id = a.staff_id
		WHERE a.tenant_id = $1 AND a.starts_at >= $2 AND a.starts_at < $3
		ORDER BY a.starts_at ASC
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []finance.Appointment
	for rows.Next() {
		var a finance.Appointment
		if err := rows.Scan(&a.ID, &a.ServiceID, &a.ServiceName, &a.StaffID, &a.StaffName,
			&a.ClientName, &a.StartsAt, &a.Status, &a.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) ActiveCounts(ctx context.Context, tenantID string) (services, staff int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM services WHERE tenant_id = $1 AND is_active),
			(SELECT COUNT(*) FROM staff WHERE tenant_id = $1 AND is_active)
	`, tenantID).Scan(&services, &staff)
	return services, staff, err
}
