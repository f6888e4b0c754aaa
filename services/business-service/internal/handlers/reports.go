package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/services/business-service/internal/finance"
)

const maxReportDays = 366

func (h *Handler) location(r *http.Request, tenantID string) (*time.Location, error) {
	s, err := h.store.GetSettings(r.Context(), tenantID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

func parseDay(raw string, loc *time.Location) (time.Time, bool) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), loc)
	return d, err == nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Dashboard serves GET /api/v1/admin/dashboard?date=YYYY-MM-DD.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	loc, err := h.location(r, tenantID)
	if err != nil {
		h.writeError(w, err, "load tenant")
		return
	}
	now := h.now().In(loc)
	day := midnight(now)
	if raw := r.URL.Query().Get("date"); raw != "" {
		if day, ok = parseDay(raw, loc); !ok {
			http.Error(w, "invalid date (YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}

	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
	appts, err := h.store.AppointmentsBetween(ctx, tenantID, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		h.writeError(w, err, "load appointments")
		return
	}
	summary := finance.Summarize(appts, day, now)
	summary.ActiveServices, summary.ActiveStaff, err = h.store.ActiveCounts(ctx, tenantID)
	if err != nil {
		h.writeError(w, err, "count catalog")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Finance serves GET /api/v1/admin/finance?from=&to= with inclusive dates.
// Without a range it reports the current month up to today.
func (h *Handler) Finance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}

	loc, err := h.location(r, tenantID)
	if err != nil {
		h.writeError(w, err, "load tenant")
		return
	}
	today := midnight(h.now().In(loc))
	from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	to := today

	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if from, ok = parseDay(raw, loc); !ok {
			http.Error(w, "invalid from (YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, ok = parseDay(raw, loc); !ok {
			http.Error(w, "invalid to (YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}
	if to.After(from.AddDate(0, 0, maxReportDays-1)) {
		http.Error(w, "range too large (max 366 days)", http.StatusBadRequest)
		return
	}

	appts, err := h.store.AppointmentsBetween(r.Context(), tenantID, from, to.AddDate(0, 0, 1))
	if err != nil {
		h.writeError(w, err, "load appointments")
		return
	}
	writeJSON(w, http.StatusOK, finance.BuildReport(appts, from, to))
}
