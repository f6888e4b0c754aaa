package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/barberflow/barberflow/services/business-service/internal/storage"
)

// Defaults match the booking grid when a weekday has no row.
const (
	defaultOpenMinute  = 9 * 60
	defaultCloseMinute = 19 * 60
)

type hoursEntry struct {
	Weekday int    `json:"weekday"`
	IsOpen  bool   `json:"is_open"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

func clockLabel(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// parseClock accepts "HH:MM" in 00:00..24:00.
func parseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 {
		return 0, false
	}
	minute := h*60 + m
	if minute > 24*60 {
		return 0, false
	}
	return minute, true
}

// weekHours returns all seven weekdays, filling missing rows with defaults.
func weekHours(rows []storage.Hours) []hoursEntry {
	out := make([]hoursEntry, 7)
	for wd := range out {
		out[wd] = hoursEntry{Weekday: wd, IsOpen: true, Open: clockLabel(defaultOpenMinute), Close: clockLabel(defaultCloseMinute)}
	}
	for _, h := range rows {
		if h.Weekday < 0 || h.Weekday > 6 {
			continue
		}
		out[h.Weekday] = hoursEntry{Weekday: h.Weekday, IsOpen: h.IsOpen, Open: clockLabel(h.OpenMinute), Close: clockLabel(h.CloseMinute)}
	}
	return out
}

func parseWeek(entries []hoursEntry) ([]storage.Hours, string) {
	if len(entries) != 7 {
		return nil, "hours must have 7 entries"
	}
	seen := [7]bool{}
	out := make([]storage.Hours, 0, 7)
	for _, e := range entries {
		if e.Weekday < 0 || e.Weekday > 6 || seen[e.Weekday] {
			return nil, "weekday must be 0..6 and unique"
		}
		seen[e.Weekday] = true

		h := storage.Hours{Weekday: e.Weekday, IsOpen: e.IsOpen, OpenMinute: defaultOpenMinute, CloseMinute: defaultCloseMinute}
		if e.Open != "" || e.IsOpen {
			open, ok := parseClock(e.Open)
			if !ok {
				return nil, "invalid open time for weekday " + strconv.Itoa(e.Weekday)
			}
			h.OpenMinute = open
		}
		if e.Close != "" || e.IsOpen {
			closeAt, ok := parseClock(e.Close)
			if !ok {
				return nil, "invalid close time for weekday " + strconv.Itoa(e.Weekday)
			}
			h.CloseMinute = closeAt
		}
		if h.IsOpen && h.OpenMinute >= h.CloseMinute {
			return nil, "open must be before close for weekday " + strconv.Itoa(e.Weekday)
		}
		out = append(out, h)
	}
	return out, ""
}

// Hours serves GET and PUT /api/v1/admin/settings/hours.
func (h *Handler) Hours(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req struct {
			Hours []hoursEntry `json:"hours"`
		}
		if !decodeJSON(r, &req) {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		week, msg := parseWeek(req.Hours)
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		if err := h.store.ReplaceBusinessHours(ctx, tenantID, week); err != nil {
			h.writeError(w, err, "save business hours")
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rows, err := h.store.BusinessHours(ctx, tenantID)
	if err != nil {
		h.writeError(w, err, "load business hours")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hours": weekHours(rows)})
}
