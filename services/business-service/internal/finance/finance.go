// Package finance aggregates appointments into the admin dashboard and the
// finance report. Revenue only counts completed appointments.
package finance

import (
	"sort"
	"time"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Appointment is the reporting projection of an appointment row.
type Appointment struct {
	ID          string
	ServiceID   string
	ServiceName string
	StaffID     string
	StaffName   string
	ClientName  string
	StartsAt    time.Time
	Status      string
	TotalCents  int64
}

type UpcomingItem struct {
	AppointmentID string `json:"appointment_id"`
	Time          string `json:"time"`
	ClientName    string `json:"client_name"`
	ServiceName   string `json:"service_name"`
	StaffName     string `json:"staff_name"`
	Status        string `json:"status"`
}

type Dashboard struct {
	Date                 string         `json:"date"`
	TodayCount           int            `json:"today_count"`
	TodayByStatus        map[string]int `json:"today_by_status"`
	MonthCount           int            `json:"month_count"`
	RevenueTodayCents    int64          `json:"revenue_today_cents"`
	RevenueMonthCents    int64          `json:"revenue_month_cents"`
	ExpectedRevenueCents int64          `json:"expected_revenue_cents"`
	Upcoming             []UpcomingItem `json:"upcoming"`
	ActiveServices       int            `json:"active_services"`
	ActiveStaff          int            `json:"active_staff"`
}

// Summarize builds the dashboard for day from the month's appointments.
// day and now must be in the tenant's location.
func Summarize(month []Appointment, day, now time.Time) Dashboard {
	d := Dashboard{
		Date:          day.Format("2006-01-02"),
		TodayByStatus: map[string]int{StatusPending: 0, StatusConfirmed: 0, StatusCompleted: 0, StatusCancelled: 0},
		Upcoming:      []UpcomingItem{},
	}
	loc := day.Location()
	dayKey := d.Date

	for _, a := range month {
		local := a.StartsAt.In(loc)
		if a.Status != StatusCancelled {
			d.MonthCount++
		}
		switch a.Status {
		case StatusCompleted:
			d.RevenueMonthCents += a.TotalCents
		case StatusPending, StatusConfirmed:
			d.ExpectedRevenueCents += a.TotalCents
		}

		if local.Format("2006-01-02") != dayKey {
			continue
		}
		d.TodayCount++
		d.TodayByStatus[a.Status]++
		if a.Status == StatusCompleted {
			d.RevenueTodayCents += a.TotalCents
		}
		if a.Status != StatusCancelled && !local.Before(now) {
			d.Upcoming = append(d.Upcoming, UpcomingItem{
				AppointmentID: a.ID,
				Time:          local.Format("15:04"),
				ClientName:    a.ClientName,
				ServiceName:   a.ServiceName,
				StaffName:     a.StaffName,
				Status:        a.Status,
			})
		}
	}
	sort.SliceStable(d.Upcoming, func(i, j int) bool { return d.Upcoming[i].Time < d.Upcoming[j].Time })
	return d
}

type DayTotal struct {
	Date         string `json:"date"`
	Count        int    `json:"count"`
	RevenueCents int64  `json:"revenue_cents"`
}

type Breakdown struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Count        int    `json:"count"`
	RevenueCents int64  `json:"revenue_cents"`
}

type Report struct {
	From               string      `json:"from"`
	To                 string      `json:"to"`
	TotalCount         int         `json:"total_count"`
	CompletedCount     int         `json:"completed_count"`
	CancelledCount     int         `json:"cancelled_count"`
	RevenueCents       int64       `json:"revenue_cents"`
	AverageTicketCents int64       `json:"average_ticket_cents"`
	CancellationRate   float64     `json:"cancellation_rate"`
	ByDay              []DayTotal  `json:"by_day"`
	ByService          []Breakdown `json:"by_service"`
	ByStaff            []Breakdown `json:"by_staff"`
}

// BuildReport aggregates appointments in the inclusive local date range
// [from, to]. ByDay lists every day of the range, including empty ones.
func BuildReport(appts []Appointment, from, to time.Time) Report {
	loc := from.Location()
	r := Report{
		From:      from.Format("2006-01-02"),
		To:        to.Format("2006-01-02"),
		ByDay:     []DayTotal{},
		ByService: []Breakdown{},
		ByStaff:   []Breakdown{},
	}

	dayIndex := map[string]int{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		dayIndex[key] = len(r.ByDay)
		r.ByDay = append(r.ByDay, DayTotal{Date: key})
	}

	services := map[string]*Breakdown{}
	staff := map[string]*Breakdown{}
	for _, a := range appts {
		r.TotalCount++
		switch a.Status {
		case StatusCancelled:
			r.CancelledCount++
			continue
		case StatusCompleted:
		default:
			continue
		}

		r.CompletedCount++
		r.RevenueCents += a.TotalCents
		if i, ok := dayIndex[a.StartsAt.In(loc).Format("2006-01-02")]; ok {
			r.ByDay[i].Count++
			r.ByDay[i].RevenueCents += a.TotalCents
		}
		add(services, a.ServiceID, a.ServiceName, a.TotalCents)
		add(staff, a.StaffID, a.StaffName, a.TotalCents)
	}

	if r.CompletedCount > 0 {
		r.AverageTicketCents = r.RevenueCents / int64(r.CompletedCount)
	}
	if r.TotalCount > 0 {
		r.CancellationRate = float64(r.CancelledCount) / float64(r.TotalCount)
	}
	r.ByService = sorted(services)
	r.ByStaff = sorted(staff)
	return r
}

func add(m map[string]*Breakdown, id, name string, cents int64) {
	b, ok := m[id]
	if !ok {
		b = &Breakdown{ID: id, Name: name}
		m[id] = b
	}
	b.Count++
	b.RevenueCents += cents
}

// sorted orders by revenue, highest first, then by name.
func sorted(m map[string]*Breakdown) []Breakdown {
	out := make([]Breakdown, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RevenueCents != out[j].RevenueCents {
			return out[i].RevenueCents > out[j].RevenueCents
		}
		return out[i].Name < out[j].Name
	})
	return out
}
