package finance

import (
	"testing"
	"time"
)

func at(day, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
}

func sample() []Appointment {
	return []Appointment{
		{ID: "1", ServiceID: "s1", ServiceName: "Corte", StaffID: "p1", StaffName: "Zé", StartsAt: at(10, 9, 0), Status: StatusCompleted, TotalCents: 4500},
		{ID: "2", ServiceID: "s2", ServiceName: "Barba", StaffID: "p1", StaffName: "Zé", StartsAt: at(10, 14, 0), Status: StatusConfirmed, TotalCents: 3000},
		{ID: "3", ServiceID: "s1", ServiceName: "Corte", StaffID: "p2", StaffName: "Lu", StartsAt: at(10, 11, 0), Status: StatusPending, TotalCents: 4500},
		{ID: "4", ServiceID: "s1", ServiceName: "Corte", StaffID: "p2", StaffName: "Lu", StartsAt: at(10, 16, 0), Status: StatusCancelled, TotalCents: 4500},
		{ID: "5", ServiceID: "s1", ServiceName: "Corte", StaffID: "p2", StaffName: "Lu", StartsAt: at(3, 10, 0), Status: StatusCompleted, TotalCents: 5000},
	}
}

func TestSummarize(t *testing.T) {
	d := Summarize(sample(), at(10, 0, 0), at(10, 12, 0))

	if d.TodayCount != 4 || d.MonthCount != 4 {
		t.Fatalf("counts: today=%d month=%d", d.TodayCount, d.MonthCount)
	}
	if d.TodayByStatus[StatusCancelled] != 1 || d.TodayByStatus[StatusCompleted] != 1 {
		t.Fatalf("by status: %+v", d.TodayByStatus)
	}
	if d.RevenueTodayCents != 4500 || d.RevenueMonthCents != 9500 {
		t.Fatalf("revenue: today=%d month=%d", d.RevenueTodayCents, d.RevenueMonthCents)
	}
	if d.ExpectedRevenueCents != 7500 {
		t.Fatalf("expected revenue = %d", d.ExpectedRevenueCents)
	}
	// 11:00 is before now; only 14:00 remains upcoming.
	if len(d.Upcoming) != 1 || d.Upcoming[0].Time != "14:00" {
		t.Fatalf("upcoming: %+v", d.Upcoming)
	}
}

func TestSummarizeUpcomingKeepsEarlyCompleted(t *testing.T) {
	month := []Appointment{
		{ID: "a", StartsAt: at(10, 15, 0), Status: StatusCompleted, TotalCents: 4500},
		{ID: "b", StartsAt: at(10, 13, 0), Status: StatusPending, TotalCents: 3000},
		{ID: "c", StartsAt: at(10, 16, 0), Status: StatusCancelled, TotalCents: 4500},
	}
	d := Summarize(month, at(10, 0, 0), at(10, 12, 0))
	if len(d.Upcoming) != 2 || d.Upcoming[0].AppointmentID != "b" || d.Upcoming[1].AppointmentID != "a" {
		t.Fatalf("upcoming: %+v", d.Upcoming)
	}
	if d.Upcoming[1].Status != StatusCompleted {
		t.Fatalf("status = %s", d.Upcoming[1].Status)
	}
}

func TestBuildReport(t *testing.T) {
	r := BuildReport(sample(), at(1, 0, 0), at(31, 0, 0))

	if len(r.ByDay) != 31 {
		t.Fatalf("expected 31 days, got %d", len(r.ByDay))
	}
	if r.ByDay[9].Date != "2026-03-10" || r.ByDay[9].RevenueCents != 4500 || r.ByDay[9].Count != 1 {
		t.Fatalf("day 10: %+v", r.ByDay[9])
	}
	if r.RevenueCents != 9500 || r.CompletedCount != 2 || r.CancelledCount != 1 || r.TotalCount != 5 {
		t.Fatalf("totals: %+v", r)
	}
	if r.AverageTicketCents != 4750 {
		t.Fatalf("average ticket = %d", r.AverageTicketCents)
	}
	if r.CancellationRate != 0.2 {
		t.Fatalf("cancellation rate = %v", r.CancellationRate)
	}
	if len(r.ByService) != 1 || r.ByService[0].Name != "Corte" || r.ByService[0].Count != 2 {
		t.Fatalf("by service: %+v", r.ByService)
	}
	if len(r.ByStaff) != 2 || r.ByStaff[0].Name != "Lu" {
		t.Fatalf("by staff: %+v", r.ByStaff)
	}
}

func TestBuildReportEmpty(t *testing.T) {
	r := BuildReport(nil, at(1, 0, 0), at(1, 0, 0))
	if len(r.ByDay) != 1 || r.AverageTicketCents != 0 || r.CancellationRate != 0 {
		t.Fatalf("unexpected empty report: %+v", r)
	}
}
