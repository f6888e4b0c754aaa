package availability

import (
	"reflect"
	"testing"
	"time"
)

func TestGridDefaultHours(t *testing.T) {
	labels := Grid(DefaultHours())
	if len(labels) != 20 {
		t.Fatalf("expected 20 labels, got %d", len(labels))
	}
	if labels[0] != "09:00" || labels[len(labels)-1] != "18:30" {
		t.Fatalf("unexpected bounds %s..%s", labels[0], labels[len(labels)-1])
	}
}

func TestGridClosedDay(t *testing.T) {
	if got := Grid(Hours{IsOpen: false, OpenMinute: 540, CloseMinute: 1140}); got != nil {
		t.Fatalf("expected nil grid, got %v", got)
	}
}

func TestGridRoundsOddOpening(t *testing.T) {
	labels := Grid(Hours{IsOpen: true, OpenMinute: 9*60 + 15, CloseMinute: 10*60 + 30})
	want := []string{"09:30", "10:00"}
	if !reflect.DeepEqual(labels, want) {
		t.Fatalf("got %v, want %v", labels, want)
	}
}

func TestParseLabel(t *testing.T) {
	m, err := ParseLabel("14:30")
	if err != nil || m != 870 {
		t.Fatalf("ParseLabel = %d, %v", m, err)
	}
	if _, err := ParseLabel("25:00"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOnGrid(t *testing.T) {
	h := DefaultHours()
	if !OnGrid(h, 18*60, 60*time.Minute) {
		t.Fatal("18:00 for 60m should fit")
	}
	if OnGrid(h, 18*60+30, 60*time.Minute) {
		t.Fatal("18:30 for 60m must not fit")
	}
	if OnGrid(h, 9*60+15, 30*time.Minute) {
		t.Fatal("09:15 is off grid")
	}
	if OnGrid(h, 8*60+30, 30*time.Minute) {
		t.Fatal("08:30 is before opening")
	}
}

func TestDaySlotsRemovesBookedTimes(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, loc)
	h := Hours{IsOpen: true, OpenMinute: 9 * 60, CloseMinute: 11 * 60}
	busy := []Interval{{Start: At(day, 9*60+30, loc), End: At(day, 10*60, loc)}}
	now := day.Add(-24 * time.Hour)

	got := DaySlots(day, loc, h, 30*time.Minute, busy, now)
	want := []string{"09:00", "10:00", "10:30"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got = DaySlots(day, loc, h, 60*time.Minute, busy, now)
	want = []string{"10:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("60m: got %v, want %v", got, want)
	}
}

func TestDaySlotsSkipsPastAndClosed(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	h := Hours{IsOpen: true, OpenMinute: 9 * 60, CloseMinute: 11 * 60}
	now := At(day, 10*60+5, time.UTC)

	got := DaySlots(day, time.UTC, h, 30*time.Minute, nil, now)
	if !reflect.DeepEqual(got, []string{"10:30"}) {
		t.Fatalf("got %v", got)
	}

	closed := DaySlots(day, time.UTC, Hours{}, 30*time.Minute, nil, now)
	if closed == nil || len(closed) != 0 {
		t.Fatalf("closed day should be an empty list, got %v", closed)
	}
}
