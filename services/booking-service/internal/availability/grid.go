package availability

import (
	"errors"
	"fmt"
	"time"
)

const (
	// SlotStep is the spacing of the bookable grid.
	SlotStep = 30 * time.Minute

	DefaultOpenMinute  = 9 * 60
	DefaultCloseMinute = 19 * 60

	// MaxDaysAhead bounds how far in the future slots may be queried.
	MaxDaysAhead = 90
)

var ErrInvalidLabel = errors.New("invalid time label")

// Hours are the opening hours of a single day, in minutes from local midnight.
type Hours struct {
	IsOpen      bool
	OpenMinute  int
	CloseMinute int
}

// DefaultHours apply to weekdays without a configured row.
func DefaultHours() Hours {
	return Hours{IsOpen: true, OpenMinute: DefaultOpenMinute, CloseMinute: DefaultCloseMinute}
}

// Grid lists every half-hour start label in [open, close).
func Grid(h Hours) []string {
	if !h.IsOpen || h.CloseMinute <= h.OpenMinute {
		return nil
	}
	step := int(SlotStep / time.Minute)
	first := (h.OpenMinute + step - 1) / step * step
	var labels []string
	for m := first; m < h.CloseMinute; m += step {
		labels = append(labels, Label(m))
	}
	return labels
}

// Label renders minutes from midnight as "HH:MM".
func Label(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseLabel parses "HH:MM" into minutes from midnight.
func ParseLabel(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, ErrInvalidLabel
	}
	return t.Hour()*60 + t.Minute(), nil
}

// OnGrid reports whether a booking of duration at minute starts on the grid
// and finishes by closing time.
func OnGrid(h Hours, minute int, duration time.Duration) bool {
	if !h.IsOpen || minute < h.OpenMinute {
		return false
	}
	if minute%int(SlotStep/time.Minute) != 0 {
		return false
	}
	return minute+int(duration/time.Minute) <= h.CloseMinute
}

// At returns the instant of minute on day's calendar date in loc.
func At(day time.Time, minute int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, loc)
}

// DaySlots returns the grid labels of day that can hold duration without
// overlapping busy and that do not start before now.
func DaySlots(day time.Time, loc *time.Location, h Hours, duration time.Duration, busy []Interval, now time.Time) []string {
	if !h.IsOpen {
		return []string{}
	}
	windowStart := At(day, h.OpenMinute, loc)
	if rem := h.OpenMinute % int(SlotStep/time.Minute); rem != 0 {
		windowStart = windowStart.Add(SlotStep - time.Duration(rem)*time.Minute)
	}
	windowEnd := At(day, h.CloseMinute, loc)

	starts := AvailableSlots(windowStart, windowEnd, duration, SlotStep, busy, now)
	labels := make([]string, 0, len(starts))
	for _, s := range starts {
		labels = append(labels, s.In(loc).Format("15:04"))
	}
	return labels
}
