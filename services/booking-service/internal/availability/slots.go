// Package availability derives bookable times from business hours and
// existing appointments.
package availability

import "time"

// Interval is the half-open range [Start, End) an appointment holds.
type Interval struct {
	Start time.Time
	End   time.Time
}

// AvailableSlots walks [opensAt, closesAt) in steps and keeps every start
// where an appointment of length duration ends by closing, has not started
// before now and overlaps no busy interval. Times share one location.
func AvailableSlots(opensAt, closesAt time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 || !closesAt.After(opensAt) {
		return nil
	}

	var slots []time.Time
	for start := opensAt; !start.Add(duration).After(closesAt); start = start.Add(step) {
		if start.Before(now) || overlapsAny(start, start.Add(duration), busy) {
			continue
		}
		slots = append(slots, start)
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
