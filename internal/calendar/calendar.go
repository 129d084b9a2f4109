package calendar

import (
	"time"
)

// WorkingHours is a daily [StartHour, EndHour) window in the clinic's location.
type WorkingHours struct {
	StartHour int
	EndHour   int
}

func (w WorkingHours) valid() bool {
	return w.StartHour >= 0 && w.EndHour <= 24 && w.StartHour < w.EndHour
}

// DayBounds returns [00:00, next 00:00) of date in its own location.
func DayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

// AvailableSlots lists every slot start in the working window of date that is
// not already taken by an instant in booked. Only exact matches are excluded;
// booked instants that fall between grid points are ignored. The result is
// ascending and empty for invalid input.
func AvailableSlots(date time.Time, hours WorkingHours, step time.Duration, booked []time.Time) []time.Time {
	if step <= 0 || !hours.valid() {
		return []time.Time{}
	}

	taken := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		taken[b.UnixNano()] = struct{}{}
	}

	// Wall-clock bounds, so DST transition days keep the configured hours.
	y, m, d := date.Date()
	loc := date.Location()
	start := time.Date(y, m, d, hours.StartHour, 0, 0, 0, loc)
	end := time.Date(y, m, d, hours.EndHour, 0, 0, 0, loc)

	slots := make([]time.Time, 0, int(end.Sub(start)/step))
	for t := start; t.Before(end); t = t.Add(step) {
		if _, ok := taken[t.UnixNano()]; ok {
			continue
		}
		slots = append(slots, t)
	}

	return slots
}
