package queue

import "time"

// Clock supplies the current wall-clock time. Injectable so day-boundary
// behavior is testable without sleeping across midnight.
type Clock func() time.Time

// DayOf reduces an instant to the calendar date it falls on in the given
// location. The result is a midnight-UTC value suitable for a DATE column
// and for Before/After comparisons between days.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
