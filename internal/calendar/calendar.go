// Package calendar implements the booking-date policy: weekends are closed
// and past dates cannot be booked. Same-day booking is allowed.
package calendar

import (
	"time"

	"agendamed/internal/model"
)

// ParseDate parses an ISO YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(model.DateLayout, s)
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsBookable reports whether date can be offered for booking relative to
// today. The time components of both arguments are ignored.
func IsBookable(date, today time.Time) bool {
	if IsWeekend(date) {
		return false
	}
	return !dateOnly(date).Before(dateOnly(today))
}

// IsBookableString is IsBookable over an ISO date string. Unparseable
// dates are not bookable.
func IsBookableString(date string, today time.Time) bool {
	d, err := ParseDate(date)
	if err != nil {
		return false
	}
	return IsBookable(d, today)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
