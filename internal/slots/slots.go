// Package slots generates the canonical slot template for a working day and
// resolves which slots are free for a given date against the current
// appointment snapshot.
package slots

import (
	"fmt"

	"agendamed/internal/model"
)

// BusinessHours describes the daily schedule the template is built from.
// The same template applies to every weekday.
type BusinessHours struct {
	StartHour       int
	EndHour         int
	IntervalMinutes int
}

// Normalize fills in defaults for unset or nonsensical values.
func (h BusinessHours) Normalize() BusinessHours {
	if h.StartHour <= 0 {
		h.StartHour = 9
	}
	if h.EndHour <= h.StartHour {
		h.EndHour = 18
	}
	if h.IntervalMinutes <= 0 {
		h.IntervalMinutes = 30
	}
	return h
}

// Template generates all slots for a working day, ascending by time, each
// marked available. Pure and deterministic; the caller reuses the result
// across dates.
func Template(hours BusinessHours) []model.TimeSlot {
	hours = hours.Normalize()

	var result []model.TimeSlot
	for minutes := hours.StartHour * 60; minutes < hours.EndHour*60; minutes += hours.IntervalMinutes {
		result = append(result, model.TimeSlot{
			Time:      fmt.Sprintf("%02d:%02d", minutes/60, minutes%60),
			Available: true,
		})
	}
	return result
}

// HasTime reports whether t is a member of the template.
func HasTime(template []model.TimeSlot, t string) bool {
	for _, slot := range template {
		if slot.Time == t {
			return true
		}
	}
	return false
}

// Resolve marks each template slot unavailable when a non-cancelled
// appointment occupies that exact (date, time). The result always has the
// template's cardinality and order; only the Available flags differ.
// Calendar policy is not checked here.
func Resolve(date string, template []model.TimeSlot, snapshot []model.Appointment) []model.TimeSlot {
	booked := make(map[string]bool)
	for i := range snapshot {
		apt := &snapshot[i]
		if apt.Date == date && apt.IsActive() {
			booked[apt.Time] = true
		}
	}

	result := make([]model.TimeSlot, len(template))
	for i, slot := range template {
		result[i] = model.TimeSlot{
			Time:      slot.Time,
			Available: !booked[slot.Time],
		}
	}
	return result
}
