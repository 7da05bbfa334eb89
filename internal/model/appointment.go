package model

import (
	"regexp"
	"strings"
	"time"

	"agendamed/internal/apperr"
)

// Status of an appointment. New appointments are created as confirmed;
// pending is a supported status but no flow produces it.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusPending, StatusCancelled:
		return true
	}
	return false
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment is a booked or cancelled reservation.
type Appointment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Service   string `json:"service"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM
	Status    Status `json:"status"`
	CreatedAt string `json:"createdAt"` // RFC 3339, set once by the store
}

// IsActive reports whether the appointment occupies its slot.
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

// SortKey combines date and time for chronological ordering.
func (a *Appointment) SortKey() string {
	return a.Date + " " + a.Time
}

// TimeSlot is a candidate (time, available) pair. Derived, never persisted.
type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Draft carries the intake fields for a new appointment before the store
// assigns an id and creation timestamp.
type Draft struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Status  Status `json:"status"`
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks the draft's fields against the enumerated service set.
// Calendar policy and slot membership are enforced separately by the store.
func (d *Draft) Validate(services []string) error {
	if strings.TrimSpace(d.Name) == "" {
		return &apperr.ValidationError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(d.Email) == "" {
		return &apperr.ValidationError{Field: "email", Reason: "required"}
	}
	if !emailPattern.MatchString(d.Email) {
		return &apperr.ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if strings.TrimSpace(d.Phone) == "" {
		return &apperr.ValidationError{Field: "phone", Reason: "required"}
	}
	if d.Service == "" {
		return &apperr.ValidationError{Field: "service", Reason: "required"}
	}
	if !containsService(services, d.Service) {
		return &apperr.ValidationError{Field: "service", Reason: "unknown service"}
	}
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return &apperr.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	if _, err := time.Parse(TimeLayout, d.Time); err != nil {
		return &apperr.ValidationError{Field: "time", Reason: "expected HH:MM"}
	}
	if d.Status != "" && !d.Status.Valid() {
		return &apperr.ValidationError{Field: "status", Reason: "unknown status"}
	}
	return nil
}

func containsService(services []string, s string) bool {
	for _, svc := range services {
		if svc == s {
			return true
		}
	}
	return false
}
