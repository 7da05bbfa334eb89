// Package apperr defines the typed error conditions the booking engine
// surfaces to its callers. All of them are locally recoverable.
package apperr

import (
	"errors"
	"fmt"
)

// ErrStorageCorrupt signals that the persisted appointment data could not
// be decoded. Callers recover by starting from an empty collection.
var ErrStorageCorrupt = errors.New("stored appointment data is corrupt")

// ValidationError reports a malformed or missing intake field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// SlotConflict reports that the requested (date, time) pair is already
// occupied by a non-cancelled appointment.
type SlotConflict struct {
	Date string
	Time string
}

func (e *SlotConflict) Error() string {
	return fmt.Sprintf("slot %s %s is already booked", e.Date, e.Time)
}

// NotFound reports that no appointment matches the given id.
type NotFound struct {
	ID string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("appointment %s not found", e.ID)
}
