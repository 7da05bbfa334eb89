// Package store owns the durable appointment collection. All mutations go
// through it; each one re-checks the invariants against the live snapshot
// and persists the whole collection before returning.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agendamed/internal/apperr"
	"agendamed/internal/calendar"
	"agendamed/internal/events"
	"agendamed/internal/metrics"
	"agendamed/internal/model"
	"agendamed/internal/slots"
	"agendamed/internal/storage"
)

// EventPublisher publishes domain events after successful mutations.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Patch carries the fields of a partial update. Nil fields are left as-is.
type Patch struct {
	Name    *string       `json:"name,omitempty"`
	Email   *string       `json:"email,omitempty"`
	Phone   *string       `json:"phone,omitempty"`
	Service *string       `json:"service,omitempty"`
	Date    *string       `json:"date,omitempty"`
	Time    *string       `json:"time,omitempty"`
	Status  *model.Status `json:"status,omitempty"`
}

// Store is the single owner of the appointment collection.
type Store struct {
	mu           sync.Mutex
	db           *storage.DB
	bus          EventPublisher
	logger       zerolog.Logger
	template     []model.TimeSlot
	services     []string
	appointments []model.Appointment

	// Overridable in tests.
	now   func() time.Time
	newID func() string
}

// New creates a store. Load must be called before serving operations.
func New(db *storage.DB, template []model.TimeSlot, services []string, bus EventPublisher, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{
		db:       db,
		bus:      bus,
		logger:   logger.With().Str("component", "store").Logger(),
		template: template,
		services: services,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Load rehydrates the collection from the durable slot. Corrupt data is
// logged and treated as an empty collection, never as a fatal error.
func (s *Store) Load(ctx context.Context) error {
	appointments, err := s.db.LoadAppointments(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrStorageCorrupt) {
			return err
		}
		metrics.IncStorageCorrupt()
		s.logger.Warn().Err(err).Msg("stored appointments unreadable, starting empty")
		appointments = nil
	}

	s.mu.Lock()
	s.appointments = appointments
	s.mu.Unlock()

	s.logger.Info().Int("count", len(appointments)).Msg("appointments loaded")
	return nil
}

// List returns a copy of the current snapshot. Order is insertion order;
// callers sort for display.
func (s *Store) List(ctx context.Context) []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Appointment(nil), s.appointments...)
}

// GetByDate returns the appointments on the given date, any status.
func (s *Store) GetByDate(ctx context.Context, date string) []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Appointment
	for _, apt := range s.appointments {
		if apt.Date == date {
			result = append(result, apt)
		}
	}
	return result
}

// Availability resolves the slot template against the live snapshot.
func (s *Store) Availability(ctx context.Context, date string) []model.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slots.Resolve(date, s.template, s.appointments)
}

// Create validates the draft, enforces the calendar policy and the
// one-active-appointment-per-slot invariant, then appends and persists.
func (s *Store) Create(ctx context.Context, draft model.Draft) (*model.Appointment, error) {
	if draft.Status == "" {
		draft.Status = model.StatusConfirmed
	}

	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Conflict check always runs against the latest snapshot, re-derived
	// through the resolver.
	if draft.Status != model.StatusCancelled && !s.slotFree(draft.Date, draft.Time, "") {
		metrics.IncSlotConflict()
		s.logger.Info().Str("date", draft.Date).Str("time", draft.Time).Msg("slot conflict on create")
		return nil, &apperr.SlotConflict{Date: draft.Date, Time: draft.Time}
	}

	apt := model.Appointment{
		ID:        s.newID(),
		Name:      draft.Name,
		Email:     draft.Email,
		Phone:     draft.Phone,
		Service:   draft.Service,
		Date:      draft.Date,
		Time:      draft.Time,
		Status:    draft.Status,
		CreatedAt: s.now().Format(time.RFC3339),
	}

	s.appointments = append(s.appointments, apt)
	if err := s.db.SaveAppointments(ctx, s.appointments); err != nil {
		s.appointments = s.appointments[:len(s.appointments)-1]
		return nil, fmt.Errorf("persist appointments: %w", err)
	}

	metrics.IncAppointmentCreated(string(apt.Status))
	s.publish(events.TypeAppointmentCreated, apt)
	s.logger.Info().
		Str("id", apt.ID).
		Str("date", apt.Date).
		Str("time", apt.Time).
		Str("service", apt.Service).
		Msg("appointment created")

	result := apt
	return &result, nil
}

// Update merges patch into the appointment matching id. Changing the date
// or time, or reactivating a cancelled appointment, re-runs the conflict
// check excluding the record itself.
func (s *Store) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return &apperr.NotFound{ID: id}
	}

	prev := s.appointments[idx]
	merged := prev
	applyPatch(&merged, patch)

	if err := s.validateMerged(prev, merged); err != nil {
		return err
	}

	slotChanged := merged.Date != prev.Date || merged.Time != prev.Time
	reactivated := !prev.IsActive() && merged.IsActive()
	if (slotChanged || reactivated) && merged.IsActive() && !s.slotFree(merged.Date, merged.Time, id) {
		metrics.IncSlotConflict()
		s.logger.Info().Str("id", id).Str("date", merged.Date).Str("time", merged.Time).Msg("slot conflict on update")
		return &apperr.SlotConflict{Date: merged.Date, Time: merged.Time}
	}

	s.appointments[idx] = merged
	if err := s.db.SaveAppointments(ctx, s.appointments); err != nil {
		s.appointments[idx] = prev
		return fmt.Errorf("persist appointments: %w", err)
	}

	if prev.IsActive() && merged.Status == model.StatusCancelled {
		metrics.IncAppointmentCancelled()
		s.publish(events.TypeAppointmentCancelled, merged)
	} else {
		s.publish(events.TypeAppointmentUpdated, merged)
	}
	s.logger.Info().Str("id", id).Str("status", string(merged.Status)).Msg("appointment updated")
	return nil
}

// Delete removes the appointment matching id. Deletion is idempotent: a
// missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		s.logger.Debug().Str("id", id).Msg("delete of absent appointment, ignoring")
		return nil
	}

	removed := s.appointments[idx]
	rest := append([]model.Appointment(nil), s.appointments[:idx]...)
	rest = append(rest, s.appointments[idx+1:]...)

	prevAll := s.appointments
	s.appointments = rest
	if err := s.db.SaveAppointments(ctx, s.appointments); err != nil {
		s.appointments = prevAll
		return fmt.Errorf("persist appointments: %w", err)
	}

	s.publish(events.TypeAppointmentDeleted, removed)
	s.logger.Info().Str("id", id).Msg("appointment deleted")
	return nil
}

func (s *Store) validateDraft(draft model.Draft) error {
	if err := draft.Validate(s.services); err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			metrics.IncValidationRejected(ve.Field)
		}
		return err
	}
	// Upstream disables weekend and past dates, but the store never trusts
	// upstream-only validation.
	if !calendar.IsBookableString(draft.Date, s.now()) {
		metrics.IncValidationRejected("date")
		return &apperr.ValidationError{Field: "date", Reason: "not a bookable date"}
	}
	if !slots.HasTime(s.template, draft.Time) {
		metrics.IncValidationRejected("time")
		return &apperr.ValidationError{Field: "time", Reason: "not an offered slot"}
	}
	return nil
}

func (s *Store) validateMerged(prev, merged model.Appointment) error {
	draft := model.Draft{
		Name:    merged.Name,
		Email:   merged.Email,
		Phone:   merged.Phone,
		Service: merged.Service,
		Date:    merged.Date,
		Time:    merged.Time,
		Status:  merged.Status,
	}
	if err := draft.Validate(s.services); err != nil {
		return err
	}
	// The calendar policy applies only to newly chosen dates; cancelling an
	// old appointment must not fail because its date has passed.
	if merged.Date != prev.Date && !calendar.IsBookableString(merged.Date, s.now()) {
		return &apperr.ValidationError{Field: "date", Reason: "not a bookable date"}
	}
	if merged.Time != prev.Time && !slots.HasTime(s.template, merged.Time) {
		return &apperr.ValidationError{Field: "time", Reason: "not an offered slot"}
	}
	return nil
}

// slotFree re-derives availability for date and reports whether t is open,
// ignoring the appointment with excludeID. Callers hold s.mu.
func (s *Store) slotFree(date, t, excludeID string) bool {
	snapshot := s.appointments
	if excludeID != "" {
		snapshot = make([]model.Appointment, 0, len(s.appointments))
		for _, apt := range s.appointments {
			if apt.ID != excludeID {
				snapshot = append(snapshot, apt)
			}
		}
	}
	for _, slot := range slots.Resolve(date, s.template, snapshot) {
		if slot.Time == t {
			return slot.Available
		}
	}
	return false
}

func (s *Store) indexOf(id string) int {
	for i := range s.appointments {
		if s.appointments[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) publish(eventType string, apt model.Appointment) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, apt); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish event")
	}
}

func applyPatch(apt *model.Appointment, patch Patch) {
	if patch.Name != nil {
		apt.Name = *patch.Name
	}
	if patch.Email != nil {
		apt.Email = *patch.Email
	}
	if patch.Phone != nil {
		apt.Phone = *patch.Phone
	}
	if patch.Service != nil {
		apt.Service = *patch.Service
	}
	if patch.Date != nil {
		apt.Date = *patch.Date
	}
	if patch.Time != nil {
		apt.Time = *patch.Time
	}
	if patch.Status != nil {
		apt.Status = *patch.Status
	}
}
