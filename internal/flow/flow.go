// Package flow sequences the booking steps: pick a date, pick a time, fill
// the contact form. It delegates every availability and persistence decision
// to the store and is testable without any rendering layer.
package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agendamed/internal/calendar"
	"agendamed/internal/model"
)

// Step represents the current state of the booking flow.
type Step string

const (
	StepChoosingDate Step = "choosing_date"
	StepChoosingTime Step = "choosing_time"
	StepFillingForm  Step = "filling_form"
)

// transitions holds the allowed forward and backward moves.
var transitions = map[Step][]Step{
	StepChoosingDate: {StepChoosingTime},
	StepChoosingTime: {StepFillingForm, StepChoosingDate},
	StepFillingForm:  {StepChoosingDate, StepChoosingTime},
}

// CanTransition checks if a move between steps is allowed.
func CanTransition(from, to Step) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrNotInFormStep is returned when Submit is called outside FillingForm.
var ErrNotInFormStep = errors.New("flow: no completed selection to submit")

// Submitter is the store-side contract the flow depends on.
type Submitter interface {
	Create(ctx context.Context, draft model.Draft) (*model.Appointment, error)
}

// Form carries the contact fields entered in the last step.
type Form struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
}

// Controller is the finite-state booking sequencer. One controller serves
// one interactive session.
type Controller struct {
	mu       sync.Mutex
	step     Step
	date     string
	timeSlot string

	// generation increments on every navigation; a deferred submission
	// started under an older generation must not apply its result.
	generation uint64

	store  Submitter
	delay  time.Duration
	logger zerolog.Logger

	// Overridable in tests.
	today func() time.Time
}

// New creates a controller at the date-selection step. delay is the
// simulated submission delay; zero submits immediately.
func New(store Submitter, delay time.Duration, logger *zerolog.Logger) *Controller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Controller{
		step:   StepChoosingDate,
		store:  store,
		delay:  delay,
		logger: logger.With().Str("component", "flow").Logger(),
		today:  time.Now,
	}
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Selection returns the currently chosen date and time, either may be empty.
func (c *Controller) Selection() (date, timeSlot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date, c.timeSlot
}

// SelectDate advances to time selection. Picking a non-bookable date is a
// no-op and returns false.
func (c *Controller) SelectDate(date string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepChoosingDate {
		return false
	}
	if !calendar.IsBookableString(date, c.today()) {
		c.logger.Debug().Str("date", date).Msg("non-bookable date ignored")
		return false
	}

	c.date = date
	c.timeSlot = ""
	c.advance(StepChoosingTime)
	return true
}

// SelectTime advances to the form step.
func (c *Controller) SelectTime(timeSlot string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepChoosingTime {
		return false
	}

	c.timeSlot = timeSlot
	c.advance(StepFillingForm)
	return true
}

// Back moves to the immediately prior step, clearing downstream selections.
// At the first step it is a no-op.
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.step {
	case StepFillingForm:
		c.timeSlot = ""
		c.advance(StepChoosingTime)
	case StepChoosingTime:
		c.date = ""
		c.timeSlot = ""
		c.advance(StepChoosingDate)
	}
}

// Reset returns the flow to date selection and clears all selections.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Submit creates the appointment from the current selection and form,
// synchronously. On success the flow resets to date selection.
func (c *Controller) Submit(ctx context.Context, form Form) (*model.Appointment, error) {
	c.mu.Lock()
	if c.step != StepFillingForm {
		c.mu.Unlock()
		return nil, ErrNotInFormStep
	}
	draft := c.draft(form)
	gen := c.generation
	c.mu.Unlock()

	apt, err := c.store.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.reset()
	}
	c.mu.Unlock()
	return apt, nil
}

// SubmitDeferred waits the configured delay, then creates the appointment.
// Navigating away before the delay resolves cancels the submission; if the
// store call is already in flight it runs to completion but its result is
// not applied to the torn-down flow state (done is not invoked).
func (c *Controller) SubmitDeferred(ctx context.Context, form Form, done func(*model.Appointment, error)) error {
	c.mu.Lock()
	if c.step != StepFillingForm {
		c.mu.Unlock()
		return ErrNotInFormStep
	}
	draft := c.draft(form)
	gen := c.generation
	c.mu.Unlock()

	go func() {
		if c.delay > 0 {
			timer := time.NewTimer(c.delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}

		// Navigated away before the delay resolved: cancel without
		// touching the store.
		if c.staleSince(gen) {
			c.logger.Debug().Msg("deferred submission cancelled by navigation")
			return
		}

		apt, err := c.store.Create(ctx, draft)

		c.mu.Lock()
		stale := c.generation != gen
		if !stale && err == nil {
			c.reset()
		}
		c.mu.Unlock()

		if stale {
			c.logger.Debug().Msg("deferred submission completed after navigation, dropping result")
			return
		}
		if done != nil {
			done(apt, err)
		}
	}()
	return nil
}

func (c *Controller) draft(form Form) model.Draft {
	return model.Draft{
		Name:    form.Name,
		Email:   form.Email,
		Phone:   form.Phone,
		Service: form.Service,
		Date:    c.date,
		Time:    c.timeSlot,
		Status:  model.StatusConfirmed,
	}
}

func (c *Controller) staleSince(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

// advance moves to the next step. Callers hold c.mu and have already
// validated the move against the transition table.
func (c *Controller) advance(to Step) {
	c.step = to
	c.generation++
}

func (c *Controller) reset() {
	c.date = ""
	c.timeSlot = ""
	c.advance(StepChoosingDate)
}
