// Package api exposes the booking engine over a small local HTTP JSON API.
// It is presentation only: every availability and persistence decision is
// delegated to the store.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"agendamed/internal/apperr"
	"agendamed/internal/cache"
	"agendamed/internal/export"
	"agendamed/internal/flow"
	"agendamed/internal/metrics"
	"agendamed/internal/model"
	"agendamed/internal/store"
)

// Server holds the API dependencies.
type Server struct {
	store    *store.Store
	template []model.TimeSlot
	flow     *flow.Controller
	cache    *cache.Availability
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// NewServer creates the API server. cache may be nil (caching disabled).
func NewServer(st *store.Store, template []model.TimeSlot, flowCtl *flow.Controller, availCache *cache.Availability, limiter *rate.Limiter, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		store:    st,
		template: template,
		flow:     flowCtl,
		cache:    availCache,
		limiter:  limiter,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/slots", s.handleSlots).Methods(http.MethodGet)
	r.HandleFunc("/api/availability", s.handleAvailability).Methods(http.MethodGet)
	r.HandleFunc("/api/appointments", s.handleListAppointments).Methods(http.MethodGet)
	r.HandleFunc("/api/appointments/export", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/api/appointments", s.rateLimited(s.handleCreateAppointment)).Methods(http.MethodPost)
	r.HandleFunc("/api/appointments/{id}", s.rateLimited(s.handleUpdateAppointment)).Methods(http.MethodPatch)
	r.HandleFunc("/api/appointments/{id}", s.rateLimited(s.handleDeleteAppointment)).Methods(http.MethodDelete)

	if s.flow != nil {
		r.HandleFunc("/api/flow", s.handleFlowState).Methods(http.MethodGet)
		r.HandleFunc("/api/flow/date", s.handleFlowDate).Methods(http.MethodPost)
		r.HandleFunc("/api/flow/time", s.handleFlowTime).Methods(http.MethodPost)
		r.HandleFunc("/api/flow/back", s.handleFlowBack).Methods(http.MethodPost)
		r.HandleFunc("/api/flow/submit", s.rateLimited(s.handleFlowSubmit)).Methods(http.MethodPost)
	}

	return r
}

// rateLimited guards mutating routes with the shared token bucket.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

// handleSlots returns the canonical slot template.
// GET /api/slots
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	writeJSON(w, http.StatusOK, map[string]any{"slots": s.template})
}

// handleAvailability resolves the template against the current snapshot.
// GET /api/availability?date=YYYY-MM-DD
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	if cached, ok := s.cache.Get(r.Context(), date); ok {
		writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": cached})
		return
	}

	resolved := s.store.Availability(r.Context(), date)
	s.cache.Set(r.Context(), date, resolved)
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": resolved})
}

// handleListAppointments returns appointments sorted by (date, time).
// GET /api/appointments[?date=YYYY-MM-DD]
func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_appointments")

	var appointments []model.Appointment
	if date := r.URL.Query().Get("date"); date != "" {
		appointments = s.store.GetByDate(r.Context(), date)
	} else {
		appointments = s.store.List(r.Context())
	}

	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].SortKey() < appointments[j].SortKey()
	})

	if appointments == nil {
		appointments = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appointments})
}

// handleCreateAppointment books a slot.
// POST /api/appointments
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_appointment")

	var draft model.Draft
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	apt, err := s.store.Create(r.Context(), draft)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), apt.Date)
	writeJSON(w, http.StatusCreated, apt)
}

// handleUpdateAppointment merges a partial update into an appointment.
// PATCH /api/appointments/{id}
func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_appointment")

	id := mux.Vars(r)["id"]

	var patch store.Patch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Remember dates whose availability the update may change.
	dates := s.datesOf(r, id)
	if patch.Date != nil {
		dates = append(dates, *patch.Date)
	}

	if err := s.store.Update(r.Context(), id, patch); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), dates...)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// handleDeleteAppointment removes an appointment. Idempotent.
// DELETE /api/appointments/{id}
func (s *Server) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_appointment")

	id := mux.Vars(r)["id"]
	dates := s.datesOf(r, id)

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), dates...)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleExport streams the appointment list as an Excel workbook.
// GET /api/appointments/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	appointments := s.store.List(r.Context())

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="agendamentos.xlsx"`)
	if err := export.WriteXLSX(w, appointments); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
	}
}

func (s *Server) datesOf(r *http.Request, id string) []string {
	for _, apt := range s.store.List(r.Context()) {
		if apt.ID == id {
			return []string{apt.Date}
		}
	}
	return nil
}

// writeStoreError maps the engine's typed error kinds onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": ve.Reason,
			"field": ve.Field,
			"kind":  "validation",
		})
		return
	}

	var sc *apperr.SlotConflict
	if errors.As(err, &sc) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "slot is already booked",
			"date":  sc.Date,
			"time":  sc.Time,
			"kind":  "slot_conflict",
		})
		return
	}

	var nf *apperr.NotFound
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "appointment not found",
			"id":    nf.ID,
			"kind":  "not_found",
		})
		return
	}

	s.logger.Error().Err(err).Msg("internal error")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
