package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"agendamed/internal/flow"
	"agendamed/internal/metrics"
)

// flowStateResponse mirrors the step wizard: current step plus the
// selections made so far.
type flowStateResponse struct {
	Step     flow.Step `json:"step"`
	Date     string    `json:"date,omitempty"`
	Time     string    `json:"time,omitempty"`
	Accepted bool      `json:"accepted"`
}

func (s *Server) flowState(accepted bool) flowStateResponse {
	date, timeSlot := s.flow.Selection()
	return flowStateResponse{
		Step:     s.flow.Step(),
		Date:     date,
		Time:     timeSlot,
		Accepted: accepted,
	}
}

// handleFlowState returns the wizard's current position.
// GET /api/flow
func (s *Server) handleFlowState(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("flow_state")
	writeJSON(w, http.StatusOK, s.flowState(true))
}

// handleFlowDate picks a date. A non-bookable date is a no-op: the flow
// stays where it is and accepted is false.
// POST /api/flow/date
func (s *Server) handleFlowDate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("flow_date")

	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	accepted := s.flow.SelectDate(req.Date)
	writeJSON(w, http.StatusOK, s.flowState(accepted))
}

// handleFlowTime picks a time slot.
// POST /api/flow/time
func (s *Server) handleFlowTime(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("flow_time")

	var req struct {
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	accepted := s.flow.SelectTime(req.Time)
	writeJSON(w, http.StatusOK, s.flowState(accepted))
}

// handleFlowBack steps back, clearing downstream selections.
// POST /api/flow/back
func (s *Server) handleFlowBack(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("flow_back")
	s.flow.Back()
	writeJSON(w, http.StatusOK, s.flowState(true))
}

// handleFlowSubmit submits the contact form for the current selection. On
// success the flow resets and the new appointment is returned.
// POST /api/flow/submit
func (s *Server) handleFlowSubmit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("flow_submit")

	var form flow.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	apt, err := s.flow.Submit(r.Context(), form)
	if err != nil {
		if errors.Is(err, flow.ErrNotInFormStep) {
			writeError(w, http.StatusConflict, "no completed selection to submit")
			return
		}
		s.writeStoreError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), apt.Date)
	writeJSON(w, http.StatusCreated, apt)
}
