package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"agendamed/internal/cache"
	"agendamed/internal/flow"
	"agendamed/internal/model"
	"agendamed/internal/slots"
	"agendamed/internal/storage"
	"agendamed/internal/store"
)

var testServices = []string{"Consulta Médica", "Exame de Rotina", "Retorno"}

// nextMonday keeps test dates bookable regardless of when the suite runs.
func nextMonday() string {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(model.DateLayout)
}

func newTestServer(t *testing.T, availCache *cache.Availability) *Server {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	template := slots.Template(slots.BusinessHours{StartHour: 9, EndHour: 18, IntervalMinutes: 30})
	st := store.New(db, template, testServices, nil, nil)
	require.NoError(t, st.Load(context.Background()))

	limiter := rate.NewLimiter(rate.Inf, 0)
	return NewServer(st, template, flow.New(st, 0, nil), availCache, limiter, nil)
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func validDraft() model.Draft {
	return model.Draft{
		Name:    "Maria Silva",
		Email:   "maria@example.com",
		Phone:   "(11) 99999-9999",
		Service: "Consulta Médica",
		Date:    nextMonday(),
		Time:    "09:00",
	}
}

func TestSlotsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Slots []model.TimeSlot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Slots, 18)
	assert.Equal(t, "09:00", resp.Slots[0].Time)
	assert.Equal(t, "17:30", resp.Slots[17].Time)
}

func TestCreateAndAvailability(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.Router()
	date := nextMonday()

	rec := doJSON(t, router, http.MethodPost, "/api/appointments", validDraft())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusConfirmed, created.Status)

	rec = doJSON(t, router, http.MethodGet, "/api/availability?date="+date, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var avail struct {
		Slots []model.TimeSlot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &avail))
	require.Len(t, avail.Slots, 18)
	for _, slot := range avail.Slots {
		if slot.Time == "09:00" {
			assert.False(t, slot.Available)
		} else {
			assert.True(t, slot.Available, "slot %s", slot.Time)
		}
	}
}

func TestCreateConflictResponse(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/appointments", validDraft())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/appointments", validDraft())
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "slot_conflict", resp["kind"])
	assert.Equal(t, nextMonday(), resp["date"])
	assert.Equal(t, "09:00", resp["time"])
}

func TestCreateValidationResponse(t *testing.T) {
	s := newTestServer(t, nil)

	draft := validDraft()
	draft.Email = "nope"

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/appointments", draft)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation", resp["kind"])
	assert.Equal(t, "email", resp["field"])
}

func TestListSortedByDateTime(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.Router()

	later := validDraft()
	later.Time = "14:00"
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/appointments", later).Code)

	earlier := validDraft()
	earlier.Time = "09:30"
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/appointments", earlier).Code)

	rec := doJSON(t, router, http.MethodGet, "/api/appointments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Appointments []model.Appointment `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Appointments, 2)
	assert.Equal(t, "09:30", resp.Appointments[0].Time)
	assert.Equal(t, "14:00", resp.Appointments[1].Time)
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/appointments", validDraft())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPatch, "/api/appointments/"+created.ID,
		map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPatch, "/api/appointments/missing",
		map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/appointments/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Deletion is idempotent.
	rec = doJSON(t, router, http.MethodDelete, "/api/appointments/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAvailabilityCacheInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := newTestServer(t, cache.New(rdb, time.Minute))
	router := s.Router()
	date := nextMonday()

	// Warm the cache.
	rec := doJSON(t, router, http.MethodGet, "/api/availability?date="+date, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A mutation must invalidate it.
	rec = doJSON(t, router, http.MethodPost, "/api/appointments", validDraft())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/availability?date="+date, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var avail struct {
		Slots []model.TimeSlot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &avail))
	for _, slot := range avail.Slots {
		if slot.Time == "09:00" {
			assert.False(t, slot.Available, "cache must not serve the stale slot set")
		}
	}
}

func TestRateLimit(t *testing.T) {
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	template := slots.Template(slots.BusinessHours{StartHour: 9, EndHour: 18, IntervalMinutes: 30})
	st := store.New(db, template, testServices, nil, nil)
	require.NoError(t, st.Load(context.Background()))

	s := NewServer(st, template, nil, nil, rate.NewLimiter(rate.Limit(1), 2), nil)
	router := s.Router()

	statuses := make(map[int]int)
	for i := 0; i < 5; i++ {
		draft := validDraft()
		draft.Time = fmt.Sprintf("%02d:00", 9+i)
		rec := doJSON(t, router, http.MethodPost, "/api/appointments", draft)
		statuses[rec.Code]++
	}

	assert.Positive(t, statuses[http.StatusTooManyRequests], "burst overflow must be limited")
	assert.Positive(t, statuses[http.StatusCreated], "within-burst requests still pass")

	// Read endpoints are never limited.
	rec := doJSON(t, router, http.MethodGet, "/api/appointments", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFlowEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.Router()
	date := nextMonday()

	type flowState struct {
		Step     string `json:"step"`
		Date     string `json:"date"`
		Time     string `json:"time"`
		Accepted bool   `json:"accepted"`
	}
	var state flowState
	readState := func(rec *httptest.ResponseRecorder) {
		t.Helper()
		state = flowState{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	}

	rec := doJSON(t, router, http.MethodGet, "/api/flow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	readState(rec)
	assert.Equal(t, "choosing_date", state.Step)

	// Weekend pick is a no-op.
	rec = doJSON(t, router, http.MethodPost, "/api/flow/date", map[string]string{"date": "2025-03-15"})
	readState(rec)
	assert.False(t, state.Accepted)
	assert.Equal(t, "choosing_date", state.Step)

	rec = doJSON(t, router, http.MethodPost, "/api/flow/date", map[string]string{"date": date})
	readState(rec)
	assert.True(t, state.Accepted)
	assert.Equal(t, "choosing_time", state.Step)

	rec = doJSON(t, router, http.MethodPost, "/api/flow/time", map[string]string{"time": "09:00"})
	readState(rec)
	assert.Equal(t, "filling_form", state.Step)

	// Back clears the chosen time.
	rec = doJSON(t, router, http.MethodPost, "/api/flow/back", nil)
	readState(rec)
	assert.Equal(t, "choosing_time", state.Step)
	assert.Empty(t, state.Time)
	assert.Equal(t, date, state.Date)

	rec = doJSON(t, router, http.MethodPost, "/api/flow/time", map[string]string{"time": "09:30"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/flow/submit", map[string]string{
		"name":    "Maria Silva",
		"email":   "maria@example.com",
		"phone":   "(11) 99999-9999",
		"service": "Consulta Médica",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "09:30", created.Time)
	assert.Equal(t, model.StatusConfirmed, created.Status)

	// Submit succeeded, so the wizard is back at date selection and the
	// appointment is visible in the list.
	rec = doJSON(t, router, http.MethodGet, "/api/flow", nil)
	readState(rec)
	assert.Equal(t, "choosing_date", state.Step)

	rec = doJSON(t, router, http.MethodGet, "/api/appointments", nil)
	var listed struct {
		Appointments []model.Appointment `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Appointments, 1)

	// Submitting again without a selection is rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/flow/submit", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.Router()

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/appointments", validDraft()).Code)

	rec := doJSON(t, router, http.MethodGet, "/api/appointments/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, rec.Body.Len())
}
