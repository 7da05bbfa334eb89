package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agendamed",
			Name:      "appointment_created_total",
			Help:      "Count of appointments created by status.",
		},
		[]string{"status"},
	)

	appointmentCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agendamed",
			Name:      "appointment_cancelled_total",
			Help:      "Count of appointments cancelled.",
		},
	)

	slotConflict = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agendamed",
			Name:      "slot_conflict_total",
			Help:      "Count of create/update attempts rejected because the slot was taken.",
		},
	)

	validationRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agendamed",
			Name:      "validation_rejected_total",
			Help:      "Count of intake drafts rejected by field.",
		},
		[]string{"field"},
	)

	storageCorrupt = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agendamed",
			Name:      "storage_corrupt_total",
			Help:      "Count of loads that fell back to an empty collection.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agendamed",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by handler.",
		},
		[]string{"handler"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentCreated,
			appointmentCancelled,
			slotConflict,
			validationRejected,
			storageCorrupt,
			httpRequests,
		)
	})
}

func IncAppointmentCreated(status string) {
	appointmentCreated.WithLabelValues(status).Inc()
}

func IncAppointmentCancelled() {
	appointmentCancelled.Inc()
}

func IncSlotConflict() {
	slotConflict.Inc()
}

func IncValidationRejected(field string) {
	validationRejected.WithLabelValues(field).Inc()
}

func IncStorageCorrupt() {
	storageCorrupt.Inc()
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}
