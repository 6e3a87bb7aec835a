// Package metrics exposes the Prometheus collectors of the booking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoescola_bookings_created_total",
		Help: "Booking creation attempts by outcome",
	}, []string{"outcome"}) // outcome=created|conflict|rejected

	BookingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoescola_booking_transitions_total",
		Help: "Applied booking state transitions",
	}, []string{"action", "to"})

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoescola_sweep_runs_total",
		Help: "Background sweep runs by outcome",
	}, []string{"outcome"})

	SweepBookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoescola_sweep_bookings_total",
		Help: "Bookings changed by the background sweep",
	}, []string{"action"})

	SessionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoescola_session_events_total",
		Help: "Authentication session events by role and kind",
	}, []string{"role", "kind"})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoescola_event_subscribers",
		Help: "Connected session event subscribers",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoescola_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoescola_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// RecordBookingCreated counts a creation attempt.
func RecordBookingCreated(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	BookingsCreatedTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition counts an applied booking transition.
func RecordTransition(action, to string) {
	BookingTransitionsTotal.WithLabelValues(action, to).Inc()
}

// RecordSweep counts a sweep run and the bookings it changed.
func RecordSweep(err error, cancelled, completed int) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	SweepRunsTotal.WithLabelValues(outcome).Inc()
	SweepBookingsTotal.WithLabelValues("auto_cancel").Add(float64(cancelled))
	SweepBookingsTotal.WithLabelValues("complete").Add(float64(completed))
}

// RecordSessionEvent counts a published session event.
func RecordSessionEvent(role, kind string) {
	SessionEventsTotal.WithLabelValues(role, kind).Inc()
}
