package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking and lifecycle flows.
type BookingMetrics struct {
	bookingTotal      *prometheus.CounterVec
	bookingLatency    *prometheus.HistogramVec
	transitionTotal   *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec
	lockFallbackTotal prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctor_booking",
			Subsystem: "reservations",
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doctor_booking",
			Subsystem: "reservations",
			Name:      "booking_duration_seconds",
			Help:      "Latency of booking transactions including lock wait",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctor_booking",
			Subsystem: "reservations",
			Name:      "status_transitions_total",
			Help:      "Admin status transitions by target and outcome",
		}, []string{"transition", "outcome"}),
		notificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctor_booking",
			Subsystem: "notifications",
			Name:      "confirmation_total",
			Help:      "Confirmation notifications by stage and status",
		}, []string{"stage", "status"}),
		lockFallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doctor_booking",
			Subsystem: "reservations",
			Name:      "lock_fallback_total",
			Help:      "Bookings that ran without the Redis triple lock because Redis was unavailable",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingTotal, m.bookingLatency, m.transitionTotal, m.notificationTotal, m.lockFallbackTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(transition, outcome).Inc()
}

// ObserveNotification records enqueue (api side) and deliver (worker side) results.
func (m *BookingMetrics) ObserveNotification(stage, status string) {
	if m == nil {
		return
	}
	m.notificationTotal.WithLabelValues(stage, status).Inc()
}

func (m *BookingMetrics) ObserveLockFallback() {
	if m == nil {
		return
	}
	m.lockFallbackTotal.Inc()
}
