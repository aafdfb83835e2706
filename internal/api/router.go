package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-booking/internal/auth"
	"github.com/hackgods/doctor-booking/internal/booking"
)

// BookingService is implemented by *booking.Service.
type BookingService interface {
	Availability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.SlotAvailability, error)
	Book(ctx context.Context, req booking.BookingRequest) (*booking.Reservation, error)
	Accept(ctx context.Context, id uuid.UUID) (*booking.AcceptResult, error)
	Reject(ctx context.Context, id uuid.UUID) (*booking.Reservation, error)
	Remove(ctx context.Context, id uuid.UUID) error
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]booking.ReservationDetail, error)
	ListPending(ctx context.Context) ([]booking.ReservationDetail, error)
}

type RouterConfig struct {
	Service  BookingService
	Identity auth.IdentityResolver
	Postgres HealthCheck
	Redis    HealthCheck
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Identity))

		r.Route("/appointments", func(r chi.Router) {
			r.Use(RequireAuth)
			r.Get("/available-slots/{doctorID}/{date}", availableSlotsHandler(cfg.Service))
			r.Post("/book", bookAppointmentHandler(cfg.Service))
			r.Get("/my-appointments", myAppointmentsHandler(cfg.Service))
		})

		r.Route("/admin/appointments", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleAdmin))
			r.Get("/", pendingAppointmentsHandler(cfg.Service))
			r.Put("/{id}/accept", acceptAppointmentHandler(cfg.Service, cfg.Logger))
			r.Put("/{id}/reject", rejectAppointmentHandler(cfg.Service))
			r.Delete("/{id}", removeAppointmentHandler(cfg.Service))
		})
	})

	return r
}
