package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/doctor-booking/internal/metrics"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
)

const (
	EventReservationCreated   = "RESERVATION_CREATED"
	EventReservationConfirmed = "RESERVATION_CONFIRMED"
	EventReservationRejected  = "RESERVATION_REJECTED"
	EventReservationRemoved   = "RESERVATION_REMOVED"
)

var (
	ErrSlotBeingBooked        = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidAppointmentType = errors.New("appointment type must be online or offline")
	ErrInvalidDate            = errors.New("appointment date is required")
	ErrMissingPatient         = errors.New("patient identity is required")
)

var tracer = otel.Tracer("doctor-booking/internal/booking")

// Notifier hands a committed confirmation to the notification collaborator.
// Delivery and retries happen elsewhere.
type Notifier interface {
	NotifyConfirmed(ctx context.Context, detail ReservationDetail) error
}

// AcceptResult is the confirmed reservation with the patient contact used for notification.
type AcceptResult struct {
	Reservation
	Patient            *PatientContact
	NotificationQueued bool
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   zerolog.Logger
}

// NewService wires the booking core. notifier and m may be nil.
func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, m *metrics.BookingMetrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Availability returns the doctor's full slot catalog for date, each slot marked
// unavailable iff an active reservation holds it on that exact date.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]SlotAvailability, error) {
	ctx, span := tracer.Start(ctx, "booking.availability")
	defer span.End()
	date = NormalizeDate(date)
	span.SetAttributes(
		attribute.String("booking.doctor_id", doctorID.String()),
		attribute.String("booking.date", date.Format(DateLayout)),
	)

	exists, err := s.repo.DoctorExists(ctx, doctorID)
	if err != nil {
		return nil, recordSpanError(span, fmt.Errorf("load doctor: %w", err))
	}
	if !exists {
		return nil, ErrDoctorNotFound
	}

	slots, err := s.repo.ListSlotsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	taken, err := s.repo.ActiveSlotIDs(ctx, doctorID, date)
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	return ResolveAvailability(slots, taken), nil
}

// Book creates a pending reservation for the requested triple.
// The Redis lock serializes contenders for the same triple. The repository
// transaction and the active-triple unique index keep at most one active
// reservation per triple, so when Redis is unreachable the booking proceeds
// without the lock.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()

	if req.PatientID == uuid.Nil {
		return nil, ErrMissingPatient
	}
	if !req.Type.Valid() {
		return nil, ErrInvalidAppointmentType
	}
	if req.Date.IsZero() {
		return nil, ErrInvalidDate
	}
	req.Date = NormalizeDate(req.Date)

	triple := Triple{DoctorID: req.DoctorID, SlotID: req.SlotID, Date: req.Date}
	span.SetAttributes(
		attribute.String("booking.doctor_id", req.DoctorID.String()),
		attribute.String("booking.slot_id", req.SlotID.String()),
		attribute.String("booking.date", req.Date.Format(DateLayout)),
	)

	start := time.Now()
	var created *Reservation

	create := func(lockCtx context.Context) error {
		res, err := s.repo.CreateReservation(lockCtx, req)
		if err != nil {
			return err
		}

		created = res

		s.logEvent(lockCtx, res.ID, EventReservationCreated, map[string]any{
			"patient_id":       req.PatientID.String(),
			"doctor_id":        req.DoctorID.String(),
			"slot_id":          req.SlotID.String(),
			"date":             req.Date.Format(DateLayout),
			"appointment_type": string(req.Type),
		})

		return nil
	}

	err := s.locker.WithLock(ctx, triple.String(), create)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		s.logger.Warn().Err(err).Str("triple", triple.String()).
			Msg("reservation lock unavailable, booking without it")
		s.metrics.ObserveLockFallback()
		span.SetAttributes(attribute.Bool("booking.lock_fallback", true))
		err = create(ctx)
	}
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		err = ErrSlotBeingBooked
	}
	s.metrics.ObserveBooking(bookingOutcome(err), time.Since(start).Seconds())

	if err != nil {
		if isBookingRejection(err) {
			span.SetAttributes(attribute.String("booking.rejection", err.Error()))
			return nil, err
		}
		return nil, recordSpanError(span, fmt.Errorf("book reservation: %w", err))
	}

	s.logger.Info().
		Str("reservation_id", created.ID.String()).
		Str("triple", triple.String()).
		Msg("reservation created")

	return created, nil
}

// Accept moves a pending reservation to confirmed. Once the update is committed
// the confirmation notice is handed to the notifier; notifier failures are logged
// and never fail the accept.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*AcceptResult, error) {
	ctx, span := tracer.Start(ctx, "booking.accept")
	defer span.End()
	span.SetAttributes(attribute.String("booking.reservation_id", id.String()))

	updated, err := s.transition(ctx, id, StatusConfirmed)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventReservationConfirmed, map[string]any{})

	result := &AcceptResult{Reservation: *updated}

	detail, err := s.repo.GetReservationDetail(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("reservation_id", id.String()).
			Msg("reservation confirmed but contact lookup failed, notification skipped")
		s.metrics.ObserveNotification("enqueue", "skipped")
		return result, nil
	}

	result.Patient = &PatientContact{
		ID:    detail.PatientID,
		Name:  detail.PatientName,
		Email: detail.PatientEmail,
	}

	if s.notifier == nil {
		s.metrics.ObserveNotification("enqueue", "disabled")
		return result, nil
	}

	if err := s.notifier.NotifyConfirmed(ctx, *detail); err != nil {
		s.logger.Warn().Err(err).Str("reservation_id", id.String()).Msg("confirmation notification not queued")
		s.metrics.ObserveNotification("enqueue", "failed")
		return result, nil
	}

	result.NotificationQueued = true
	s.metrics.ObserveNotification("enqueue", "queued")
	return result, nil
}

// Reject moves a pending reservation to rejected. No notification is sent.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.reject")
	defer span.End()
	span.SetAttributes(attribute.String("booking.reservation_id", id.String()))

	updated, err := s.transition(ctx, id, StatusRejected)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventReservationRejected, map[string]any{})
	return updated, nil
}

// Remove hard-deletes a reservation in any status.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "booking.remove")
	defer span.End()
	span.SetAttributes(attribute.String("booking.reservation_id", id.String()))

	if err := s.repo.DeleteReservation(ctx, id); err != nil {
		s.metrics.ObserveTransition("removed", transitionOutcome(err))
		if errors.Is(err, ErrReservationNotFound) {
			return err
		}
		return recordSpanError(span, fmt.Errorf("remove reservation: %w", err))
	}

	s.metrics.ObserveTransition("removed", "ok")
	s.logEvent(ctx, id, EventReservationRemoved, map[string]any{})
	return nil
}

// ListForPatient returns the patient's reservations with slot time and category,
// newest date first.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]ReservationDetail, error) {
	if patientID == uuid.Nil {
		return nil, ErrMissingPatient
	}
	list, err := s.repo.ListReservationsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list reservations by patient: %w", err)
	}
	return list, nil
}

// ListPending returns reservations awaiting an admin decision.
func (s *Service) ListPending(ctx context.Context) ([]ReservationDetail, error) {
	list, err := s.repo.ListPendingReservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending reservations: %w", err)
	}
	return list, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Reservation, error) {
	label := string(to)

	current, err := s.repo.GetReservationByID(ctx, id)
	if err != nil {
		s.metrics.ObserveTransition(label, transitionOutcome(err))
		if errors.Is(err, ErrReservationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}

	if !current.Status.CanTransition(to) {
		s.metrics.ObserveTransition(label, "invalid")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	updated, err := s.repo.UpdateReservationStatus(ctx, id, StatusPending, to)
	if err != nil {
		if !errors.Is(err, ErrReservationNotFound) {
			s.metrics.ObserveTransition(label, "error")
			return nil, fmt.Errorf("update reservation status: %w", err)
		}

		// Lost a race with another admin action: either removed or no longer pending.
		latest, gerr := s.repo.GetReservationByID(ctx, id)
		if errors.Is(gerr, ErrReservationNotFound) {
			s.metrics.ObserveTransition(label, "not_found")
			return nil, ErrReservationNotFound
		}
		s.metrics.ObserveTransition(label, "invalid")
		if gerr != nil {
			return nil, fmt.Errorf("%w: reservation no longer pending", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, latest.Status, to)
	}

	s.metrics.ObserveTransition(label, "ok")
	s.logger.Info().
		Str("reservation_id", id.String()).
		Str("status", string(to)).
		Msg("reservation status changed")

	return updated, nil
}

func (s *Service) logEvent(ctx context.Context, reservationID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := reservationID

	ev := EventLog{
		EventType:     eventType,
		ReservationID: &id,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("reservation_id", reservationID.String()).
			Msg("failed to insert event log")
	}
}

func isBookingRejection(err error) bool {
	return errors.Is(err, ErrDoctorNotFound) ||
		errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrSlotAlreadyBooked) ||
		errors.Is(err, ErrSlotBeingBooked)
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "already_booked"
	case errors.Is(err, ErrSlotBeingBooked):
		return "being_booked"
	case errors.Is(err, ErrDoctorNotFound):
		return "doctor_not_found"
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	case errors.Is(err, ErrStorageBusy):
		return "storage_busy"
	default:
		return "error"
	}
}

func transitionOutcome(err error) string {
	if errors.Is(err, ErrReservationNotFound) {
		return "not_found"
	}
	return "error"
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
