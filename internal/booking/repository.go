package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found or does not belong to this doctor")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotAlreadyBooked   = errors.New("slot already booked for this date")
	ErrStorageBusy         = errors.New("storage busy, retry the request")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)

	// Slot catalog and ledger reads for availability
	ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Slot, error)
	ActiveSlotIDs(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[uuid.UUID]struct{}, error)

	// CreateReservation runs the ordered doctor, slot and occupancy checks and the
	// insert as one isolated unit of work.
	CreateReservation(ctx context.Context, req BookingRequest) (*Reservation, error)

	GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	GetReservationDetail(ctx context.Context, id uuid.UUID) (*ReservationDetail, error)
	ListReservationsByPatient(ctx context.Context, patientID uuid.UUID) ([]ReservationDetail, error)
	ListPendingReservations(ctx context.Context) ([]ReservationDetail, error)

	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Reservation, error)
	DeleteReservation(ctx context.Context, id uuid.UUID) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
