package booking

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format for reservation dates.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Active reports whether a reservation in this status occupies its slot for the date.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether an admin may move a reservation from s to next.
// Removal is not a status and is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusConfirmed || next == StatusRejected
}

type AppointmentType string

const (
	TypeOnline  AppointmentType = "online"
	TypeOffline AppointmentType = "offline"
)

func (t AppointmentType) Valid() bool {
	return t == TypeOnline || t == TypeOffline
}

type SlotCategory string

const (
	CategoryMorning SlotCategory = "morning"
	CategoryEvening SlotCategory = "evening"
)

type Doctor struct {
	ID         uuid.UUID
	Name       string
	Specialty  string
	Experience int
	Rating     float64
	Location   string
	Gender     string
	ProfilePic *string
}

// Slot is a recurring daily time-of-day unit. It carries no date.
type Slot struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	Time     string // HH:MM
	Category SlotCategory
}

type SlotAvailability struct {
	Slot
	IsAvailable bool
}

type Reservation struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	SlotID    uuid.UUID
	Date      time.Time
	Type      AppointmentType
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Triple is the (doctor, slot, date) key that at most one active reservation may hold.
type Triple struct {
	DoctorID uuid.UUID
	SlotID   uuid.UUID
	Date     time.Time
}

func (r Reservation) Triple() Triple {
	return Triple{DoctorID: r.DoctorID, SlotID: r.SlotID, Date: r.Date}
}

func (t Triple) String() string {
	return t.DoctorID.String() + ":" + t.SlotID.String() + ":" + t.Date.Format(DateLayout)
}

type PatientContact struct {
	ID    uuid.UUID
	Name  string
	Email *string
}

// ReservationDetail is a reservation joined with slot, doctor and patient display data.
type ReservationDetail struct {
	Reservation
	SlotTime     string
	SlotCategory SlotCategory
	DoctorName   string
	PatientName  string
	PatientEmail *string
}

type BookingRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	SlotID    uuid.UUID
	Type      AppointmentType
	Date      time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	ReservationID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ParseDate parses a naive calendar date. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// NormalizeDate drops the time-of-day so dates compare by calendar day.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
