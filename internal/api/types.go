package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/booking"
)

type BookAppointmentRequest struct {
	DoctorID        string `json:"doctor_id"`
	SlotID          string `json:"slot_id"`
	AppointmentType string `json:"appointment_type"`
	AppointmentDate string `json:"appointment_date"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	SlotTime    string    `json:"slot_time"`
	SlotType    string    `json:"slot_type"`
	IsAvailable bool      `json:"is_available"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	SlotID          uuid.UUID `json:"slot_id"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentType string    `json:"appointment_type"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	SlotTime     string  `json:"slot_time"`
	SlotType     string  `json:"slot_type"`
	DoctorName   string  `json:"doctor_name,omitempty"`
	PatientName  string  `json:"patient_name,omitempty"`
	PatientEmail *string `json:"patient_email,omitempty"`
}

type BookAppointmentResponse struct {
	Message     string              `json:"message"`
	Appointment AppointmentResponse `json:"appointment"`
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

type AcceptAppointmentResponse struct {
	AppointmentResponse
	Patient            *PatientResponse `json:"patient,omitempty"`
	NotificationQueued bool             `json:"notification_queued"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponses(list []booking.SlotAvailability) []SlotResponse {
	out := make([]SlotResponse, 0, len(list))
	for _, s := range list {
		out = append(out, SlotResponse{
			ID:          s.ID,
			DoctorID:    s.DoctorID,
			SlotTime:    s.Time,
			SlotType:    string(s.Category),
			IsAvailable: s.IsAvailable,
		})
	}
	return out
}

func toAppointmentResponse(r booking.Reservation) AppointmentResponse {
	return AppointmentResponse{
		ID:              r.ID,
		PatientID:       r.PatientID,
		DoctorID:        r.DoctorID,
		SlotID:          r.SlotID,
		AppointmentDate: r.Date.Format(booking.DateLayout),
		AppointmentType: string(r.Type),
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toDetailResponses(list []booking.ReservationDetail) []AppointmentDetailResponse {
	out := make([]AppointmentDetailResponse, 0, len(list))
	for _, d := range list {
		out = append(out, AppointmentDetailResponse{
			AppointmentResponse: toAppointmentResponse(d.Reservation),
			SlotTime:            d.SlotTime,
			SlotType:            string(d.SlotCategory),
			DoctorName:          d.DoctorName,
			PatientName:         d.PatientName,
			PatientEmail:        d.PatientEmail,
		})
	}
	return out
}
