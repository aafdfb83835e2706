package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-booking/internal/auth"
	"github.com/hackgods/doctor-booking/internal/booking"
)

func availableSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor id must be a valid UUID")
			return
		}

		date, err := booking.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.Availability(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func bookAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.IdentityFromContext(r.Context())

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		date, err := booking.ParseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "appointment_date must be YYYY-MM-DD")
			return
		}

		res, err := svc.Book(r.Context(), booking.BookingRequest{
			PatientID: caller.UserID,
			DoctorID:  doctorID,
			SlotID:    slotID,
			Type:      booking.AppointmentType(req.AppointmentType),
			Date:      date,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookAppointmentResponse{
			Message:     "Appointment booked successfully",
			Appointment: toAppointmentResponse(*res),
		})
	}
}

func myAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.IdentityFromContext(r.Context())

		list, err := svc.ListForPatient(r.Context(), caller.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponses(list))
	}
}

func pendingAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPending(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponses(list))
	}
}

func acceptAppointmentHandler(svc BookingService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reservationIDParam(w, r)
		if !ok {
			return
		}

		res, err := svc.Accept(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := AcceptAppointmentResponse{
			AppointmentResponse: toAppointmentResponse(res.Reservation),
			NotificationQueued:  res.NotificationQueued,
		}
		if res.Patient != nil {
			resp.Patient = &PatientResponse{ID: res.Patient.ID, Name: res.Patient.Name, Email: res.Patient.Email}
		}
		if !res.NotificationQueued {
			logger.Debug().Str("reservation_id", id.String()).Str("request_id", GetRequestID(r.Context())).
				Msg("accepted without queued notification")
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func rejectAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reservationIDParam(w, r)
		if !ok {
			return
		}

		res, err := svc.Reject(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*res))
	}
}

func removeAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reservationIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Remove(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Appointment deleted successfully"})
	}
}

func reservationIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
