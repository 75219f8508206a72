package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

func listDoctorsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schedules, err := svc.ListDoctors(r.Context(), r.URL.Query().Get("category"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		resp := make([]DoctorScheduleResponse, 0, len(schedules))
		for _, s := range schedules {
			resp = append(resp, toScheduleResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func availableDatesHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		dates, err := svc.ListFreeDates(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, DatesResponse{Dates: dates})
	}
}

func availableTimesHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		times, err := svc.ListFreeTimes(r.Context(), doctorID, r.URL.Query().Get("date"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, TimesResponse{Times: times})
	}
}

func createAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}

		var req appointment.BookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.PatientID == 0 {
			req.PatientID = claims.UserID
		}
		if !claims.CanActFor(req.PatientID) {
			forbidden(w)
			return
		}

		appt, err := svc.BookSlot(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{ID: appt.ID})
	}
}

func getAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		if !claims.CanActFor(detail.PatientID) {
			appointmentNotFound(w)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentDetailResponse(*detail))
	}
}

func cancelAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		if !claims.CanActFor(detail.PatientID) {
			appointmentNotFound(w)
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listPatientAppointmentsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		patientID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if !claims.CanActFor(patientID) {
			forbidden(w)
			return
		}

		list, err := svc.ListAppointmentsByPatient(r.Context(), patientID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(list))
		for _, d := range list {
			resp = append(resp, toAppointmentDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
