package api

import (
	"time"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/validate"
)

type ErrorResponse struct {
	Error   string                `json:"error"`
	Details string                `json:"details,omitempty"`
	Fields  []validate.FieldError `json:"fields,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CreateAppointmentResponse struct {
	ID int64 `json:"id"`
}

type DatesResponse struct {
	Dates []string `json:"dates"`
}

type TimesResponse struct {
	Times []string `json:"times"`
}

type DoctorResponse struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Category  string  `json:"category"`
	Address   *string `json:"address,omitempty"`
}

type TimeslotResponse struct {
	Time     string `json:"time"`
	Duration int    `json:"duration"`
	IsBooked bool   `json:"is_booked"`
}

type DayResponse struct {
	Date      string             `json:"date"`
	Timeslots []TimeslotResponse `json:"timeslots"`
}

type DoctorScheduleResponse struct {
	DoctorResponse
	Dates []DayResponse `json:"dates"`
}

type AppointmentResponse struct {
	ID        int64           `json:"id"`
	PatientID int64           `json:"patient_id"`
	DoctorID  int64           `json:"doctor_id"`
	SlotID    int64           `json:"slot_id"`
	Date      string          `json:"appointment_date"`
	Time      string          `json:"appointment_time"`
	Status    string          `json:"status"`
	Type      string          `json:"appointment_type"`
	Comment   *string         `json:"comment,omitempty"`
	Diagnosis *string         `json:"diagnosis,omitempty"`
	FileURL   *string         `json:"file_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Doctor    *DoctorResponse `json:"doctor,omitempty"`
}

type MeResponse struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toDoctorResponse(d appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:        d.ID,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Category:  d.Category,
		Address:   d.Address,
	}
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		SlotID:    a.SlotID,
		Date:      a.Date,
		Time:      a.Time,
		Status:    string(a.Status),
		Type:      string(a.Type),
		Comment:   a.Comment,
		Diagnosis: a.Diagnosis,
		FileURL:   a.FileURL,
		CreatedAt: a.CreatedAt,
	}
}

func toAppointmentDetailResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	doc := toDoctorResponse(d.Doctor)
	resp.Doctor = &doc
	return resp
}

func toScheduleResponse(s appointment.DoctorSchedule) DoctorScheduleResponse {
	resp := DoctorScheduleResponse{
		DoctorResponse: toDoctorResponse(s.Doctor),
		Dates:          make([]DayResponse, 0, len(s.Days)),
	}
	for _, day := range s.Days {
		dr := DayResponse{Date: day.Date, Timeslots: make([]TimeslotResponse, 0, len(day.Slots))}
		for _, sl := range day.Slots {
			dr.Timeslots = append(dr.Timeslots, TimeslotResponse{
				Time:     sl.Time,
				Duration: sl.DurationMinutes,
				IsBooked: sl.Booked,
			})
		}
		resp.Dates = append(resp.Dates, dr)
	}
	return resp
}
