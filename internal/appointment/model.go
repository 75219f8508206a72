package appointment

import (
	"fmt"
	"time"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
)

type AppointmentType string

const (
	TypeOnline   AppointmentType = "online"
	TypeInPerson AppointmentType = "in-person"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentCanceled  = "APPOINTMENT_CANCELED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

type Patient struct {
	ID    int64
	Name  *string
	Email string
	Role  string
}

type Doctor struct {
	ID        int64
	FirstName string
	LastName  string
	Category  string
	Address   *string
}

// Slot is one bookable (doctor, date, time) entry. Date is YYYY-MM-DD and
// Time is HH:MM.
type Slot struct {
	ID              int64
	DoctorID        int64
	Date            string
	Time            string
	DurationMinutes int
	Booked          bool
}

type Appointment struct {
	ID        int64
	PatientID int64
	DoctorID  int64
	SlotID    int64
	Date      string
	Time      string
	Status    AppointmentStatus
	Type      AppointmentType
	Comment   *string
	Diagnosis *string
	FileURL   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AppointmentDetail struct {
	Appointment
	Doctor Doctor
}

// BookingRequest carries everything the booking transaction needs.
type BookingRequest struct {
	PatientID int64           `json:"patient_id" validate:"gt=0"`
	DoctorID  int64           `json:"doctor_id" validate:"gt=0"`
	Date      string          `json:"appointment_date" validate:"required,isodate"`
	Time      string          `json:"appointment_time" validate:"required,hhmm"`
	Type      AppointmentType `json:"appointment_type" validate:"oneof=online in-person"`
	Comment   *string         `json:"comment" validate:"omitempty,max=2000"`
}

// SlotKey names the lock guarding one (doctor, date, time) slot.
func SlotKey(doctorID int64, date, clock string) string {
	return fmt.Sprintf("slot:%d:%s:%s", doctorID, date, clock)
}

type SlotSummary struct {
	Time            string
	DurationMinutes int
	Booked          bool
}

type DaySchedule struct {
	Date  string
	Slots []SlotSummary
}

// DoctorSchedule is a directory entry: the doctor plus their slots grouped by day.
type DoctorSchedule struct {
	Doctor
	Days []DaySchedule
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}
