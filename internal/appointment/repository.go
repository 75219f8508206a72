package appointment

import (
	"context"
	"errors"
	"fmt"
)

// Error categories. Callers match on these with errors.Is; the specific
// errors below wrap exactly one of them. Input problems surface as
// validate.ErrInvalid.
var (
	ErrInvalidReference = errors.New("invalid reference")
	ErrSlotUnavailable  = errors.New("slot unavailable")
	ErrNotFound         = errors.New("not found")
	ErrTransientStorage = errors.New("transient storage failure")
)

var (
	ErrPatientNotFound     = fmt.Errorf("%w: patient not found", ErrInvalidReference)
	ErrDoctorNotFound      = fmt.Errorf("%w: doctor not found", ErrInvalidReference)
	ErrSlotNotFound        = fmt.Errorf("%w: doctor has no slot at that date and time", ErrInvalidReference)
	ErrSlotAlreadyBooked   = fmt.Errorf("%w: slot already has an active appointment", ErrSlotUnavailable)
	ErrSlotBeingBooked     = fmt.Errorf("%w: slot is currently being booked", ErrSlotUnavailable)
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment not found", ErrNotFound)

	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id int64) (*Patient, error)
	GetDoctorByID(ctx context.Context, id int64) (*Doctor, error)

	// Directory
	ListDoctors(ctx context.Context, category string) ([]Doctor, error)
	ListSlotsByDoctors(ctx context.Context, doctorIDs []int64) ([]Slot, error)

	// Availability
	ListFreeDates(ctx context.Context, doctorID int64) ([]string, error)
	ListFreeTimes(ctx context.Context, doctorID int64, date string) ([]string, error)

	// BookSlot flips the slot to booked and inserts a scheduled appointment in
	// one transaction. Exactly one of several concurrent callers for the same
	// slot succeeds; the others get ErrSlotUnavailable.
	BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error)

	// CancelAppointment moves a scheduled appointment to canceled and frees its slot.
	CancelAppointment(ctx context.Context, id int64) (*Appointment, error)

	// CompleteAppointmentsBefore marks scheduled appointments whose slot ended
	// at or before cutoff (local wall clock, "2006-01-02 15:04:05") as completed.
	CompleteAppointmentsBefore(ctx context.Context, cutoff string) ([]Appointment, error)

	GetAppointmentDetail(ctx context.Context, id int64) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID int64) ([]AppointmentDetail, error)
}
