package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/validate"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger *zap.Logger) *Service {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		logger: logger.Named("appointment"),
		now:    time.Now,
	}
}

// ListFreeDates returns the dates on which the doctor still has at least one
// free slot, ascending. An unknown doctor simply has no free dates.
func (s *Service) ListFreeDates(ctx context.Context, doctorID int64) ([]string, error) {
	if doctorID <= 0 {
		return nil, validate.Field("doctor_id", "gt")
	}

	dates, err := s.repo.ListFreeDates(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list free dates: %w", err)
	}
	if dates == nil {
		dates = []string{}
	}
	return dates, nil
}

// ListFreeTimes returns the free slot times (HH:MM) for the doctor on date, ascending.
func (s *Service) ListFreeTimes(ctx context.Context, doctorID int64, date string) ([]string, error) {
	if doctorID <= 0 {
		return nil, validate.Field("doctor_id", "gt")
	}
	if !validate.IsDate(date) {
		return nil, validate.Field("date", "isodate")
	}

	times, err := s.repo.ListFreeTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list free times: %w", err)
	}
	if times == nil {
		times = []string{}
	}
	return times, nil
}

// ListDoctors returns the directory, optionally narrowed to one category, with
// every doctor's slots grouped by date.
func (s *Service) ListDoctors(ctx context.Context, category string) ([]DoctorSchedule, error) {
	doctors, err := s.repo.ListDoctors(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	ids := make([]int64, 0, len(doctors))
	for _, d := range doctors {
		ids = append(ids, d.ID)
	}

	slots, err := s.repo.ListSlotsByDoctors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list doctor slots: %w", err)
	}

	return groupSchedules(doctors, slots), nil
}

// groupSchedules assumes slots are ordered by doctor, date and time.
func groupSchedules(doctors []Doctor, slots []Slot) []DoctorSchedule {
	byDoctor := make(map[int64][]Slot, len(doctors))
	for _, sl := range slots {
		byDoctor[sl.DoctorID] = append(byDoctor[sl.DoctorID], sl)
	}

	result := make([]DoctorSchedule, 0, len(doctors))
	for _, d := range doctors {
		sched := DoctorSchedule{Doctor: d, Days: []DaySchedule{}}
		for _, sl := range byDoctor[d.ID] {
			n := len(sched.Days)
			if n == 0 || sched.Days[n-1].Date != sl.Date {
				sched.Days = append(sched.Days, DaySchedule{Date: sl.Date})
				n++
			}
			sched.Days[n-1].Slots = append(sched.Days[n-1].Slots, SlotSummary{
				Time:            sl.Time,
				DurationMinutes: sl.DurationMinutes,
				Booked:          sl.Booked,
			})
		}
		result = append(result, sched)
	}
	return result
}

// BookSlot converts one free slot into a scheduled appointment for the patient.
// A redis lock sheds contention before postgres is touched; the transaction's
// row lock is what actually guarantees a single winner.
func (s *Service) BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, err
	}

	var created *Appointment
	book := func(ctx context.Context) error {
		txCtx, cancel := s.txContext(ctx)
		defer cancel()

		appt, err := s.repo.BookSlot(txCtx, req)
		if err != nil {
			return err
		}
		created = appt
		return nil
	}

	err := s.locker.WithSlotLock(ctx, SlotKey(req.DoctorID, req.Date, req.Time), book)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		err = ErrSlotBeingBooked
	case errors.Is(err, redisclient.ErrLockUnavailable):
		s.logger.Warn("slot lock unavailable, relying on database locking", zap.Error(err))
		err = book(ctx)
	}

	if err != nil {
		s.logBookingFailure(req, err)
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.Int64("appointment_id", created.ID),
		zap.Int64("patient_id", created.PatientID),
		zap.Int64("doctor_id", created.DoctorID),
		zap.Int64("slot_id", created.SlotID),
		zap.String("date", created.Date),
		zap.String("time", created.Time),
	)

	return created, nil
}

func (s *Service) logBookingFailure(req BookingRequest, err error) {
	fields := []zap.Field{
		zap.Int64("patient_id", req.PatientID),
		zap.Int64("doctor_id", req.DoctorID),
		zap.String("date", req.Date),
		zap.String("time", req.Time),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrInvalidReference):
		s.logger.Info("booking rejected", fields...)
	case errors.Is(err, ErrTransientStorage):
		s.logger.Warn("booking failed transiently", fields...)
	default:
		s.logger.Error("booking failed", fields...)
	}
}

// CancelAppointment cancels a scheduled appointment and returns its slot to the free pool.
func (s *Service) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	if id <= 0 {
		return nil, validate.Field("id", "gt")
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	appt, err := s.repo.CancelAppointment(txCtx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment canceled",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("slot_id", appt.SlotID),
	)

	return appt, nil
}

// CompletePastAppointments is called by the status worker. It returns how many
// appointments were moved to completed.
func (s *Service) CompletePastAppointments(ctx context.Context) (int, error) {
	cutoff := s.now().In(s.cfg.Location).Format("2006-01-02 15:04:05")

	completed, err := s.repo.CompleteAppointmentsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("complete past appointments: %w", err)
	}

	for _, a := range completed {
		s.logger.Debug("appointment completed", zap.Int64("appointment_id", a.ID))
	}

	return len(completed), nil
}

// GetAppointment retrieves an appointment together with its doctor.
func (s *Service) GetAppointment(ctx context.Context, id int64) (*AppointmentDetail, error) {
	if id <= 0 {
		return nil, validate.Field("id", "gt")
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListAppointmentsByPatient returns the patient's appointments ordered by date and time.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID int64) ([]AppointmentDetail, error) {
	if patientID <= 0 {
		return nil, validate.Field("patient_id", "gt")
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	if appointments == nil {
		appointments = []AppointmentDetail{}
	}
	return appointments, nil
}

func (s *Service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.BookingTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.BookingTimeout)
}
