package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

type PgRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPgRepository builds the postgres repository. lockTimeout bounds how long
// booking and cancellation wait for a contended row lock.
func NewPgRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *PgRepository {
	return &PgRepository{pool: pool, lockTimeout: lockTimeout}
}

const appointmentColumns = `
	a.id, a.patient_id, a.doctor_id, a.slot_id,
	to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.appointment_time, 'HH24:MI'),
	a.status, a.appointment_type, a.comment, a.diagnosis, a.file_url,
	a.created_at, a.updated_at`

const doctorColumns = `d.id, d.first_name, d.last_name, d.category, d.address`

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.FirstName,
		&d.LastName,
		&d.Category,
		&d.Address,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.Type,
		&a.Comment,
		&a.Diagnosis,
		&a.FileURL,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var ad AppointmentDetail
	a := &ad.Appointment
	d := &ad.Doctor

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.Type,
		&a.Comment,
		&a.Diagnosis,
		&a.FileURL,
		&a.CreatedAt,
		&a.UpdatedAt,
		&d.ID,
		&d.FirstName,
		&d.LastName,
		&d.Category,
		&d.Address,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &ad, nil
}

// storageErr maps driver failures onto the service error categories.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsLockNotAvailable(err):
		return fmt.Errorf("%s: %w", op, ErrSlotBeingBooked)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrSlotAlreadyBooked)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %s", op, ErrInvalidReference, db.ConstraintName(err))
	case db.IsTransient(err):
		return fmt.Errorf("%s: %w: %w", op, ErrTransientStorage, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (r *PgRepository) beginLocked(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}

	if r.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}

	return tx, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, appointmentID int64, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, eventType, appointmentID, data)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	var p Patient

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role
		FROM users
		WHERE id = $1 AND role = 'patient'
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, storageErr("get patient", err)
	}

	return &p, nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id int64) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		WHERE d.id = $1
	`, id)

	d, err := scanDoctor(row)
	if err != nil && !errors.Is(err, ErrDoctorNotFound) {
		return nil, storageErr("get doctor", err)
	}
	return d, err
}

func (r *PgRepository) ListDoctors(ctx context.Context, category string) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		WHERE $1 = '' OR d.category = $1
		ORDER BY d.last_name, d.first_name, d.id
	`, category)
	if err != nil {
		return nil, storageErr("list doctors", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, storageErr("scan doctor", err)
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("list doctors", err)
	}

	return result, nil
}

func (r *PgRepository) ListSlotsByDoctors(ctx context.Context, doctorIDs []int64) ([]Slot, error) {
	if len(doctorIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, to_char(slot_date, 'YYYY-MM-DD'), to_char(slot_time, 'HH24:MI'),
		       duration_minutes, is_booked
		FROM slots
		WHERE doctor_id = ANY($1)
		ORDER BY doctor_id, slot_date, slot_time
	`, doctorIDs)
	if err != nil {
		return nil, storageErr("list slots", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.Date, &s.Time, &s.DurationMinutes, &s.Booked); err != nil {
			return nil, storageErr("scan slot", err)
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("list slots", err)
	}

	return result, nil
}

func (r *PgRepository) ListFreeDates(ctx context.Context, doctorID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT to_char(slot_date, 'YYYY-MM-DD') AS free_date
		FROM slots
		WHERE doctor_id = $1 AND NOT is_booked
		ORDER BY free_date ASC
	`, doctorID)
	if err != nil {
		return nil, storageErr("list free dates", err)
	}

	dates, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storageErr("list free dates", err)
	}
	return dates, nil
}

func (r *PgRepository) ListFreeTimes(ctx context.Context, doctorID int64, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(slot_time, 'HH24:MI')
		FROM slots
		WHERE doctor_id = $1 AND slot_date = $2::date AND NOT is_booked
		ORDER BY slot_time ASC
	`, doctorID, date)
	if err != nil {
		return nil, storageErr("list free times", err)
	}

	times, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storageErr("list free times", err)
	}
	return times, nil
}

func (r *PgRepository) BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error) {
	tx, err := r.beginLocked(ctx)
	if err != nil {
		return nil, storageErr("begin booking", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	// The row lock serializes concurrent bookers of this slot; the partial
	// unique index on appointments(slot_id) backs it up.
	var (
		slotID int64
		booked bool
	)
	err = tx.QueryRow(ctx, `
		SELECT id, is_booked
		FROM slots
		WHERE doctor_id = $1 AND slot_date = $2::date AND slot_time = $3::time
		FOR UPDATE
	`, req.DoctorID, req.Date, req.Time).Scan(&slotID, &booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, storageErr("lock slot", err)
	}
	if booked {
		return nil, ErrSlotAlreadyBooked
	}

	if _, err := tx.Exec(ctx, `
		UPDATE slots
		SET is_booked = true,
		    updated_at = now()
		WHERE id = $1
	`, slotID); err != nil {
		return nil, storageErr("mark slot booked", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments AS a
			(patient_id, doctor_id, slot_id, appointment_date, appointment_time, status, appointment_type, comment)
		VALUES ($1, $2, $3, $4::date, $5::time, 'scheduled', $6, $7)
		RETURNING `+appointmentColumns,
		req.PatientID, req.DoctorID, slotID, req.Date, req.Time, req.Type, req.Comment)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, storageErr("insert appointment", err)
	}

	if err := insertEvent(ctx, tx, appt.ID, EventAppointmentCreated, map[string]any{
		"slot_id":    slotID,
		"patient_id": req.PatientID,
		"doctor_id":  req.DoctorID,
		"type":       req.Type,
	}); err != nil {
		return nil, storageErr("booking event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit booking", err)
	}

	return appt, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	tx, err := r.beginLocked(ctx)
	if err != nil {
		return nil, storageErr("begin cancel", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	var slotID int64
	if err := tx.QueryRow(ctx, `SELECT slot_id FROM appointments WHERE id = $1`, id).Scan(&slotID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storageErr("load appointment", err)
	}

	// Same lock order as BookSlot: slot first, then the appointment.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM slots WHERE id = $1 FOR UPDATE`, slotID); err != nil {
		return nil, storageErr("lock slot", err)
	}

	var status AppointmentStatus
	if err := tx.QueryRow(ctx, `
		SELECT status FROM appointments WHERE id = $1 FOR UPDATE
	`, id).Scan(&status); err != nil {
		return nil, storageErr("lock appointment", err)
	}
	if status != StatusScheduled {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, status, StatusCanceled)
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = 'canceled',
		    updated_at = now()
		WHERE a.id = $1
		RETURNING `+appointmentColumns, id)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, storageErr("cancel appointment", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE slots
		SET is_booked = false,
		    updated_at = now()
		WHERE id = $1
	`, slotID); err != nil {
		return nil, storageErr("free slot", err)
	}

	if err := insertEvent(ctx, tx, appt.ID, EventAppointmentCanceled, map[string]any{
		"slot_id": slotID,
	}); err != nil {
		return nil, storageErr("cancel event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit cancel", err)
	}

	return appt, nil
}

func (r *PgRepository) CompleteAppointmentsBefore(ctx context.Context, cutoff string) ([]Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin completion", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rows, err := tx.Query(ctx, `
		UPDATE appointments AS a
		SET status = 'completed',
		    updated_at = now()
		FROM slots s
		WHERE s.id = a.slot_id
		  AND a.status = 'scheduled'
		  AND a.appointment_date + a.appointment_time + make_interval(mins => s.duration_minutes) <= $1::timestamp
		RETURNING `+appointmentColumns, cutoff)
	if err != nil {
		return nil, storageErr("complete appointments", err)
	}

	var completed []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("scan completed appointment", err)
		}
		completed = append(completed, *a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("complete appointments", err)
	}

	for _, a := range completed {
		if err := insertEvent(ctx, tx, a.ID, EventAppointmentCompleted, map[string]any{
			"reason": "slot_elapsed",
		}); err != nil {
			return nil, storageErr("completion event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit completion", err)
	}

	return completed, nil
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id int64) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, `+doctorColumns+`
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.id = $1
	`, id)

	detail, err := scanAppointmentDetail(row)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, storageErr("get appointment", err)
	}
	return detail, err
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID int64) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`, `+doctorColumns+`
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.patient_id = $1
		ORDER BY a.appointment_date ASC, a.appointment_time ASC, a.id ASC
	`, patientID)
	if err != nil {
		return nil, storageErr("list appointments by patient", err)
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, storageErr("scan appointment", err)
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("list appointments by patient", err)
	}

	return result, nil
}
