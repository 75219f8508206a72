package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/validate"
)

// memRepo keeps the booking invariants with a mutex standing in for the
// postgres row lock.
type memRepo struct {
	mu       sync.Mutex
	patients map[int64]*Patient
	doctors  map[int64]*Doctor
	slots    []*Slot
	appts    map[int64]*Appointment
	nextID   int64

	bookCalls int
	bookErr   error
	cutoff    string
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients: map[int64]*Patient{},
		doctors:  map[int64]*Doctor{},
		appts:    map[int64]*Appointment{},
	}
}

func (m *memRepo) addDoctor(id int64, category string) {
	m.doctors[id] = &Doctor{ID: id, FirstName: fmt.Sprintf("Doc%d", id), LastName: "House", Category: category}
}

func (m *memRepo) addPatient(id int64) {
	m.patients[id] = &Patient{ID: id, Email: fmt.Sprintf("p%d@example.com", id), Role: "patient"}
}

func (m *memRepo) addSlot(doctorID int64, date, clock string, booked bool) {
	m.slots = append(m.slots, &Slot{
		ID:              int64(len(m.slots) + 1),
		DoctorID:        doctorID,
		Date:            date,
		Time:            clock,
		DurationMinutes: 30,
		Booked:          booked,
	})
}

func (m *memRepo) GetPatientByID(_ context.Context, id int64) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (m *memRepo) GetDoctorByID(_ context.Context, id int64) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (m *memRepo) ListDoctors(_ context.Context, category string) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doctor
	for _, d := range m.doctors {
		if category == "" || d.Category == category {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListSlotsByDoctors(_ context.Context, ids []int64) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []Slot
	for _, s := range m.slots {
		if want[s.DoctorID] {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DoctorID != b.DoctorID {
			return a.DoctorID < b.DoctorID
		}
		return a.Date+a.Time < b.Date+b.Time
	})
	return out, nil
}

func (m *memRepo) ListFreeDates(_ context.Context, doctorID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, s := range m.slots {
		if s.DoctorID == doctorID && !s.Booked && !seen[s.Date] {
			seen[s.Date] = true
			out = append(out, s.Date)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRepo) ListFreeTimes(_ context.Context, doctorID int64, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date == date && !s.Booked {
			out = append(out, s.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRepo) BookSlot(_ context.Context, req BookingRequest) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookCalls++
	if m.bookErr != nil {
		return nil, m.bookErr
	}

	var slot *Slot
	for _, s := range m.slots {
		if s.DoctorID == req.DoctorID && s.Date == req.Date && s.Time == req.Time {
			slot = s
		}
	}
	if slot == nil {
		return nil, ErrSlotNotFound
	}
	if slot.Booked {
		return nil, ErrSlotAlreadyBooked
	}

	slot.Booked = true
	m.nextID++
	now := time.Now()
	a := &Appointment{
		ID:        m.nextID,
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		SlotID:    slot.ID,
		Date:      req.Date,
		Time:      req.Time,
		Status:    StatusScheduled,
		Type:      req.Type,
		Comment:   req.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.appts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *memRepo) CancelAppointment(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, StatusCanceled)
	}
	a.Status = StatusCanceled
	for _, s := range m.slots {
		if s.ID == a.SlotID {
			s.Booked = false
		}
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) CompleteAppointmentsBefore(_ context.Context, cutoff string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoff = cutoff
	limit, err := time.Parse("2006-01-02 15:04:05", cutoff)
	if err != nil {
		return nil, err
	}

	var out []Appointment
	for _, a := range m.appts {
		start, _ := time.Parse("2006-01-02 15:04", a.Date+" "+a.Time)
		if a.Status == StatusScheduled && !start.Add(30*time.Minute).After(limit) {
			a.Status = StatusCompleted
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) GetAppointmentDetail(_ context.Context, id int64) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &AppointmentDetail{Appointment: *a, Doctor: *m.doctors[a.DoctorID]}, nil
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, patientID int64) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, AppointmentDetail{Appointment: *a, Doctor: *m.doctors[a.DoctorID]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date+out[i].Time < out[j].Date+out[j].Time
	})
	return out, nil
}

type stubLocker struct {
	err    error
	called bool
}

func (l *stubLocker) WithSlotLock(_ context.Context, _ string, _ func(context.Context) error) error {
	l.called = true
	return l.err
}

func newTestService(repo Repository, locker redisclient.Locker) *Service {
	return NewService(repo, locker, config.Config{BookingTimeout: time.Second}, zap.NewNop())
}

func seededRepo() *memRepo {
	repo := newMemRepo()
	repo.addDoctor(1, "Cardiology")
	repo.addDoctor(2, "Neurology")
	repo.addPatient(7)
	repo.addPatient(8)
	repo.addSlot(1, "2024-11-20", "10:00", false)
	repo.addSlot(1, "2024-11-20", "09:30", false)
	repo.addSlot(1, "2024-11-20", "11:00", true)
	repo.addSlot(1, "2024-11-21", "10:00", false)
	repo.addSlot(1, "2024-11-22", "10:00", true)
	return repo
}

func booking(patientID int64, date, clock string) BookingRequest {
	return BookingRequest{PatientID: patientID, DoctorID: 1, Date: date, Time: clock, Type: TypeOnline}
}

func TestListFreeDatesSkipsFullyBookedDays(t *testing.T) {
	svc := newTestService(seededRepo(), nil)

	dates, err := svc.ListFreeDates(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-11-20", "2024-11-21"}, dates)
}

func TestListFreeDatesUnknownDoctorIsEmpty(t *testing.T) {
	svc := newTestService(seededRepo(), nil)

	dates, err := svc.ListFreeDates(context.Background(), 404)
	require.NoError(t, err)
	assert.NotNil(t, dates)
	assert.Empty(t, dates)
}

func TestListFreeTimesExcludesBookedSlots(t *testing.T) {
	svc := newTestService(seededRepo(), nil)

	times, err := svc.ListFreeTimes(context.Background(), 1, "2024-11-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:30", "10:00"}, times)
	assert.NotContains(t, times, "11:00")
}

func TestAvailabilityRejectsBadInput(t *testing.T) {
	svc := newTestService(seededRepo(), nil)
	ctx := context.Background()

	_, err := svc.ListFreeDates(ctx, 0)
	assert.ErrorIs(t, err, validate.ErrInvalid)

	_, err = svc.ListFreeTimes(ctx, 1, "20.11.2024")
	assert.ErrorIs(t, err, validate.ErrInvalid)
}

func TestBookSlotScenario(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	appt, err := svc.BookSlot(ctx, BookingRequest{
		PatientID: 7, DoctorID: 1, Date: "2024-11-20", Time: "10:00", Type: TypeOnline,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), appt.ID)
	assert.Equal(t, StatusScheduled, appt.Status)

	times, err := svc.ListFreeTimes(ctx, 1, "2024-11-20")
	require.NoError(t, err)
	assert.NotContains(t, times, "10:00")

	detail, err := svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), detail.DoctorID)
	assert.Equal(t, "2024-11-20", detail.Date)
	assert.Equal(t, "10:00", detail.Time)
	assert.Equal(t, TypeOnline, detail.Type)
	assert.Equal(t, "Cardiology", detail.Doctor.Category)

	list, err := svc.ListAppointmentsByPatient(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, appt.ID, list[0].ID)
}

func TestBookSlotTwiceFailsSecondTime(t *testing.T) {
	svc := newTestService(seededRepo(), nil)
	ctx := context.Background()
	req := booking(7, "2024-11-20", "10:00")

	_, err := svc.BookSlot(ctx, req)
	require.NoError(t, err)

	_, err = svc.BookSlot(ctx, req)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookSlotConcurrentSingleWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lockers := map[string]redisclient.Locker{
		"database only": redisclient.NopLocker{},
		"redis lock":    redisclient.NewRedisSlotLocker(rdb, 5*time.Second),
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			repo := seededRepo()
			for id := int64(100); id < 132; id++ {
				repo.addPatient(id)
			}
			svc := newTestService(repo, locker)

			const n = 32
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				conflicts int
			)
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(patientID int64) {
					defer wg.Done()
					<-start
					_, err := svc.BookSlot(context.Background(), booking(patientID, "2024-11-21", "10:00"))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, ErrSlotUnavailable):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(int64(100 + i))
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, n-1, conflicts)

			times, err := svc.ListFreeTimes(context.Background(), 1, "2024-11-21")
			require.NoError(t, err)
			assert.Empty(t, times)
		})
	}
}

func TestBookSlotValidation(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)

	cases := map[string]BookingRequest{
		"missing patient": {DoctorID: 1, Date: "2024-11-20", Time: "10:00", Type: TypeOnline},
		"bad date":        {PatientID: 7, DoctorID: 1, Date: "2024/11/20", Time: "10:00", Type: TypeOnline},
		"bad time":        {PatientID: 7, DoctorID: 1, Date: "2024-11-20", Time: "10am", Type: TypeOnline},
		"bad type":        {PatientID: 7, DoctorID: 1, Date: "2024-11-20", Time: "10:00", Type: "phone"},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.BookSlot(context.Background(), req)
			assert.ErrorIs(t, err, validate.ErrInvalid)
		})
	}
	assert.Zero(t, repo.bookCalls)
}

func TestBookSlotInvalidReferences(t *testing.T) {
	svc := newTestService(seededRepo(), nil)
	ctx := context.Background()

	req := booking(7, "2024-11-20", "10:00")
	req.DoctorID = 99
	_, err := svc.BookSlot(ctx, req)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = svc.BookSlot(ctx, booking(99, "2024-11-20", "10:00"))
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = svc.BookSlot(ctx, booking(7, "2024-11-20", "16:45"))
	assert.ErrorIs(t, err, ErrSlotNotFound)
	assert.False(t, errors.Is(err, ErrSlotUnavailable))
}

func TestBookSlotLockContention(t *testing.T) {
	repo := seededRepo()
	locker := &stubLocker{err: redisclient.ErrLockNotAcquired}
	svc := newTestService(repo, locker)

	_, err := svc.BookSlot(context.Background(), booking(7, "2024-11-20", "10:00"))
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Zero(t, repo.bookCalls)
}

func TestBookSlotFallsBackWhenLockBackendDown(t *testing.T) {
	repo := seededRepo()
	locker := &stubLocker{err: fmt.Errorf("%w: dial tcp: refused", redisclient.ErrLockUnavailable)}
	svc := newTestService(repo, locker)

	appt, err := svc.BookSlot(context.Background(), booking(7, "2024-11-20", "10:00"))
	require.NoError(t, err)
	assert.True(t, locker.called)
	assert.Equal(t, 1, repo.bookCalls)
	assert.Equal(t, StatusScheduled, appt.Status)
}

func TestBookSlotTransientFailure(t *testing.T) {
	repo := seededRepo()
	repo.bookErr = fmt.Errorf("commit booking: %w: %w", ErrTransientStorage, errors.New("conn reset"))
	svc := newTestService(repo, nil)

	_, err := svc.BookSlot(context.Background(), booking(7, "2024-11-20", "10:00"))
	assert.ErrorIs(t, err, ErrTransientStorage)
	assert.False(t, errors.Is(err, ErrSlotUnavailable))
}

func TestGetAppointmentNotFound(t *testing.T) {
	svc := newTestService(seededRepo(), nil)

	_, err := svc.GetAppointment(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAppointmentsByPatientOrdered(t *testing.T) {
	svc := newTestService(seededRepo(), nil)
	ctx := context.Background()

	_, err := svc.BookSlot(ctx, booking(7, "2024-11-21", "10:00"))
	require.NoError(t, err)
	_, err = svc.BookSlot(ctx, booking(7, "2024-11-20", "10:00"))
	require.NoError(t, err)
	_, err = svc.BookSlot(ctx, booking(7, "2024-11-20", "09:30"))
	require.NoError(t, err)

	list, err := svc.ListAppointmentsByPatient(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2024-11-20 09:30", list[0].Date+" "+list[0].Time)
	assert.Equal(t, "2024-11-20 10:00", list[1].Date+" "+list[1].Time)
	assert.Equal(t, "2024-11-21 10:00", list[2].Date+" "+list[2].Time)

	empty, err := svc.ListAppointmentsByPatient(ctx, 8)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCancelReturnsSlotToPool(t *testing.T) {
	svc := newTestService(seededRepo(), nil)
	ctx := context.Background()

	appt, err := svc.BookSlot(ctx, booking(7, "2024-11-20", "10:00"))
	require.NoError(t, err)

	canceled, err := svc.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	times, err := svc.ListFreeTimes(ctx, 1, "2024-11-20")
	require.NoError(t, err)
	assert.Contains(t, times, "10:00")

	_, err = svc.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	rebooked, err := svc.BookSlot(ctx, booking(8, "2024-11-20", "10:00"))
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, rebooked.ID)
}

func TestCompletePastAppointments(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.BookSlot(ctx, booking(7, "2024-11-20", "09:30"))
	require.NoError(t, err)
	_, err = svc.BookSlot(ctx, booking(7, "2024-11-21", "10:00"))
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2024, 11, 20, 10, 0, 0, 0, time.UTC) }

	n, err := svc.CompletePastAppointments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "2024-11-20 10:00:00", repo.cutoff)

	list, err := svc.ListAppointmentsByPatient(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, list[0].Status)
	assert.Equal(t, StatusScheduled, list[1].Status)
}

func TestListDoctorsGroupsSlotsByDate(t *testing.T) {
	svc := newTestService(seededRepo(), nil)

	doctors, err := svc.ListDoctors(context.Background(), "Cardiology")
	require.NoError(t, err)
	require.Len(t, doctors, 1)

	days := doctors[0].Days
	require.Len(t, days, 3)
	assert.Equal(t, "2024-11-20", days[0].Date)
	assert.Equal(t, []SlotSummary{
		{Time: "09:30", DurationMinutes: 30},
		{Time: "10:00", DurationMinutes: 30},
		{Time: "11:00", DurationMinutes: 30, Booked: true},
	}, days[0].Slots)

	all, err := svc.ListDoctors(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Empty(t, all[1].Days)
}

// stalledRepo never finishes a transaction on its own; it gives up only when
// the context it was handed is done.
type stalledRepo struct {
	*memRepo

	mu        sync.Mutex
	deadlines []time.Time
}

func (r *stalledRepo) wait(ctx context.Context, op string) error {
	deadline, ok := ctx.Deadline()
	r.mu.Lock()
	if ok {
		r.deadlines = append(r.deadlines, deadline)
	}
	r.mu.Unlock()

	<-ctx.Done()
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStorage, ctx.Err())
}

func (r *stalledRepo) BookSlot(ctx context.Context, _ BookingRequest) (*Appointment, error) {
	return nil, r.wait(ctx, "book slot")
}

func (r *stalledRepo) CancelAppointment(ctx context.Context, _ int64) (*Appointment, error) {
	return nil, r.wait(ctx, "cancel appointment")
}

func TestStorageCallsAreBoundedByBookingTimeout(t *testing.T) {
	const timeout = 50 * time.Millisecond
	repo := &stalledRepo{memRepo: seededRepo()}
	svc := NewService(repo, nil, config.Config{BookingTimeout: timeout}, zap.NewNop())

	start := time.Now()
	_, err := svc.BookSlot(context.Background(), booking(7, "2024-11-20", "10:00"))
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTransientStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 2*time.Second)

	start = time.Now()
	_, err = svc.CancelAppointment(context.Background(), 1)
	elapsed = time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 2*time.Second)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.deadlines, 2, "every storage call carries a deadline")
	for _, d := range repo.deadlines {
		assert.WithinDuration(t, start.Add(timeout), d, time.Second)
	}
}
