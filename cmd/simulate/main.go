package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
}

type freeSlot struct {
	DoctorID int64
	Date     string
	Time     string
}

type patient struct {
	ID    int64
	Token string
}

type createdAppointment struct {
	ID      int64
	Patient patient
}

type DataPool struct {
	Patients []patient
	Slots    []freeSlot

	mu           sync.RWMutex
	appointments []createdAppointment
}

func (dp *DataPool) AddAppointment(a createdAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (createdAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return createdAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95), pct(99)
}

type Metrics struct {
	Booking       OperationMetrics
	Cancel        OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	Availability  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(baseCfg.Env)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	tokens := auth.NewTokenManager(baseCfg.JWTSecret, cfg.Duration+time.Hour)
	dataPool, err := loadDataPool(ctx, pgPool, tokens, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data loaded", zap.Int("patients", len(dataPool.Patients)), zap.Int("free_slots", len(dataPool.Slots)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 500),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool picks patients and a deliberately small set of free slots so
// that workers collide on the same slots.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, tokens *auth.TokenManager, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id, email, COALESCE(name, '') FROM users WHERE role = 'patient' ORDER BY id LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var (
			id          int64
			email, name string
		)
		if err := rows.Scan(&id, &email, &name); err != nil {
			rows.Close()
			return nil, err
		}
		token, _, err := tokens.Issue(id, email, name, auth.RolePatient)
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, patient{ID: id, Token: token})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT doctor_id, to_char(slot_date, 'YYYY-MM-DD'), to_char(slot_time, 'HH24:MI')
		FROM slots
		WHERE NOT is_booked AND slot_date >= CURRENT_DATE
		ORDER BY slot_date, slot_time
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	dataPool.Slots, err = pgx.CollectRows(rows, pgx.RowToStructByPos[freeSlot])
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no free slots loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByPatient(ctx, rng)
			case 2:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

// call performs one request and returns the status code, or 0 on transport error.
func (s *Simulator) call(ctx context.Context, method, path, token string, body any, out any) int {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var created struct {
		ID int64 `json:"id"`
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/appointments", p.Token, map[string]any{
		"patient_id":       p.ID,
		"doctor_id":        slot.DoctorID,
		"appointment_date": slot.Date,
		"appointment_time": slot.Time,
		"appointment_type": "in-person",
	}, &created)
	latency := time.Since(start)

	if status == http.StatusCreated && created.ID > 0 {
		s.pool.AddAppointment(createdAppointment{ID: created.ID, Patient: p})
	}
	s.metrics.Booking.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/cancel", appt.ID), appt.Patient.Token, nil, nil)
	s.metrics.Cancel.Record(time.Since(start), status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodGet, fmt.Sprintf("/appointments/%d", appt.ID), appt.Patient.Token, nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status := s.call(ctx, http.MethodGet, fmt.Sprintf("/appointments/user/%d", p.ID), p.Token, nil, nil)
	s.metrics.ListByPatient.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/doctors/%d/available-times?date=%s", slot.DoctorID, slot.Date), p.Token, nil, nil)
	s.metrics.Availability.Record(time.Since(start), status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Availability", &s.metrics.Availability)

	booked := atomic.LoadInt64(&s.metrics.Booking.Success)
	canceled := atomic.LoadInt64(&s.metrics.Cancel.Success)
	if active := booked - canceled; active > int64(len(s.pool.Slots)) {
		fmt.Printf("WARNING: %d active bookings for %d slots, double booking detected\n", active, len(s.pool.Slots))
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
