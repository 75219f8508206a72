package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

// Every seeded account shares this password.
const demoPassword = "password123"

var categories = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type seedOptions struct {
	doctors  int
	patients int
	days     int
	news     int
}

func main() {
	var opts seedOptions
	flag.IntVar(&opts.doctors, "doctors", 40, "number of doctors")
	flag.IntVar(&opts.patients, "patients", 2000, "number of patients")
	flag.IntVar(&opts.days, "days", 14, "days of slots to generate per doctor")
	flag.IntVar(&opts.news, "news", 10, "number of news items")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()
	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("hash demo password", zap.Error(err))
	}

	s := &seeder{pool: pool, logger: logger, hash: string(hash), loc: cfg.Location}
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"staff", s.seedStaff},
		{"doctors", func(ctx context.Context) error { return s.seedDoctors(ctx, opts.doctors, opts.days) }},
		{"patients", func(ctx context.Context) error { return s.seedPatients(ctx, opts.patients) }},
		{"news", func(ctx context.Context) error { return s.seedNews(ctx, opts.news) }},
	}

	for _, step := range steps {
		if err := step.run(context.Background()); err != nil {
			logger.Fatal("seed failed", zap.String("step", step.name), zap.Error(err))
		}
	}

	logger.Info("seed complete", zap.String("password", demoPassword))
}

type seeder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	hash   string
	loc    *time.Location
}

func (s *seeder) seedStaff(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (name, email, password_hash, role, email_verified_at)
		VALUES ('Clinic Admin', 'admin@clinic.local', $1, 'admin', now())
		ON CONFLICT (email) DO NOTHING
	`, s.hash)
	if err != nil {
		return err
	}

	s.logger.Info("staff seeded", zap.String("email", "admin@clinic.local"))
	return nil
}

func (s *seeder) seedDoctors(ctx context.Context, count, days int) error {
	s.logger.Info("seeding doctors", zap.Int("count", count), zap.Int("days", days))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := time.Now().In(s.loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var slotRows [][]any
	for i := 0; i < count; i++ {
		var doctorID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO doctors (first_name, last_name, category, address)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`,
			gofakeit.FirstName(),
			gofakeit.LastName(),
			categories[gofakeit.Number(0, len(categories)-1)],
			fmt.Sprintf("%s, room %d", gofakeit.Street(), gofakeit.Number(100, 450)),
		).Scan(&doctorID)
		if err != nil {
			return err
		}

		for d := 1; d <= days; d++ {
			day := start.AddDate(0, 0, d)
			if day.Weekday() == time.Sunday {
				continue
			}
			// 09:00 to 16:30 in half-hour steps
			for minute := 9 * 60; minute < 17*60; minute += 30 {
				slotRows = append(slotRows, []any{
					doctorID,
					day,
					pgtype.Time{Microseconds: int64(minute) * 60 * 1_000_000, Valid: true},
					30,
				})
			}
		}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"slots"},
		[]string{"doctor_id", "slot_date", "slot_time", "duration_minutes"},
		pgx.CopyFromRows(slotRows),
	)
	if err != nil {
		return fmt.Errorf("copy slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("doctors seeded", zap.Int("doctors", count), zap.Int64("slots", n))
	return nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.logger.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			first := gofakeit.FirstName()
			last := gofakeit.LastName()
			email := fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), i)

			batch.Queue(`
				WITH u AS (
					INSERT INTO users (name, email, password_hash, role, email_verified_at)
					VALUES ($1, $2, $3, 'patient', now())
					ON CONFLICT (email) DO NOTHING
					RETURNING id
				)
				INSERT INTO patient_profiles (user_id, first_name, last_name, gender, birth_date, phone)
				SELECT id, $4, $5, $6, $7::date, $8 FROM u
			`,
				first+" "+last,
				email,
				s.hash,
				first,
				last,
				gofakeit.Gender(),
				gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-18, 0, 0)).Format("2006-01-02"),
				gofakeit.Phone(),
			)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}

		s.logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}

func (s *seeder) seedNews(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO news (title, description, published_on)
			VALUES ($1, $2, $3::date)
		`,
			fmt.Sprintf("%s department: %s", categories[gofakeit.Number(0, len(categories)-1)], gofakeit.BuzzWord()),
			gofakeit.HackerPhrase(),
			time.Now().AddDate(0, 0, -i).Format("2006-01-02"),
		)
		if err != nil {
			return err
		}
	}

	s.logger.Info("news seeded", zap.Int("count", count))
	return nil
}
