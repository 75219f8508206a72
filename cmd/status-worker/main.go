package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("status-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("schedule", cfg.WorkerSchedule),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Completion never books, so the worker has no use for the slot lock.
	repo := appointment.NewPgRepository(pgPool, cfg.DBLockTimeout)
	svc := appointment.NewService(repo, redisclient.NopLocker{}, cfg, logger)

	w, err := worker.NewStatusWorker(svc, cfg.WorkerSchedule, 20*time.Second, logger)
	if err != nil {
		logger.Fatal("worker setup error", zap.Error(err))
	}

	w.Start(rootCtx)
	<-rootCtx.Done()

	logger.Info("shutdown signal received, stopping status worker")
	w.Stop()
}
