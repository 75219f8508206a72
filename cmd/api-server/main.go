package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/account"
	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	"github.com/hackgods/clinic-appointment-booking/internal/mail"
	"github.com/hackgods/clinic-appointment-booking/internal/news"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
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

	if cfg.MigrateOnStart {
		if err := migrate(rootCtx, pgPool); err != nil {
			logger.Fatal("migration error", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	var locker redisclient.Locker = redisclient.NopLocker{}
	if cfg.RedisLock {
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	}

	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.SMTPEnabled() {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	resets := redisclient.NewTokenStore(rdb, "reset:", cfg.ResetTokenTTL)
	verifications := redisclient.NewTokenStore(rdb, "verify:", cfg.VerifyTokenTTL)

	appointments := appointment.NewService(
		appointment.NewPgRepository(pgPool, cfg.DBLockTimeout), locker, cfg, logger)
	accounts := account.NewService(
		account.NewPgRepository(pgPool), tokens, resets, verifications, mailer, cfg, logger)
	newsFeed := news.NewService(news.NewPgRepository(pgPool))

	router := api.NewRouter(api.RouterConfig{
		Appointments:   appointments,
		Accounts:       accounts,
		News:           newsFeed,
		Tokens:         tokens,
		Health:         api.NewHealthHandler(pgPool, api.RedisPinger{Client: rdb}, cfg.Env, version),
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
