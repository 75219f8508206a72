package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

const usage = `usage: migrate [up|down|status|version]`

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()

	m, err := db.NewMigrator(pool)
	if err != nil {
		logger.Fatal("migrator setup error", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "status":
		err = m.Status(ctx)
	case "version":
		var v int64
		v, err = m.Version(ctx)
		if err == nil {
			fmt.Println(v)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal("migrate failed", zap.String("command", command), zap.Error(err))
	}
	logger.Info("migrate done", zap.String("command", command))
}
