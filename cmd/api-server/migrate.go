package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

func migrate(ctx context.Context, pool *pgxpool.Pool) (err error) {
	m, err := db.NewMigrator(pool)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, m.Close()) }()

	return m.Up(ctx)
}
