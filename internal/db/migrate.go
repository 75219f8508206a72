package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Migrator wraps goose on top of an existing pgx pool.
type Migrator struct {
	db *sql.DB
}

func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}

	// goose works on *sql.DB, so expose the pool through the pgx stdlib adapter
	return &Migrator{db: stdlib.OpenDBFromPool(pool)}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := goose.DownContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

func (m *Migrator) Status(ctx context.Context) error {
	if err := goose.StatusContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Close closes the sql.DB wrapper; the pool itself stays owned by the caller.
func (m *Migrator) Close() error {
	return m.db.Close()
}
