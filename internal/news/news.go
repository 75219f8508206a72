package news

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Item struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	PublishedOn string    `json:"published_on"`
	CreatedAt   time.Time `json:"created_at"`
}

type Repository interface {
	List(ctx context.Context, limit int) ([]Item, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// List returns the newest items first.
func (r *PgRepository) List(ctx context.Context, limit int) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, description, to_char(published_on, 'YYYY-MM-DD'), created_at
		FROM news
		ORDER BY published_on DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Item])
	if err != nil {
		return nil, fmt.Errorf("scan news: %w", err)
	}
	return items, nil
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List clamps limit into [1, MaxLimit]; zero means DefaultLimit.
func (s *Service) List(ctx context.Context, limit int) ([]Item, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	items, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}
