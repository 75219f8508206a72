package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, COALESCE(name, ''), email, password_hash, role, created_at, email_verified_at`

const profileQuery = `
	SELECT p.user_id, u.email, p.first_name, p.last_name, p.snils, p.gender,
	       to_char(p.birth_date, 'YYYY-MM-DD'), p.phone
	FROM patient_profiles p
	JOIN users u ON u.id = p.user_id
	WHERE p.user_id = $1
`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.EmailVerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.Email, &p.FirstName, &p.LastName, &p.SNILS, &p.Gender, &p.BirthDate, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, name, surname, email, passwordHash string) (*User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		name, email, passwordHash, auth.RolePatient,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO patient_profiles (user_id, first_name, last_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
	`, user.ID, name, surname)
	if err != nil {
		return nil, fmt.Errorf("insert patient profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return user, nil
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, err
}

func (r *PgRepository) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	profile, err := scanProfile(r.pool.QueryRow(ctx, profileQuery, userID))
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, err
}

func (r *PgRepository) UpdateProfile(ctx context.Context, userID int64, c ProfileChanges) (*Profile, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE patient_profiles
		SET first_name = COALESCE($2::text, first_name),
		    last_name  = COALESCE($3::text, last_name),
		    phone      = COALESCE($4::text, phone),
		    updated_at = now()
		WHERE user_id = $1
	`, userID, c.FirstName, c.LastName, c.Phone)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProfileNotFound
	}

	if c.Email != nil || c.PasswordHash != nil {
		_, err = tx.Exec(ctx, `
			UPDATE users
			SET email         = COALESCE($2::text, email),
			    password_hash = COALESCE($3::text, password_hash),
			    updated_at    = now()
			WHERE id = $1
		`, userID, c.Email, c.PasswordHash)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return nil, ErrEmailTaken
			}
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	profile, err := scanProfile(tx.QueryRow(ctx, profileQuery, userID))
	if err != nil {
		return nil, fmt.Errorf("reload profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return profile, nil
}

func (r *PgRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PgRepository) MarkEmailVerified(ctx context.Context, userID int64) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET email_verified_at = COALESCE(email_verified_at, now()),
		    updated_at        = now()
		WHERE id = $1
		RETURNING `+userColumns,
		userID,
	))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("mark email verified: %w", err)
	}
	return user, err
}
