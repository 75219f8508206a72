package account

import (
	"errors"
	"time"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("reset token is invalid or expired")

	ErrInvalidVerificationToken = errors.New("verification token is invalid or expired")
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`

	EmailVerifiedAt *time.Time `json:"email_verified_at"`
}

func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

type Profile struct {
	UserID    int64   `json:"user_id"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	SNILS     *string `json:"snils"`
	Gender    *string `json:"gender"`
	BirthDate *string `json:"birth_date"`
	Phone     *string `json:"phone"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Surname  string `json:"surname" validate:"max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// UpdateProfileRequest changes only the fields that are set.
type UpdateProfileRequest struct {
	FirstName   *string `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,max=100"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Email       *string `json:"email" validate:"omitempty,email,max=254"`
	NewPassword *string `json:"new_password" validate:"omitempty,min=8,max=72"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type SendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// ProfileChanges is what the repository applies; nil fields stay untouched.
type ProfileChanges struct {
	FirstName    *string
	LastName     *string
	Phone        *string
	Email        *string
	PasswordHash *string
}
