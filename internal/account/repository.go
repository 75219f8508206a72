package account

import "context"

type Repository interface {
	// CreatePatient inserts the user and an empty patient profile in one transaction.
	CreatePatient(ctx context.Context, name, surname, email, passwordHash string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
	UpdateProfile(ctx context.Context, userID int64, changes ProfileChanges) (*Profile, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	// MarkEmailVerified stamps the user's address as confirmed; an already
	// verified address keeps its original timestamp.
	MarkEmailVerified(ctx context.Context, userID int64) (*User, error)
}
