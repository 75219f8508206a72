package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the repositories react to.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeLockNotAvailable     = "55P03"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeQueryCanceled        = "57014"
	CodeAdminShutdown        = "57P01"
	CodeCannotConnectNow     = "57P03"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ConstraintName returns the violated constraint, if the error carries one.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == CodeUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == CodeForeignKeyViolation
}

func IsLockNotAvailable(err error) bool {
	return pgCode(err) == CodeLockNotAvailable
}

// IsTransient reports failures a caller may retry: timeouts, lost connections,
// serialization conflicts and deadlocks.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	switch pgCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeQueryCanceled,
		CodeAdminShutdown, CodeCannotConnectNow:
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
