package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgconn"
)

// SQLSTATE codes
const (
	codeUniqueViolation  = "23505"
	codeQueryCanceled    = "57014"
	codeAdminShutdown    = "57P01"
	codeCannotConnectNow = "57P03"

	// Classes
	classConnectionException   = "08"
	classTransactionRollback   = "40"
	classInsufficientResources = "53"
)

var (
	ErrNotFound = errors.New("not found")

	// Another process holds the advisory lock
	ErrLocked = errors.New("locked by another process")

	// Connection or serialization failure, safe to retry the whole unit of work
	ErrRetryable = errors.New("retryable database error")

	ErrInvalidTransition = errors.New("invalid status transition")
)

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRetryable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := ""
		if len(pgErr.Code) >= 2 {
			class = pgErr.Code[:2]
		}
		return class == classConnectionException ||
			class == classTransactionRollback ||
			class == classInsufficientResources ||
			pgErr.Code == codeAdminShutdown ||
			pgErr.Code == codeCannotConnectNow ||
			pgErr.Code == codeQueryCanceled
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Marks errors that may be retried
func classify(err error) error {
	if err == nil || errors.Is(err, ErrRetryable) || !IsRetryable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
