package e

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func Wrap(message string, err error) error {
	return fmt.Errorf("%s: %w", message, err)
}

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
	ErrDeadline        = errors.New("deadline exceeded")
	ErrCanceled        = errors.New("context canceled")
	ErrUnavailable     = errors.New("remote unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadySyncing  = errors.New("sync already in progress")
	ErrEventQueueEmpty = errors.New("event queue is empty")
)

// Invalid wraps ErrInvalidInput with the offending field so it can be reported back.
func Invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}

// WrapError maps a storage error onto the sentinels above so handlers can pick
// a status code without knowing the driver. A failure after ctx is done is
// reported as the context error even if the driver said something else.
func WrapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return fmt.Errorf("%s: %w", op, ErrDeadline)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, ErrCanceled)
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, pgSentinel(pgErr))
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	if ctx != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return fmt.Errorf("%s: %w", op, ErrDeadline)
		case context.Canceled:
			return fmt.Errorf("%s: %w", op, ErrCanceled)
		}
	}
	return fmt.Errorf("%s: %w", op, ErrInternal)
}

func pgSentinel(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName != "" {
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
		return ErrConflict
	case "23502", "23514", "22P02", "22003":
		return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.Message)
	case "57014":
		return ErrDeadline
	case "57P01", "57P03":
		return ErrUnavailable
	}
	// Class 08 is connection exceptions.
	if strings.HasPrefix(pgErr.Code, "08") {
		return ErrUnavailable
	}
	return fmt.Errorf("pg error %s: %w", pgErr.Code, ErrInternal)
}
