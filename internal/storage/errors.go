package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"oncocentre/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint rejection from
// either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Translate maps driver and GORM errors onto sentinel errors, keeping the
// original in the chain. op names the failing operation for the message.
func Translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	case IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
}
