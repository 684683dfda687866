package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/moviescrud/backend/internal/errs"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// malformed uuid literals name no row
const invalidTextRepresentation = "22P02"

// mapError translates driver errors into the shared taxonomy. op names the
// failed statement for the wrapped message.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
		case foreignKeyViolation, invalidTextRepresentation:
			return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
		case checkViolation:
			return fmt.Errorf("%s: %w: %s", op, errs.ErrValidation, pgErr.ConstraintName)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w", op, errs.Transient(err))
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
