// Package errs contains the error taxonomy shared by the backend, the client SDK and the
// session machine.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates an ownership or visibility violation.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyMember indicates the movie is already part of the playlist.
	ErrAlreadyMember = fmt.Errorf("movie already in playlist: %w", ErrAlreadyExists)
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates malformed input caught before any backend call.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited indicates the caller exceeded the allowed request rate.
	ErrRateLimited = errors.New("rate limited")
)

// TransientError marks a network or timeout failure that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// Validation wraps a human readable reason as ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ItemError attributes a batch failure to the item that caused it.
type ItemError struct {
	ID  string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// FailedItem returns the id of the item a batch failed on, if err carries one.
func FailedItem(err error) (string, bool) {
	var item *ItemError
	if errors.As(err, &item) {
		return item.ID, true
	}
	return "", false
}
