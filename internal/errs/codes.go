package errs

import "errors"

// Wire codes name a sentinel across the HTTP boundary.
const (
	CodeValidation    = "validation"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeAlreadyMember = "already_member"
	CodeRateLimited   = "rate_limited"
	CodeInternal      = "internal"
)

var codes = []struct {
	code     string
	sentinel error
}{
	// ErrAlreadyMember wraps ErrAlreadyExists, so it has to be matched first.
	{CodeAlreadyMember, ErrAlreadyMember},
	{CodeValidation, ErrValidation},
	{CodeUnauthorized, ErrUnauthorized},
	{CodeForbidden, ErrForbidden},
	{CodeNotFound, ErrNotFound},
	{CodeAlreadyExists, ErrAlreadyExists},
	{CodeRateLimited, ErrRateLimited},
}

// Code returns the wire code of the sentinel err wraps, or CodeInternal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode returns the sentinel named by code, or nil for unknown codes.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.sentinel
		}
	}
	return nil
}
