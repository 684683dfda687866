package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/moviescrud/backend/internal/errs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: errs.Validation("title is required"), status: http.StatusBadRequest, code: errs.CodeValidation},
		{name: "unauthorized", err: fmt.Errorf("login: %w", errs.ErrUnauthorized), status: http.StatusUnauthorized, code: errs.CodeUnauthorized},
		{name: "forbidden", err: errs.ErrForbidden, status: http.StatusForbidden, code: errs.CodeForbidden},
		{name: "not found", err: fmt.Errorf("movie: %w", errs.ErrNotFound), status: http.StatusNotFound, code: errs.CodeNotFound},
		{name: "already member", err: &errs.ItemError{ID: "m1", Err: errs.ErrAlreadyMember}, status: http.StatusConflict, code: errs.CodeAlreadyMember},
		{name: "already exists", err: errs.ErrAlreadyExists, status: http.StatusConflict, code: errs.CodeAlreadyExists},
		{name: "rate limited", err: errs.ErrRateLimited, status: http.StatusTooManyRequests, code: errs.CodeRateLimited},
		{name: "unknown", err: errors.New("disk on fire"), status: http.StatusInternalServerError, code: errs.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			if status != tt.status || code != tt.code {
				t.Fatalf("classify(%v) = %d %q, want %d %q", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}
