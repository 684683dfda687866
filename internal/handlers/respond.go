package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/middleware"
	"github.com/moviescrud/backend/internal/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Item  string `json:"item,omitempty"`
}

const maxJSONBody = 1 << 20

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError maps err onto a status code. Server side failures are logged
// with their cause and reported without it.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := classify(err)
	body := ErrorResponse{Error: err.Error(), Code: code}
	if item, ok := errs.FailedItem(err); ok {
		body.Item = item
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("request error", "error", err)
		body.Error = "internal error"
	}
	respondJSON(ctx, w, status, body)
}

var statusByCode = map[string]int{
	errs.CodeValidation:    http.StatusBadRequest,
	errs.CodeUnauthorized:  http.StatusUnauthorized,
	errs.CodeForbidden:     http.StatusForbidden,
	errs.CodeNotFound:      http.StatusNotFound,
	errs.CodeAlreadyExists: http.StatusConflict,
	errs.CodeAlreadyMember: http.StatusConflict,
	errs.CodeRateLimited:   http.StatusTooManyRequests,
}

func classify(err error) (int, string) {
	if errors.Is(err, storage.ErrUnavailable) {
		return http.StatusServiceUnavailable, errs.CodeInternal
	}
	code := errs.Code(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, errs.CodeInternal
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Validation("request body is required")
		}
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}

// caller returns the authenticated identity; routes guarantee one is present.
func caller(r *http.Request) string {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}

// upload opens the "file" part of a multipart request.
func upload(w http.ResponseWriter, r *http.Request, limit int64) (io.ReadCloser, string, int64, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxJSONBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", 0, errs.Validation("file exceeds %d bytes", limit)
		}
		return nil, "", 0, errs.Validation("multipart field %q is required: %v", "file", err)
	}
	return file, header.Filename, header.Size, nil
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
