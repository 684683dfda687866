package handlers

import (
	"net/http"
	"strings"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/storage"
)

// ProfileHandler serves the public profile attached to every identity.
type ProfileHandler struct {
	Profiles ProfileService
}

// Get handles GET /api/v1/profiles/{id}.
func (h ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if id == "me" {
		id = caller(r)
		if id == "" {
			respondError(ctx, w, errs.ErrUnauthorized)
			return
		}
	}

	profile, err := h.Profiles.Get(ctx, id)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// Create handles POST /api/v1/profiles. The profile always belongs to the
// caller; an empty username is derived from the identity.
func (h ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Profiles.Create(ctx, caller(r), req.Username)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, profile)
}

// UpdateMe handles PATCH /api/v1/profiles/me.
func (h ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Profiles.UpdateUsername(ctx, caller(r), req.Username)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// ReplaceAvatar handles PUT /api/v1/profiles/me/avatar with a multipart "file" field.
func (h ProfileHandler) ReplaceAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file, name, size, err := upload(w, r, storage.Avatar.MaxBytes)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	defer file.Close()

	profile, err := h.Profiles.ReplaceAvatar(ctx, caller(r), name, size, file)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// Availability handles GET /api/v1/profiles/availability?username=.
func (h ProfileHandler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	available, err := h.Profiles.UsernameAvailable(ctx, username)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, availabilityResponse{Username: username, Available: available})
}

type usernameRequest struct {
	Username string `json:"username"`
}

type availabilityResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}
