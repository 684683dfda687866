package handlers

import (
	"net/http"
	"strings"

	"github.com/moviescrud/backend/internal/catalog"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/models"
)

// PlaylistHandler serves playlists and their membership.
type PlaylistHandler struct {
	Playlists PlaylistService
}

// ListMine handles GET /api/v1/playlists: the caller's playlists, newest first.
func (h PlaylistHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlists, err := h.Playlists.ListMine(ctx, caller(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	respondJSON(ctx, w, http.StatusOK, playlistListResponse{Playlists: playlists})
}

// Create handles POST /api/v1/playlists.
func (h PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req catalog.PlaylistInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	playlist, err := h.Playlists.Create(ctx, caller(r), req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, playlist)
}

// Get handles GET /api/v1/playlists/{id}. Private playlists are only shown to
// their owner.
func (h PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	details, err := h.Playlists.ListForPlaylist(ctx, r.PathValue("id"), caller(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, details)
}

// Update handles PATCH /api/v1/playlists/{id}.
func (h PlaylistHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req catalog.PlaylistUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	playlist, err := h.Playlists.Update(ctx, caller(r), r.PathValue("id"), req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, playlist)
}

// Delete handles DELETE /api/v1/playlists/{id}.
func (h PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Playlists.Delete(ctx, caller(r), r.PathValue("id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	noContent(w)
}

// AddMovies handles POST /api/v1/playlists/{id}/movies. A body with movieId adds
// one movie; a body with movieIds adds all of them or none.
func (h PlaylistHandler) AddMovies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addMoviesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	playlistID := r.PathValue("id")
	single := strings.TrimSpace(req.MovieID)

	var err error
	switch {
	case single != "" && req.MovieIDs != nil:
		err = errs.Validation("send either movieId or movieIds")
	case single != "":
		err = h.Playlists.AddMovie(ctx, caller(r), playlistID, single)
		req.MovieIDs = []string{single}
	default:
		err = h.Playlists.AddMovies(ctx, caller(r), playlistID, req.MovieIDs)
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, membershipResponse{PlaylistID: playlistID, MovieIDs: req.MovieIDs})
}

// RemoveMovie handles DELETE /api/v1/playlists/{id}/movies/{movieId}. Removing a
// movie that is not in the playlist succeeds.
func (h PlaylistHandler) RemoveMovie(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Playlists.RemoveMovie(ctx, caller(r), r.PathValue("id"), r.PathValue("movieId")); err != nil {
		respondError(ctx, w, err)
		return
	}
	noContent(w)
}

type playlistListResponse struct {
	Playlists []models.Playlist `json:"playlists"`
}

type addMoviesRequest struct {
	MovieID  string   `json:"movieId"`
	MovieIDs []string `json:"movieIds"`
}

type membershipResponse struct {
	PlaylistID string   `json:"playlistId"`
	MovieIDs   []string `json:"movieIds"`
}
