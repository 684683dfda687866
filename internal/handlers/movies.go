package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/moviescrud/backend/internal/catalog"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/storage"
)

// MovieHandler serves the movie catalog.
type MovieHandler struct {
	Movies    MovieService
	Favorites FavoriteService
	Playlists PlaylistService
}

// List handles GET /api/v1/movies. Supported query parameters: q, genre,
// yearFrom, yearTo, minScore, owner (an identity id or "me"), sort, order and limit.
func (h MovieHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := movieFilter(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	movies, err := h.Movies.List(ctx, filter)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, newMovieList(movies))
}

// Create handles POST /api/v1/movies.
func (h MovieHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req catalog.MovieInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	movie, err := h.Movies.Create(ctx, caller(r), req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, movie)
}

// Get handles GET /api/v1/movies/{id}.
func (h MovieHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movie, err := h.Movies.View(ctx, r.PathValue("id"), caller(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, movie)
}

// Update handles PATCH /api/v1/movies/{id}.
func (h MovieHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req catalog.MovieUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	movie, err := h.Movies.Update(ctx, caller(r), r.PathValue("id"), req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, movie)
}

// Delete handles DELETE /api/v1/movies/{id}.
func (h MovieHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Movies.Delete(ctx, caller(r), r.PathValue("id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	noContent(w)
}

// UploadPortrait handles PUT /api/v1/movies/{id}/portrait with a multipart "file" field.
func (h MovieHandler) UploadPortrait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file, name, size, err := upload(w, r, storage.Portrait.MaxBytes)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	defer file.Close()

	movie, err := h.Movies.UploadPortrait(ctx, caller(r), r.PathValue("id"), name, size, file)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, movie)
}

// ToggleFavorite handles POST /api/v1/movies/{id}/favorite and reports the new state.
func (h MovieHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movieID := r.PathValue("id")
	favorited, err := h.Favorites.Toggle(ctx, caller(r), movieID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, favoriteResponse{MovieID: movieID, Favorited: favorited})
}

// FavoriteStatus handles GET /api/v1/movies/{id}/favorite.
func (h MovieHandler) FavoriteStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movieID := r.PathValue("id")
	favorited, err := h.Favorites.IsFavorited(ctx, caller(r), movieID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, favoriteResponse{MovieID: movieID, Favorited: favorited})
}

// ListFavorites handles GET /api/v1/favorites.
func (h MovieHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movies, err := h.Favorites.List(ctx, caller(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, newMovieList(movies))
}

// PlaylistsContaining handles GET /api/v1/movies/{id}/playlists: the caller's
// playlists that hold the movie.
func (h MovieHandler) PlaylistsContaining(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.Playlists.ListPlaylistsContaining(ctx, caller(r), r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, playlistIDsResponse{PlaylistIDs: ids})
}

func movieFilter(r *http.Request) (models.MovieFilter, error) {
	q := r.URL.Query()
	filter := models.MovieFilter{
		Query:    q.Get("q"),
		Genre:    q.Get("genre"),
		OwnerID:  q.Get("owner"),
		SortBy:   q.Get("sort"),
		SortDesc: strings.EqualFold(q.Get("order"), "desc"),
		ViewerID: caller(r),
	}
	if filter.OwnerID == "me" {
		if filter.ViewerID == "" {
			return models.MovieFilter{}, errs.ErrUnauthorized
		}
		filter.OwnerID = filter.ViewerID
	}

	var err error
	if filter.YearFrom, err = intParam(q.Get("yearFrom"), "yearFrom"); err != nil {
		return models.MovieFilter{}, err
	}
	if filter.YearTo, err = intParam(q.Get("yearTo"), "yearTo"); err != nil {
		return models.MovieFilter{}, err
	}
	if raw := q.Get("minScore"); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.MovieFilter{}, errs.Validation("minScore must be a number")
		}
		filter.MinScore = &score
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return models.MovieFilter{}, errs.Validation("limit must be an integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func intParam(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errs.Validation("%s must be an integer", name)
	}
	return &v, nil
}

type movieListResponse struct {
	Movies []models.MovieView `json:"movies"`
}

func newMovieList(movies []models.MovieView) movieListResponse {
	if movies == nil {
		movies = []models.MovieView{}
	}
	return movieListResponse{Movies: movies}
}

type favoriteResponse struct {
	MovieID   string `json:"movieId"`
	Favorited bool   `json:"favorited"`
}

type playlistIDsResponse struct {
	PlaylistIDs []string `json:"playlistIds"`
}
