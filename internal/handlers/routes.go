package handlers

import (
	"net/http"

	"github.com/moviescrud/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts  AccountService
	Profiles  ProfileService
	Movies    MovieService
	Favorites FavoriteService
	Playlists PlaylistService

	Tokens   middleware.TokenVerifier
	Limiter  middleware.RateLimiter
	Database Pinger
	Metrics  http.Handler
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux. Every API route
// resolves the bearer token; routes acting on behalf of a user also require one.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database}
	auth := AuthHandler{Accounts: deps.Accounts}
	profiles := ProfileHandler{Profiles: deps.Profiles}
	movies := MovieHandler{Movies: deps.Movies, Favorites: deps.Favorites, Playlists: deps.Playlists}
	playlists := PlaylistHandler{Playlists: deps.Playlists}

	authenticate := middleware.Authenticate(deps.Tokens)
	public := func(h http.HandlerFunc) http.Handler {
		return authenticate(h)
	}
	private := func(h http.HandlerFunc) http.Handler {
		return authenticate(middleware.RequireIdentity(h))
	}
	limited := func(scope string, h http.HandlerFunc) http.Handler {
		return middleware.RateLimit(deps.Limiter, scope)(h)
	}

	mux.HandleFunc("/healthz", health.Handle)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	mux.Handle("POST /api/v1/auth/signup", limited("signup", auth.SignUp))
	mux.Handle("POST /api/v1/auth/login", limited("login", auth.Login))
	mux.Handle("POST /api/v1/auth/refresh", limited("refresh", auth.Refresh))
	mux.Handle("POST /api/v1/auth/password-reset", limited("password-reset", auth.RequestPasswordReset))
	mux.HandleFunc("POST /api/v1/auth/logout", auth.Logout)
	mux.Handle("GET /api/v1/auth/user", private(auth.User))
	mux.Handle("PUT /api/v1/auth/user", private(auth.UpdateUser))
	mux.Handle("DELETE /api/v1/account", private(auth.DeleteAccount))

	mux.Handle("GET /api/v1/profiles/availability", public(profiles.Availability))
	mux.Handle("GET /api/v1/profiles/{id}", public(profiles.Get))
	mux.Handle("POST /api/v1/profiles", private(profiles.Create))
	mux.Handle("PATCH /api/v1/profiles/me", private(profiles.UpdateMe))
	mux.Handle("PUT /api/v1/profiles/me/avatar", private(profiles.ReplaceAvatar))

	mux.Handle("GET /api/v1/movies", public(movies.List))
	mux.Handle("POST /api/v1/movies", private(movies.Create))
	mux.Handle("GET /api/v1/movies/{id}", public(movies.Get))
	mux.Handle("PATCH /api/v1/movies/{id}", private(movies.Update))
	mux.Handle("DELETE /api/v1/movies/{id}", private(movies.Delete))
	mux.Handle("PUT /api/v1/movies/{id}/portrait", private(movies.UploadPortrait))
	mux.Handle("GET /api/v1/movies/{id}/favorite", private(movies.FavoriteStatus))
	mux.Handle("POST /api/v1/movies/{id}/favorite", private(movies.ToggleFavorite))
	mux.Handle("GET /api/v1/movies/{id}/playlists", private(movies.PlaylistsContaining))
	mux.Handle("GET /api/v1/favorites", private(movies.ListFavorites))

	mux.Handle("GET /api/v1/playlists", private(playlists.ListMine))
	mux.Handle("POST /api/v1/playlists", private(playlists.Create))
	mux.Handle("GET /api/v1/playlists/{id}", public(playlists.Get))
	mux.Handle("PATCH /api/v1/playlists/{id}", private(playlists.Update))
	mux.Handle("DELETE /api/v1/playlists/{id}", private(playlists.Delete))
	mux.Handle("POST /api/v1/playlists/{id}/movies", private(playlists.AddMovies))
	mux.Handle("DELETE /api/v1/playlists/{id}/movies/{movieId}", private(playlists.RemoveMovie))
}
