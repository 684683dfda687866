package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/moviescrud/backend/internal/auth"
	"github.com/moviescrud/backend/internal/cache"
	"github.com/moviescrud/backend/internal/catalog"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/events"
	"github.com/moviescrud/backend/internal/metrics"
	"github.com/moviescrud/backend/internal/middleware"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/repositories"
	"github.com/moviescrud/backend/internal/storage"
)

type noopJanitor struct{}

func (noopJanitor) Enqueue(context.Context, ...string) error { return nil }

type testAPI struct {
	t       *testing.T
	server  *httptest.Server
	objects *storage.MemoryStorage
}

func newTestAPI(t *testing.T, limiter middleware.RateLimiter) *testAPI {
	t.Helper()

	store := repositories.NewMemoryStore()
	manager, err := auth.NewManager([]byte("test-secret"), time.Minute, time.Hour, auth.NewInMemorySessionStore())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	objects := storage.NewMemoryStorage("https://cdn.test")
	m := metrics.New()
	records := cache.New[models.Movie](16, time.Minute)

	deps := Dependencies{
		Accounts:  catalog.NewAccountService(store.Users(), store.Profiles(), store.Movies(), manager, noopJanitor{}, records),
		Profiles:  catalog.NewProfileService(store.Profiles(), store.Users(), objects, noopJanitor{}, events.NewMemoryBus()),
		Movies:    catalog.NewMovieService(store.Movies(), objects, noopJanitor{}, records),
		Favorites: catalog.NewFavoriteService(store.Favorites(), store.Movies(), m),
		Playlists: catalog.NewPlaylistService(store.Playlists(), store.Movies(), store.Profiles(), m),
		Tokens:    manager,
		Limiter:   limiter,
		Metrics:   m.Handler(),
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testAPI{t: t, server: server, objects: objects}
}

func (a *testAPI) do(method, path, token string, body any, out any) int {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	if err != nil {
		a.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.send(req, token, out)
}

func (a *testAPI) send(req *http.Request, token string, out any) int {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.server.Client().Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			a.t.Fatalf("decode %s %s: %v", req.Method, req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

func (a *testAPI) register(email, username string) models.Session {
	a.t.Helper()
	var session models.Session
	status := a.do(http.MethodPost, "/api/v1/auth/signup", "", catalog.SignUpInput{Email: email, Password: "secret-pw", Username: username}, &session)
	if status != http.StatusCreated {
		a.t.Fatalf("sign up %s: status %d", email, status)
	}
	return session
}

// signUp registers an account and creates its profile the way a client does
// after the first sign-in.
func (a *testAPI) signUp(email, username string) models.Session {
	a.t.Helper()
	session := a.register(email, username)
	if status := a.do(http.MethodPost, "/api/v1/profiles", session.Tokens.AccessToken, usernameRequest{}, nil); status != http.StatusCreated {
		a.t.Fatalf("create profile for %s: status %d", email, status)
	}
	return session
}

func (a *testAPI) createMovie(token, title string) models.Movie {
	a.t.Helper()
	var movie models.Movie
	if status := a.do(http.MethodPost, "/api/v1/movies", token, catalog.MovieInput{Title: title}, &movie); status != http.StatusCreated {
		a.t.Fatalf("create movie %s: status %d", title, status)
	}
	return movie
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	session := api.register("Louise@Example.com", "louise")

	if session.Tokens.AccessToken == "" || session.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", session.Tokens)
	}
	if session.Identity.Email != "louise@example.com" {
		t.Fatalf("expected normalized email, got %q", session.Identity.Email)
	}

	var identity models.Identity
	if status := api.do(http.MethodGet, "/api/v1/auth/user", session.Tokens.AccessToken, nil, &identity); status != http.StatusOK {
		t.Fatalf("get user: status %d", status)
	}
	if identity.ID != session.Identity.ID {
		t.Fatalf("unexpected identity %+v", identity)
	}

	var failed ErrorResponse
	status := api.do(http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "louise@example.com", Password: "wrong-pw"}, &failed)
	if status != http.StatusUnauthorized || failed.Code != errs.CodeUnauthorized {
		t.Fatalf("expected 401 unauthorized, got %d %+v", status, failed)
	}

	var refreshed models.Session
	if status := api.do(http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: session.Tokens.RefreshToken}, &refreshed); status != http.StatusOK {
		t.Fatalf("refresh: status %d", status)
	}
	if status := api.do(http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: session.Tokens.RefreshToken}, &failed); status != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401 got %d", status)
	}

	if status := api.do(http.MethodPut, "/api/v1/auth/user", refreshed.Tokens.AccessToken, updateUserRequest{Password: "new-secret"}, &identity); status != http.StatusOK {
		t.Fatalf("update user: status %d", status)
	}
	var byUsername models.Session
	if status := api.do(http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "louise@example.com", Password: "new-secret"}, &byUsername); status != http.StatusOK {
		t.Fatalf("login with new password: status %d", status)
	}

	if status := api.do(http.MethodPost, "/api/v1/auth/logout", "", refreshRequest{RefreshToken: byUsername.Tokens.RefreshToken}, nil); status != http.StatusNoContent {
		t.Fatalf("logout: status %d", status)
	}
}

func TestSignUpValidation(t *testing.T) {
	api := newTestAPI(t, nil)

	var failed ErrorResponse
	status := api.do(http.MethodPost, "/api/v1/auth/signup", "", catalog.SignUpInput{Email: "not-an-email", Password: "secret-pw"}, &failed)
	if status != http.StatusBadRequest || failed.Code != errs.CodeValidation {
		t.Fatalf("expected validation error, got %d %+v", status, failed)
	}

	api.register("a@example.com", "")
	status = api.do(http.MethodPost, "/api/v1/auth/signup", "", catalog.SignUpInput{Email: "a@example.com", Password: "secret-pw"}, &failed)
	if status != http.StatusConflict || failed.Code != errs.CodeAlreadyExists {
		t.Fatalf("expected conflict, got %d %+v", status, failed)
	}
}

func TestPasswordResetNeverLeaksAccounts(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("known@example.com", "")

	for _, email := range []string{"known@example.com", "unknown@example.com"} {
		var body map[string]string
		if status := api.do(http.MethodPost, "/api/v1/auth/password-reset", "", passwordResetRequest{Email: email}, &body); status != http.StatusAccepted {
			t.Fatalf("%s: expected 202 got %d", email, status)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token"},
		{name: "invalid token", token: "garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := api.do(http.MethodPost, "/api/v1/movies", tt.token, catalog.MovieInput{Title: "Arrival"}, nil)
			if status != http.StatusUnauthorized {
				t.Fatalf("expected 401 got %d", status)
			}
		})
	}

	if status := api.do(http.MethodGet, "/api/v1/movies", "", nil, nil); status != http.StatusOK {
		t.Fatalf("anonymous listing: expected 200 got %d", status)
	}
}

func TestMovieAndFavoriteEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	owner := api.signUp("owner@example.com", "owner")
	other := api.signUp("other@example.com", "other")

	movie := api.createMovie(owner.Tokens.AccessToken, "Arrival")

	var toggled favoriteResponse
	for i, want := range []bool{true, false, true} {
		if status := api.do(http.MethodPost, "/api/v1/movies/"+movie.ID+"/favorite", other.Tokens.AccessToken, nil, &toggled); status != http.StatusOK {
			t.Fatalf("toggle %d: status %d", i, status)
		}
		if toggled.Favorited != want {
			t.Fatalf("toggle %d: favorited = %v, want %v", i, toggled.Favorited, want)
		}
	}

	var current favoriteResponse
	if code := api.do(http.MethodGet, "/api/v1/movies/"+movie.ID+"/favorite", other.Tokens.AccessToken, nil, &current); code != http.StatusOK {
		t.Fatalf("favorite status: status %d", code)
	}
	if !current.Favorited || current.MovieID != movie.ID {
		t.Fatalf("unexpected favorite status %+v", current)
	}
	if code := api.do(http.MethodGet, "/api/v1/movies/"+movie.ID+"/favorite", owner.Tokens.AccessToken, nil, &current); code != http.StatusOK || current.Favorited {
		t.Fatalf("owner has not favorited: %d %+v", code, current)
	}
	if code := api.do(http.MethodGet, "/api/v1/movies/"+movie.ID+"/favorite", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous favorite status: expected 401 got %d", code)
	}

	var view models.MovieView
	if status := api.do(http.MethodGet, "/api/v1/movies/"+movie.ID, other.Tokens.AccessToken, nil, &view); status != http.StatusOK {
		t.Fatalf("get movie: status %d", status)
	}
	if !view.IsFavorited || view.OwnerUsername != "owner" {
		t.Fatalf("unexpected view %+v", view)
	}

	var favorites movieListResponse
	if status := api.do(http.MethodGet, "/api/v1/favorites", other.Tokens.AccessToken, nil, &favorites); status != http.StatusOK {
		t.Fatalf("favorites: status %d", status)
	}
	if len(favorites.Movies) != 1 || favorites.Movies[0].ID != movie.ID {
		t.Fatalf("unexpected favorites %+v", favorites.Movies)
	}

	title := "Hijacked"
	var failed ErrorResponse
	if status := api.do(http.MethodPatch, "/api/v1/movies/"+movie.ID, other.Tokens.AccessToken, catalog.MovieUpdate{Title: &title}, &failed); status != http.StatusForbidden {
		t.Fatalf("foreign update: expected 403 got %d", status)
	}

	var listed movieListResponse
	if status := api.do(http.MethodGet, "/api/v1/movies?owner=me&q=arr", owner.Tokens.AccessToken, nil, &listed); status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	if len(listed.Movies) != 1 {
		t.Fatalf("expected one owned movie, got %d", len(listed.Movies))
	}
	if status := api.do(http.MethodGet, "/api/v1/movies?yearFrom=soon", "", nil, &failed); status != http.StatusBadRequest {
		t.Fatalf("bad filter: expected 400 got %d", status)
	}

	if status := api.do(http.MethodDelete, "/api/v1/movies/"+movie.ID, owner.Tokens.AccessToken, nil, nil); status != http.StatusNoContent {
		t.Fatalf("delete: status %d", status)
	}
	if status := api.do(http.MethodGet, "/api/v1/movies/"+movie.ID, "", nil, &failed); status != http.StatusNotFound || failed.Code != errs.CodeNotFound {
		t.Fatalf("deleted movie: expected 404 got %d %+v", status, failed)
	}
}

func TestPlaylistEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	owner := api.signUp("owner@example.com", "owner")
	stranger := api.signUp("stranger@example.com", "stranger")
	token := owner.Tokens.AccessToken

	first := api.createMovie(token, "Arrival")
	second := api.createMovie(token, "Contact")

	var playlist models.Playlist
	if status := api.do(http.MethodPost, "/api/v1/playlists", token, catalog.PlaylistInput{Title: "Sci-Fi"}, &playlist); status != http.StatusCreated {
		t.Fatalf("create playlist: status %d", status)
	}
	membersPath := "/api/v1/playlists/" + playlist.ID + "/movies"

	if status := api.do(http.MethodPost, membersPath, token, addMoviesRequest{MovieID: second.ID}, nil); status != http.StatusCreated {
		t.Fatalf("add movie: status %d", status)
	}
	var failed ErrorResponse
	if status := api.do(http.MethodPost, membersPath, token, addMoviesRequest{MovieID: second.ID}, &failed); status != http.StatusConflict || failed.Code != errs.CodeAlreadyMember {
		t.Fatalf("duplicate add: expected 409 already_member, got %d %+v", status, failed)
	}
	if status := api.do(http.MethodPost, membersPath, token, addMoviesRequest{MovieIDs: []string{first.ID, "00000000-0000-0000-0000-000000000000"}}, &failed); status != http.StatusNotFound {
		t.Fatalf("bulk add with unknown movie: expected 404 got %d", status)
	}
	if failed.Item != "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("expected failing item to be reported, got %+v", failed)
	}
	if status := api.do(http.MethodPost, membersPath, token, addMoviesRequest{MovieIDs: []string{first.ID}}, nil); status != http.StatusCreated {
		t.Fatalf("bulk add: status %d", status)
	}

	var details models.PlaylistDetails
	if status := api.do(http.MethodGet, "/api/v1/playlists/"+playlist.ID, token, nil, &details); status != http.StatusOK {
		t.Fatalf("get playlist: status %d", status)
	}
	if !details.IsOwner || len(details.Movies) != 2 || details.Movies[0].ID != second.ID || details.Movies[1].ID != first.ID {
		t.Fatalf("unexpected details %+v", details)
	}

	if status := api.do(http.MethodGet, "/api/v1/playlists/"+playlist.ID, stranger.Tokens.AccessToken, nil, &failed); status != http.StatusForbidden || failed.Code != errs.CodeForbidden {
		t.Fatalf("private playlist: expected 403 got %d %+v", status, failed)
	}

	var containing playlistIDsResponse
	if status := api.do(http.MethodGet, "/api/v1/movies/"+first.ID+"/playlists", token, nil, &containing); status != http.StatusOK {
		t.Fatalf("playlists containing: status %d", status)
	}
	if len(containing.PlaylistIDs) != 1 || containing.PlaylistIDs[0] != playlist.ID {
		t.Fatalf("unexpected playlist ids %v", containing.PlaylistIDs)
	}

	for i := 0; i < 2; i++ {
		if status := api.do(http.MethodDelete, membersPath+"/"+first.ID, token, nil, nil); status != http.StatusNoContent {
			t.Fatalf("remove %d: status %d", i, status)
		}
	}

	var mine playlistListResponse
	if status := api.do(http.MethodGet, "/api/v1/playlists", stranger.Tokens.AccessToken, nil, &mine); status != http.StatusOK {
		t.Fatalf("list mine: status %d", status)
	}
	if mine.Playlists == nil || len(mine.Playlists) != 0 {
		t.Fatalf("expected an empty list, got %#v", mine.Playlists)
	}
}

func TestPortraitUpload(t *testing.T) {
	api := newTestAPI(t, nil)
	owner := api.signUp("owner@example.com", "owner")
	movie := api.createMovie(owner.Tokens.AccessToken, "Arrival")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "poster.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("not really a png")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req, err := http.NewRequest(http.MethodPut, api.server.URL+"/api/v1/movies/"+movie.ID+"/portrait", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var updated models.Movie
	if status := api.send(req, owner.Tokens.AccessToken, &updated); status != http.StatusOK {
		t.Fatalf("upload: status %d", status)
	}
	if !strings.HasPrefix(updated.PortraitURL, "https://cdn.test/portraits/movie_"+movie.ID) {
		t.Fatalf("unexpected portrait url %q", updated.PortraitURL)
	}
	if len(api.objects.Keys()) != 1 {
		t.Fatalf("expected one stored object, got %v", api.objects.Keys())
	}
}

func TestProfileEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	session := api.register("amy@example.com", "amy")
	token := session.Tokens.AccessToken

	var failed ErrorResponse
	if status := api.do(http.MethodGet, "/api/v1/profiles/"+session.Identity.ID, "", nil, &failed); status != http.StatusNotFound {
		t.Fatalf("profile before creation: expected 404 got %d", status)
	}

	var profile models.Profile
	if status := api.do(http.MethodPost, "/api/v1/profiles", token, usernameRequest{}, &profile); status != http.StatusCreated {
		t.Fatalf("create profile: status %d", status)
	}
	if profile.Username != "amy" {
		t.Fatalf("expected derived username, got %q", profile.Username)
	}
	if status := api.do(http.MethodPost, "/api/v1/profiles", token, usernameRequest{}, &failed); status != http.StatusConflict {
		t.Fatalf("second create: expected 409 got %d", status)
	}

	var availability availabilityResponse
	if status := api.do(http.MethodGet, "/api/v1/profiles/availability?username=amy", "", nil, &availability); status != http.StatusOK || availability.Available {
		t.Fatalf("availability of a taken name: %d %+v", status, availability)
	}

	if status := api.do(http.MethodPatch, "/api/v1/profiles/me", token, usernameRequest{Username: "amy_adams"}, &profile); status != http.StatusOK {
		t.Fatalf("rename: status %d", status)
	}
	if status := api.do(http.MethodGet, "/api/v1/profiles/me", token, nil, &profile); status != http.StatusOK || profile.Username != "amy_adams" {
		t.Fatalf("get me: %d %+v", status, profile)
	}

	if status := api.do(http.MethodDelete, "/api/v1/account", token, nil, nil); status != http.StatusNoContent {
		t.Fatalf("delete account: status %d", status)
	}
	if status := api.do(http.MethodGet, "/api/v1/profiles/"+session.Identity.ID, "", nil, &failed); status != http.StatusNotFound {
		t.Fatalf("profile after account deletion: expected 404 got %d", status)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	api := newTestAPI(t, middleware.NewKeyedLimiter(1, time.Hour, 2, time.Hour))

	var statuses []int
	for i := 0; i < 3; i++ {
		statuses = append(statuses, api.do(http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "nobody", Password: "secret-pw"}, nil))
	}
	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	if fmt.Sprint(statuses) != fmt.Sprint(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	resp, err := api.server.Client().Get(api.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
}
