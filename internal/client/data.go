package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/moviescrud/backend/internal/catalog"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/models"
)

// GetProfile fetches the profile of identityID.
func (c *Client) GetProfile(ctx context.Context, identityID string) (models.Profile, error) {
	if identityID == "" {
		return models.Profile{}, errs.Validation("identity id is required")
	}
	var profile models.Profile
	if err := c.call(ctx, http.MethodGet, "/profiles/"+url.PathEscape(identityID), nil, &profile); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// CreateProfile creates the profile of the signed in identity. The server
// only lets callers create their own profile.
func (c *Client) CreateProfile(ctx context.Context, identityID, username string) (models.Profile, error) {
	if s := c.Session(); s == nil || s.Identity.ID != identityID {
		return models.Profile{}, fmt.Errorf("create profile for %s: %w", identityID, errs.ErrForbidden)
	}
	in, err := jsonPayload(map[string]string{"username": username})
	if err != nil {
		return models.Profile{}, err
	}
	var profile models.Profile
	if err := c.call(ctx, http.MethodPost, "/profiles", in, &profile); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// UpdateUsername renames the signed in user's profile.
func (c *Client) UpdateUsername(ctx context.Context, username string) (models.Profile, error) {
	in, err := jsonPayload(map[string]string{"username": username})
	if err != nil {
		return models.Profile{}, err
	}
	var profile models.Profile
	if err := c.call(ctx, http.MethodPatch, "/profiles/me", in, &profile); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// UsernameAvailable reports whether username is still free.
func (c *Client) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	path := "/profiles/availability?username=" + url.QueryEscape(username)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

// UploadAvatar replaces the signed in user's avatar.
func (c *Client) UploadAvatar(ctx context.Context, filename string, body io.Reader) (models.Profile, error) {
	in, err := filePayload(filename, body)
	if err != nil {
		return models.Profile{}, err
	}
	var profile models.Profile
	if err := c.call(ctx, http.MethodPut, "/profiles/me/avatar", in, &profile); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// MovieQuery narrows ListMovies. Zero values are omitted.
type MovieQuery struct {
	Query    string
	Genre    string
	Owner    string
	YearFrom int
	YearTo   int
	MinScore *float64
	SortBy   string
	Desc     bool
	Limit    int
}

func (q MovieQuery) values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("q", q.Query)
	set("genre", q.Genre)
	set("owner", q.Owner)
	set("sort", q.SortBy)
	if q.YearFrom != 0 {
		v.Set("yearFrom", strconv.Itoa(q.YearFrom))
	}
	if q.YearTo != 0 {
		v.Set("yearTo", strconv.Itoa(q.YearTo))
	}
	if q.MinScore != nil {
		v.Set("minScore", strconv.FormatFloat(*q.MinScore, 'f', -1, 64))
	}
	if q.Desc {
		v.Set("order", "desc")
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

type movieList struct {
	Movies []models.MovieView `json:"movies"`
}

// ListMovies searches the catalog.
func (c *Client) ListMovies(ctx context.Context, q MovieQuery) ([]models.MovieView, error) {
	path := "/movies"
	if encoded := q.values().Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out movieList
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Movies, nil
}

// GetMovie returns a movie annotated for the signed in user.
func (c *Client) GetMovie(ctx context.Context, id string) (models.MovieView, error) {
	var movie models.MovieView
	if err := c.call(ctx, http.MethodGet, "/movies/"+url.PathEscape(id), nil, &movie); err != nil {
		return models.MovieView{}, err
	}
	return movie, nil
}

// CreateMovie adds a movie owned by the signed in user.
func (c *Client) CreateMovie(ctx context.Context, in catalog.MovieInput) (models.Movie, error) {
	body, err := jsonPayload(in)
	if err != nil {
		return models.Movie{}, err
	}
	var movie models.Movie
	if err := c.call(ctx, http.MethodPost, "/movies", body, &movie); err != nil {
		return models.Movie{}, err
	}
	return movie, nil
}

// UpdateMovie changes the fields set in in.
func (c *Client) UpdateMovie(ctx context.Context, id string, in catalog.MovieUpdate) (models.Movie, error) {
	body, err := jsonPayload(in)
	if err != nil {
		return models.Movie{}, err
	}
	var movie models.Movie
	if err := c.call(ctx, http.MethodPatch, "/movies/"+url.PathEscape(id), body, &movie); err != nil {
		return models.Movie{}, err
	}
	return movie, nil
}

// DeleteMovie removes a movie owned by the signed in user.
func (c *Client) DeleteMovie(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/movies/"+url.PathEscape(id), nil, nil)
}

// UploadPortrait replaces the portrait of a movie owned by the signed in user.
func (c *Client) UploadPortrait(ctx context.Context, movieID, filename string, body io.Reader) (models.Movie, error) {
	in, err := filePayload(filename, body)
	if err != nil {
		return models.Movie{}, err
	}
	var movie models.Movie
	if err := c.call(ctx, http.MethodPut, "/movies/"+url.PathEscape(movieID)+"/portrait", in, &movie); err != nil {
		return models.Movie{}, err
	}
	return movie, nil
}

// ToggleFavorite flips the favorite state of movieID in one round trip and
// returns the new state.
func (c *Client) ToggleFavorite(ctx context.Context, movieID string) (bool, error) {
	var out struct {
		Favorited bool `json:"favorited"`
	}
	if err := c.call(ctx, http.MethodPost, "/movies/"+url.PathEscape(movieID)+"/favorite", nil, &out); err != nil {
		return false, err
	}
	return out.Favorited, nil
}

// IsFavorited reports whether the signed in user has favorited movieID.
func (c *Client) IsFavorited(ctx context.Context, movieID string) (bool, error) {
	var out struct {
		Favorited bool `json:"favorited"`
	}
	if err := c.call(ctx, http.MethodGet, "/movies/"+url.PathEscape(movieID)+"/favorite", nil, &out); err != nil {
		return false, err
	}
	return out.Favorited, nil
}

// Favorites lists the signed in user's favorites, newest first.
func (c *Client) Favorites(ctx context.Context) ([]models.MovieView, error) {
	var out movieList
	if err := c.call(ctx, http.MethodGet, "/favorites", nil, &out); err != nil {
		return nil, err
	}
	return out.Movies, nil
}

// CreatePlaylist creates a playlist owned by the signed in user.
func (c *Client) CreatePlaylist(ctx context.Context, in catalog.PlaylistInput) (models.Playlist, error) {
	body, err := jsonPayload(in)
	if err != nil {
		return models.Playlist{}, err
	}
	var playlist models.Playlist
	if err := c.call(ctx, http.MethodPost, "/playlists", body, &playlist); err != nil {
		return models.Playlist{}, err
	}
	return playlist, nil
}

// MyPlaylists lists the signed in user's playlists, newest first.
func (c *Client) MyPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var out struct {
		Playlists []models.Playlist `json:"playlists"`
	}
	if err := c.call(ctx, http.MethodGet, "/playlists", nil, &out); err != nil {
		return nil, err
	}
	return out.Playlists, nil
}

// ListForPlaylist returns a playlist with its movies in insertion order. A
// private playlist of another user fails with errs.ErrForbidden.
func (c *Client) ListForPlaylist(ctx context.Context, playlistID string) (models.PlaylistDetails, error) {
	var details models.PlaylistDetails
	if err := c.call(ctx, http.MethodGet, "/playlists/"+url.PathEscape(playlistID), nil, &details); err != nil {
		return models.PlaylistDetails{}, err
	}
	return details, nil
}

// UpdatePlaylist changes the fields set in in.
func (c *Client) UpdatePlaylist(ctx context.Context, playlistID string, in catalog.PlaylistUpdate) (models.Playlist, error) {
	body, err := jsonPayload(in)
	if err != nil {
		return models.Playlist{}, err
	}
	var playlist models.Playlist
	if err := c.call(ctx, http.MethodPatch, "/playlists/"+url.PathEscape(playlistID), body, &playlist); err != nil {
		return models.Playlist{}, err
	}
	return playlist, nil
}

// DeletePlaylist removes a playlist owned by the signed in user.
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	return c.call(ctx, http.MethodDelete, "/playlists/"+url.PathEscape(playlistID), nil, nil)
}

// AddMovie appends movieID to the playlist. A movie that is already a member
// fails with errs.ErrAlreadyMember.
func (c *Client) AddMovie(ctx context.Context, playlistID, movieID string) error {
	body, err := jsonPayload(map[string]string{"movieId": movieID})
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/movies", body, nil)
}

// AddMovies appends all of movieIDs or none of them; errs.FailedItem names the
// movie that blocked the batch.
func (c *Client) AddMovies(ctx context.Context, playlistID string, movieIDs []string) error {
	body, err := jsonPayload(map[string][]string{"movieIds": movieIDs})
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/movies", body, nil)
}

// RemoveMovie takes movieID out of the playlist; removing a non-member succeeds.
func (c *Client) RemoveMovie(ctx context.Context, playlistID, movieID string) error {
	path := "/playlists/" + url.PathEscape(playlistID) + "/movies/" + url.PathEscape(movieID)
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// PlaylistsContaining returns the ids of the signed in user's playlists that hold movieID.
func (c *Client) PlaylistsContaining(ctx context.Context, movieID string) ([]string, error) {
	var out struct {
		PlaylistIDs []string `json:"playlistIds"`
	}
	if err := c.call(ctx, http.MethodGet, "/movies/"+url.PathEscape(movieID)+"/playlists", nil, &out); err != nil {
		return nil, err
	}
	return out.PlaylistIDs, nil
}

func filePayload(filename string, body io.Reader) (*payload, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	return &payload{contentType: form.FormDataContentType(), body: buf.Bytes()}, nil
}
