package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/metrics"
	"github.com/moviescrud/backend/internal/models"
)

// PlaylistInput is the payload accepted when creating a playlist.
type PlaylistInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	IsPublic    bool   `json:"isPublic"`
}

// PlaylistUpdate is a partial update; nil fields are left untouched.
type PlaylistUpdate struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsPublic    *bool   `json:"isPublic"`
}

// PlaylistService manages playlists and their membership.
type PlaylistService struct {
	playlists PlaylistRepository
	movies    MovieRepository
	profiles  ProfileRepository
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewPlaylistService wires the playlist use cases. profiles and m may be nil.
func NewPlaylistService(playlists PlaylistRepository, movies MovieRepository, profiles ProfileRepository, m *metrics.Metrics) *PlaylistService {
	return &PlaylistService{
		playlists: playlists,
		movies:    movies,
		profiles:  profiles,
		metrics:   m,
		now:       utcNow,
	}
}

// Create stores a new playlist owned by ownerID.
func (s *PlaylistService) Create(ctx context.Context, ownerID string, in PlaylistInput) (models.Playlist, error) {
	if ownerID == "" {
		return models.Playlist{}, errs.ErrUnauthorized
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		return models.Playlist{}, err
	}

	now := s.now()
	playlist := models.Playlist{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		IsPublic:    in.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.playlists.Create(ctx, playlist); err != nil {
		return models.Playlist{}, fmt.Errorf("create playlist: %w", err)
	}
	return playlist, nil
}

// ListMine returns the playlists of ownerID, newest first.
func (s *PlaylistService) ListMine(ctx context.Context, ownerID string) ([]models.Playlist, error) {
	if ownerID == "" {
		return nil, errs.ErrUnauthorized
	}
	playlists, err := s.playlists.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	return playlists, nil
}

// ListForPlaylist returns the playlist with its movies in insertion order. A
// private playlist is visible to its owner only; everyone else, anonymous
// viewers included, gets ErrForbidden.
func (s *PlaylistService) ListForPlaylist(ctx context.Context, playlistID, viewerID string) (details models.PlaylistDetails, err error) {
	ctx, span := logging.StartSpan(ctx, "playlists.list_movies")
	defer func() { span.Fail(err); span.End() }()

	playlist, err := s.playlists.FindByID(ctx, playlistID)
	if err != nil {
		return models.PlaylistDetails{}, fmt.Errorf("load playlist: %w", err)
	}
	isOwner := viewerID != "" && playlist.OwnerID == viewerID
	if !playlist.IsPublic && !isOwner {
		return models.PlaylistDetails{}, fmt.Errorf("playlist %s: %w", playlistID, errs.ErrForbidden)
	}

	ids, err := s.playlists.MovieIDs(ctx, playlistID)
	if err != nil {
		return models.PlaylistDetails{}, fmt.Errorf("load playlist movies: %w", err)
	}
	movies, err := moviesInOrder(ctx, s.movies, ids, viewerID)
	if err != nil {
		return models.PlaylistDetails{}, err
	}

	return models.PlaylistDetails{
		Playlist:      playlist,
		OwnerUsername: s.ownerUsername(ctx, playlist.OwnerID),
		Movies:        movies,
		IsOwner:       isOwner,
	}, nil
}

// Update edits a playlist owned by callerID. The owner itself never changes.
func (s *PlaylistService) Update(ctx context.Context, callerID, playlistID string, in PlaylistUpdate) (models.Playlist, error) {
	if _, err := s.owned(ctx, callerID, playlistID); err != nil {
		return models.Playlist{}, err
	}
	in.Title = trimmed(in.Title)
	in.Description = trimmed(in.Description)
	if in.Title != nil && *in.Title == "" {
		return models.Playlist{}, errs.Validation("title is required")
	}
	if err := validateInput(in); err != nil {
		return models.Playlist{}, err
	}

	playlist, err := s.playlists.Update(ctx, playlistID, models.PlaylistChanges{
		Title:       in.Title,
		Description: in.Description,
		IsPublic:    in.IsPublic,
	}, s.now())
	if err != nil {
		return models.Playlist{}, fmt.Errorf("update playlist: %w", err)
	}
	return playlist, nil
}

// Delete removes a playlist owned by callerID.
func (s *PlaylistService) Delete(ctx context.Context, callerID, playlistID string) error {
	if _, err := s.owned(ctx, callerID, playlistID); err != nil {
		return err
	}
	if err := s.playlists.Delete(ctx, playlistID); err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	return nil
}

// AddMovie appends movieID to the playlist. It fails with ErrNotFound when either
// side is missing, ErrForbidden when callerID does not own the playlist and
// ErrAlreadyMember when the movie is already part of it.
func (s *PlaylistService) AddMovie(ctx context.Context, callerID, playlistID, movieID string) (err error) {
	ctx, span := logging.StartSpan(ctx, "playlists.add_movie")
	defer func() {
		span.Fail(err)
		span.End()
		s.metrics.MembershipChanged("add", err)
	}()

	if _, err := s.owned(ctx, callerID, playlistID); err != nil {
		return err
	}
	if _, err := s.movies.FindByID(ctx, movieID); err != nil {
		return fmt.Errorf("load movie: %w", err)
	}

	member, err := s.playlists.HasMovie(ctx, playlistID, movieID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if member {
		return errs.ErrAlreadyMember
	}

	if err := s.playlists.AddMovie(ctx, playlistID, movieID, s.now()); err != nil {
		return fmt.Errorf("add movie: %w", err)
	}
	return nil
}

// AddMovies appends every movie in movieIDs or none of them. The returned error
// names the first movie that could not be added (see errs.FailedItem).
func (s *PlaylistService) AddMovies(ctx context.Context, callerID, playlistID string, movieIDs []string) (err error) {
	ctx, span := logging.StartSpan(ctx, "playlists.add_movies")
	defer func() {
		span.Fail(err)
		span.End()
		s.metrics.MembershipChanged("bulk_add", err)
	}()

	if len(movieIDs) == 0 {
		return errs.Validation("movieIds must not be empty")
	}
	seen := make(map[string]bool, len(movieIDs))
	for _, id := range movieIDs {
		if id == "" {
			return errs.Validation("movieIds must not contain empty ids")
		}
		if seen[id] {
			return &errs.ItemError{ID: id, Err: errs.ErrAlreadyMember}
		}
		seen[id] = true
	}

	if _, err := s.owned(ctx, callerID, playlistID); err != nil {
		return err
	}

	if err := s.playlists.AddMovies(ctx, playlistID, movieIDs, s.now()); err != nil {
		return fmt.Errorf("add movies: %w", err)
	}
	return nil
}

// RemoveMovie takes movieID out of the playlist. Removing a movie that is not a
// member succeeds.
func (s *PlaylistService) RemoveMovie(ctx context.Context, callerID, playlistID, movieID string) (err error) {
	defer func() { s.metrics.MembershipChanged("remove", err) }()

	if _, err := s.owned(ctx, callerID, playlistID); err != nil {
		return err
	}
	if err := s.playlists.RemoveMovie(ctx, playlistID, movieID); err != nil {
		return fmt.Errorf("remove movie: %w", err)
	}
	return nil
}

// ListPlaylistsContaining returns the ids of userID's playlists that hold movieID.
func (s *PlaylistService) ListPlaylistsContaining(ctx context.Context, userID, movieID string) ([]string, error) {
	if userID == "" {
		return nil, errs.ErrUnauthorized
	}
	ids, err := s.playlists.ContainingMovie(ctx, userID, movieID)
	if err != nil {
		return nil, fmt.Errorf("list playlists containing movie: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *PlaylistService) owned(ctx context.Context, callerID, playlistID string) (models.Playlist, error) {
	if callerID == "" {
		return models.Playlist{}, errs.ErrUnauthorized
	}
	playlist, err := s.playlists.FindByID(ctx, playlistID)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("load playlist: %w", err)
	}
	if playlist.OwnerID != callerID {
		return models.Playlist{}, fmt.Errorf("playlist %s: %w", playlistID, errs.ErrForbidden)
	}
	return playlist, nil
}

func (s *PlaylistService) ownerUsername(ctx context.Context, ownerID string) string {
	if s.profiles == nil {
		return ""
	}
	profile, err := s.profiles.FindByID(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			logging.FromContext(ctx).Warn("load playlist owner profile", "ownerId", ownerID, "error", err)
		}
		return ""
	}
	return profile.Username
}
