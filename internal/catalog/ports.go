// Package catalog implements the movie catalog use cases: movies, favorites,
// playlists, profiles and accounts. It enforces ownership and visibility rules
// on top of the repositories.
package catalog

import (
	"context"
	"time"

	"github.com/moviescrud/backend/internal/events"
	"github.com/moviescrud/backend/internal/models"
)

// UserRepository persists identities.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ProfileRepository persists profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile models.Profile) error
	FindByID(ctx context.Context, id string) (models.Profile, error)
	FindByUsername(ctx context.Context, username string) (models.Profile, error)
	UpdateUsername(ctx context.Context, id, username string, at time.Time) error
	UpdateAvatar(ctx context.Context, id, url, path string, at time.Time) error
}

// MovieRepository persists movies.
type MovieRepository interface {
	Create(ctx context.Context, movie models.Movie) error
	FindByID(ctx context.Context, id string) (models.Movie, error)
	Update(ctx context.Context, id string, changes models.MovieChanges, at time.Time) (models.Movie, error)
	SetPortrait(ctx context.Context, id, url, path string, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.MovieFilter) ([]models.MovieView, error)
}

// FavoriteRepository persists the favorites relationship.
type FavoriteRepository interface {
	Toggle(ctx context.Context, userID, movieID string) (bool, error)
	Exists(ctx context.Context, userID, movieID string) (bool, error)
	MovieIDs(ctx context.Context, userID string) ([]string, error)
}

// PlaylistRepository persists playlists and their ordered memberships.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist models.Playlist) error
	FindByID(ctx context.Context, id string) (models.Playlist, error)
	Update(ctx context.Context, id string, changes models.PlaylistChanges, at time.Time) (models.Playlist, error)
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.Playlist, error)
	AddMovie(ctx context.Context, playlistID, movieID string, at time.Time) error
	AddMovies(ctx context.Context, playlistID string, movieIDs []string, at time.Time) error
	RemoveMovie(ctx context.Context, playlistID, movieID string) error
	HasMovie(ctx context.Context, playlistID, movieID string) (bool, error)
	MovieIDs(ctx context.Context, playlistID string) ([]string, error)
	ContainingMovie(ctx context.Context, ownerID, movieID string) ([]string, error)
}

// SessionIssuer issues and revokes token pairs.
type SessionIssuer interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, string, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, userID string) error
}

// Janitor removes replaced objects in the background.
type Janitor interface {
	Enqueue(ctx context.Context, keys ...string) error
}

// ProfilePublisher announces profile changes to other clients.
type ProfilePublisher interface {
	PublishProfileUpdated(ctx context.Context, evt events.ProfileUpdated) error
}

func utcNow() time.Time {
	return time.Now().UTC()
}
