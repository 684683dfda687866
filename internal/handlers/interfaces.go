package handlers

import (
	"context"
	"io"

	"github.com/moviescrud/backend/internal/catalog"
	"github.com/moviescrud/backend/internal/models"
)

// AccountService captures the identity operations required by the auth handlers.
type AccountService interface {
	SignUp(ctx context.Context, in catalog.SignUpInput) (models.Session, error)
	SignIn(ctx context.Context, identifier, password string) (models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (models.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	User(ctx context.Context, userID string) (models.Identity, error)
	ChangePassword(ctx context.Context, userID, password string) error
	RequestPasswordReset(ctx context.Context, email string) error
	Delete(ctx context.Context, userID string) error
}

// ProfileService captures the profile operations required by the profile handlers.
type ProfileService interface {
	Get(ctx context.Context, identityID string) (models.Profile, error)
	Create(ctx context.Context, identityID, username string) (models.Profile, error)
	UpdateUsername(ctx context.Context, callerID, username string) (models.Profile, error)
	ReplaceAvatar(ctx context.Context, callerID, filename string, size int64, body io.Reader) (models.Profile, error)
	UsernameAvailable(ctx context.Context, username string) (bool, error)
}

// MovieService captures the catalog operations required by the movie handlers.
type MovieService interface {
	Create(ctx context.Context, ownerID string, in catalog.MovieInput) (models.Movie, error)
	View(ctx context.Context, id, viewerID string) (models.MovieView, error)
	List(ctx context.Context, filter models.MovieFilter) ([]models.MovieView, error)
	Update(ctx context.Context, callerID, id string, in catalog.MovieUpdate) (models.Movie, error)
	UploadPortrait(ctx context.Context, callerID, id, filename string, size int64, body io.Reader) (models.Movie, error)
	Delete(ctx context.Context, callerID, id string) error
}

// FavoriteService toggles and lists favorites.
type FavoriteService interface {
	Toggle(ctx context.Context, userID, movieID string) (bool, error)
	IsFavorited(ctx context.Context, userID, movieID string) (bool, error)
	List(ctx context.Context, userID string) ([]models.MovieView, error)
}

// PlaylistService captures playlist and membership operations.
type PlaylistService interface {
	Create(ctx context.Context, ownerID string, in catalog.PlaylistInput) (models.Playlist, error)
	ListMine(ctx context.Context, ownerID string) ([]models.Playlist, error)
	ListForPlaylist(ctx context.Context, playlistID, viewerID string) (models.PlaylistDetails, error)
	Update(ctx context.Context, callerID, playlistID string, in catalog.PlaylistUpdate) (models.Playlist, error)
	Delete(ctx context.Context, callerID, playlistID string) error
	AddMovie(ctx context.Context, callerID, playlistID, movieID string) error
	AddMovies(ctx context.Context, callerID, playlistID string, movieIDs []string) error
	RemoveMovie(ctx context.Context, callerID, playlistID, movieID string) error
	ListPlaylistsContaining(ctx context.Context, userID, movieID string) ([]string, error)
}
