package catalog

import (
	"context"
	"fmt"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/metrics"
	"github.com/moviescrud/backend/internal/models"
)

// FavoriteService flips and lists the favorites of an identity.
type FavoriteService struct {
	favorites FavoriteRepository
	movies    MovieRepository
	metrics   *metrics.Metrics
}

// NewFavoriteService wires the favorites use cases. m may be nil.
func NewFavoriteService(favorites FavoriteRepository, movies MovieRepository, m *metrics.Metrics) *FavoriteService {
	return &FavoriteService{favorites: favorites, movies: movies, metrics: m}
}

// Toggle flips the favorite state of (userID, movieID) in one round trip and
// returns the resulting state.
func (s *FavoriteService) Toggle(ctx context.Context, userID, movieID string) (favorited bool, err error) {
	ctx, span := logging.StartSpan(ctx, "favorites.toggle")
	defer func() { span.Fail(err); span.End() }()

	if userID == "" {
		return false, errs.ErrUnauthorized
	}
	if movieID == "" {
		return false, errs.Validation("movie id is required")
	}

	favorited, err = s.favorites.Toggle(ctx, userID, movieID)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	s.metrics.FavoriteToggled(favorited)
	logging.FromContext(ctx).Debug("favorite toggled", "movieId", movieID, "favorited", favorited)
	return favorited, nil
}

// IsFavorited reports whether userID has favorited movieID. Anonymous callers never have.
func (s *FavoriteService) IsFavorited(ctx context.Context, userID, movieID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return s.favorites.Exists(ctx, userID, movieID)
}

// List returns the favorited movies of userID, most recently favorited first.
func (s *FavoriteService) List(ctx context.Context, userID string) ([]models.MovieView, error) {
	if userID == "" {
		return nil, errs.ErrUnauthorized
	}
	ids, err := s.favorites.MovieIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return moviesInOrder(ctx, s.movies, ids, userID)
}

// moviesInOrder loads the views for ids and returns them in the order of ids.
// Ids whose movie no longer exists are skipped.
func moviesInOrder(ctx context.Context, movies MovieRepository, ids []string, viewerID string) ([]models.MovieView, error) {
	out := make([]models.MovieView, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	views, err := movies.List(ctx, models.MovieFilter{MovieIDs: ids, ViewerID: viewerID, Limit: len(ids)})
	if err != nil {
		return nil, fmt.Errorf("load movies: %w", err)
	}
	byID := make(map[string]models.MovieView, len(views))
	for _, view := range views {
		byID[view.ID] = view
	}
	for _, id := range ids {
		if view, ok := byID[id]; ok {
			out = append(out, view)
		}
	}
	return out, nil
}
