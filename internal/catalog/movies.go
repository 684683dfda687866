package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moviescrud/backend/internal/cache"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/storage"
)

// MovieInput is the payload accepted when creating a movie.
type MovieInput struct {
	Title     string   `json:"title" validate:"required,max=200"`
	Year      *int     `json:"year" validate:"omitempty,gte=1900,lte=2030"`
	Director  *string  `json:"director" validate:"omitempty,max=200"`
	Duration  *int     `json:"duration" validate:"omitempty,gte=1,lte=1000"`
	Score     *float64 `json:"score" validate:"omitempty,gte=0,lte=10"`
	ShortDesc *string  `json:"shortDesc" validate:"omitempty,max=2000"`
	Cast      []string `json:"cast" validate:"omitempty,dive,max=200"`
	Genres    []string `json:"genres" validate:"omitempty,dive,max=50"`
}

// MovieUpdate is a partial update; nil fields are left untouched.
type MovieUpdate struct {
	Title     *string  `json:"title" validate:"omitempty,max=200"`
	Year      *int     `json:"year" validate:"omitempty,gte=1900,lte=2030"`
	Director  *string  `json:"director" validate:"omitempty,max=200"`
	Duration  *int     `json:"duration" validate:"omitempty,gte=1,lte=1000"`
	Score     *float64 `json:"score" validate:"omitempty,gte=0,lte=10"`
	ShortDesc *string  `json:"shortDesc" validate:"omitempty,max=2000"`
	Cast      []string `json:"cast" validate:"omitempty,dive,max=200"`
	Genres    []string `json:"genres" validate:"omitempty,dive,max=50"`
}

// MovieService owns movie records and their portraits.
type MovieService struct {
	movies  MovieRepository
	objects storage.ObjectStore
	janitor Janitor
	records *cache.TTL[models.Movie]
	now     func() time.Time
}

// NewMovieService wires the movie use cases. objects, janitor and records are optional.
func NewMovieService(movies MovieRepository, objects storage.ObjectStore, janitor Janitor, records *cache.TTL[models.Movie]) *MovieService {
	return &MovieService{
		movies:  movies,
		objects: objects,
		janitor: janitor,
		records: records,
		now:     utcNow,
	}
}

// Create stores a new movie owned by ownerID.
func (s *MovieService) Create(ctx context.Context, ownerID string, in MovieInput) (movie models.Movie, err error) {
	ctx, span := logging.StartSpan(ctx, "movies.create")
	defer func() { span.Fail(err); span.End() }()

	if ownerID == "" {
		return models.Movie{}, errs.ErrUnauthorized
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Director = blankToNil(in.Director)
	in.ShortDesc = blankToNil(in.ShortDesc)
	in.Cast = cleanList(in.Cast)
	in.Genres = cleanList(in.Genres)
	if err := validateInput(in); err != nil {
		return models.Movie{}, err
	}

	now := s.now()
	movie = models.Movie{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Year:      in.Year,
		Director:  in.Director,
		Duration:  in.Duration,
		Score:     in.Score,
		ShortDesc: in.ShortDesc,
		Cast:      in.Cast,
		Genres:    in.Genres,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.movies.Create(ctx, movie); err != nil {
		return models.Movie{}, fmt.Errorf("create movie: %w", err)
	}
	logging.FromContext(ctx).Info("movie created", "movieId", movie.ID, "ownerId", ownerID)
	return movie, nil
}

// Get returns a movie record, served from the cache when possible.
func (s *MovieService) Get(ctx context.Context, id string) (models.Movie, error) {
	return s.records.GetOrLoad(ctx, id, func(ctx context.Context) (models.Movie, error) {
		return s.movies.FindByID(ctx, id)
	})
}

// View returns a movie annotated for viewerID, who may be empty.
func (s *MovieService) View(ctx context.Context, id, viewerID string) (models.MovieView, error) {
	views, err := s.movies.List(ctx, models.MovieFilter{MovieIDs: []string{id}, ViewerID: viewerID, Limit: 1})
	if err != nil {
		return models.MovieView{}, fmt.Errorf("view movie: %w", err)
	}
	if len(views) == 0 {
		return models.MovieView{}, fmt.Errorf("view movie %s: %w", id, errs.ErrNotFound)
	}
	return views[0], nil
}

// List returns the movies matching filter, annotated for filter.ViewerID.
func (s *MovieService) List(ctx context.Context, filter models.MovieFilter) ([]models.MovieView, error) {
	views, err := s.movies.List(ctx, filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	return views, nil
}

// Update applies a partial update. Only the owner may edit a movie.
func (s *MovieService) Update(ctx context.Context, callerID, id string, in MovieUpdate) (movie models.Movie, err error) {
	ctx, span := logging.StartSpan(ctx, "movies.update")
	defer func() { span.Fail(err); span.End() }()

	if _, err := s.owned(ctx, callerID, id); err != nil {
		return models.Movie{}, err
	}

	in.Title = trimmed(in.Title)
	in.Director = trimmed(in.Director)
	in.ShortDesc = trimmed(in.ShortDesc)
	in.Cast = cleanList(in.Cast)
	in.Genres = cleanList(in.Genres)
	if in.Title != nil && *in.Title == "" {
		return models.Movie{}, errs.Validation("title is required")
	}
	if err := validateInput(in); err != nil {
		return models.Movie{}, err
	}

	movie, err = s.movies.Update(ctx, id, models.MovieChanges{
		Title:     in.Title,
		Year:      in.Year,
		Director:  in.Director,
		Duration:  in.Duration,
		Score:     in.Score,
		ShortDesc: in.ShortDesc,
		Cast:      in.Cast,
		Genres:    in.Genres,
	}, s.now())
	if err != nil {
		return models.Movie{}, fmt.Errorf("update movie: %w", err)
	}
	s.records.Delete(id)
	return movie, nil
}

// UploadPortrait stores a new portrait and points the movie at it. The previous
// portrait is removed in the background once the pointer has moved.
func (s *MovieService) UploadPortrait(ctx context.Context, callerID, id, filename string, size int64, body io.Reader) (movie models.Movie, err error) {
	ctx, span := logging.StartSpan(ctx, "movies.portrait")
	defer func() { span.Fail(err); span.End() }()

	if s.objects == nil {
		return models.Movie{}, storage.ErrUnavailable
	}
	current, err := s.owned(ctx, callerID, id)
	if err != nil {
		return models.Movie{}, err
	}

	now := s.now()
	img, err := storage.PrepareImage(storage.Portrait, id, filename, size, now)
	if err != nil {
		return models.Movie{}, err
	}
	if err := s.objects.Put(ctx, img.Key, img.ContentType, body); err != nil {
		return models.Movie{}, fmt.Errorf("upload portrait: %w", err)
	}
	if err := s.movies.SetPortrait(ctx, id, s.objects.PublicURL(img.Key), img.Key, now); err != nil {
		s.discard(ctx, img.Key)
		return models.Movie{}, fmt.Errorf("set portrait: %w", err)
	}
	s.records.Delete(id)
	s.discard(ctx, current.PortraitPath)

	return s.Get(ctx, id)
}

// Delete removes a movie owned by callerID together with its portrait.
func (s *MovieService) Delete(ctx context.Context, callerID, id string) (err error) {
	ctx, span := logging.StartSpan(ctx, "movies.delete")
	defer func() { span.Fail(err); span.End() }()

	movie, err := s.owned(ctx, callerID, id)
	if err != nil {
		return err
	}
	if err := s.movies.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}
	s.records.Delete(id)
	s.discard(ctx, movie.PortraitPath)
	logging.FromContext(ctx).Info("movie deleted", "movieId", id)
	return nil
}

func (s *MovieService) owned(ctx context.Context, callerID, id string) (models.Movie, error) {
	if callerID == "" {
		return models.Movie{}, errs.ErrUnauthorized
	}
	movie, err := s.Get(ctx, id)
	if err != nil {
		return models.Movie{}, fmt.Errorf("load movie: %w", err)
	}
	if movie.OwnerID != callerID {
		return models.Movie{}, fmt.Errorf("movie %s: %w", id, errs.ErrForbidden)
	}
	return movie, nil
}

func (s *MovieService) discard(ctx context.Context, keys ...string) {
	discardObjects(ctx, s.janitor, keys...)
}

// discardObjects hands keys to the janitor. Failing to enqueue only leaks an object.
func discardObjects(ctx context.Context, janitor Janitor, keys ...string) {
	if janitor == nil {
		return
	}
	if err := janitor.Enqueue(ctx, keys...); err != nil && !errors.Is(err, context.Canceled) {
		logging.FromContext(ctx).Warn("enqueue object removal", "keys", keys, "error", err)
	}
}

func blankToNil(s *string) *string {
	s = trimmed(s)
	if s == nil || *s == "" {
		return nil
	}
	return s
}
