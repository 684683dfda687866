package client

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/moviescrud/backend/internal/models"
)

// Optimistic runs the snapshot, apply, commit-or-rollback protocol: the local
// value read by get is replaced with next(previous) before commit runs; commit's
// result is stored on success and the snapshot is restored on failure.
func Optimistic[T any](ctx context.Context, get func() T, set func(T), next func(T) T, commit func(context.Context) (T, error)) (T, error) {
	previous := get()
	set(next(previous))

	value, err := commit(ctx)
	if err != nil {
		set(previous)
		return previous, err
	}
	set(value)
	return value, nil
}

// ErrToggleInFlight is returned when a movie is toggled again on the same
// surface before the previous toggle finished.
var ErrToggleInFlight = errors.New("favorite toggle already in flight")

// FavoriteToggler performs the backend toggle.
type FavoriteToggler interface {
	ToggleFavorite(ctx context.Context, movieID string) (bool, error)
}

// FavoriteSurface is the favorite state cached by one UI surface (a list, a
// detail view, a playlist view). Surfaces do not invalidate each other; each
// one updates its own copy from the toggle result.
type FavoriteSurface struct {
	toggler FavoriteToggler
	state   *gocache.Cache

	mu       sync.Mutex
	inflight map[string]bool
}

// NewFavoriteSurface returns a surface whose entries expire after ttl. A zero
// ttl keeps entries until the surface is dropped.
func NewFavoriteSurface(toggler FavoriteToggler, ttl time.Duration) *FavoriteSurface {
	expiration := gocache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = 2 * ttl
	}
	return &FavoriteSurface{
		toggler:  toggler,
		state:    gocache.New(expiration, cleanup),
		inflight: make(map[string]bool),
	}
}

// Seed records the favorite state of views as loaded by the surface.
func (s *FavoriteSurface) Seed(views []models.MovieView) {
	for _, v := range views {
		s.state.SetDefault(v.ID, v.IsFavorited)
	}
}

// IsFavorited returns the cached state of movieID and whether one is known.
func (s *FavoriteSurface) IsFavorited(movieID string) (favorited, known bool) {
	v, ok := s.state.Get(movieID)
	if !ok {
		return false, false
	}
	return v.(bool), true
}

// Toggle flips movieID optimistically and settles on the backend's answer. On
// failure the previous state is restored and the error returned.
func (s *FavoriteSurface) Toggle(ctx context.Context, movieID string) (bool, error) {
	s.mu.Lock()
	if s.inflight[movieID] {
		s.mu.Unlock()
		return false, ErrToggleInFlight
	}
	s.inflight[movieID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, movieID)
		s.mu.Unlock()
	}()

	get := func() bool {
		favorited, _ := s.IsFavorited(movieID)
		return favorited
	}
	set := func(favorited bool) {
		s.state.SetDefault(movieID, favorited)
	}
	flip := func(favorited bool) bool { return !favorited }

	return Optimistic(ctx, get, set, flip, func(ctx context.Context) (bool, error) {
		return s.toggler.ToggleFavorite(ctx, movieID)
	})
}
