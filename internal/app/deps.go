package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moviescrud/backend/internal/auth"
	"github.com/moviescrud/backend/internal/cache"
	"github.com/moviescrud/backend/internal/catalog"
	"github.com/moviescrud/backend/internal/config"
	"github.com/moviescrud/backend/internal/db"
	"github.com/moviescrud/backend/internal/events"
	"github.com/moviescrud/backend/internal/handlers"
	"github.com/moviescrud/backend/internal/metrics"
	"github.com/moviescrud/backend/internal/middleware"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/repositories"
	"github.com/moviescrud/backend/internal/storage"
)

// limiterIdleTTL is how long an idle client keeps its rate limit bucket.
const limiterIdleTTL = 10 * time.Minute

type repositorySet struct {
	users     catalog.UserRepository
	profiles  catalog.ProfileRepository
	movies    catalog.MovieRepository
	favorites catalog.FavoriteRepository
	playlists catalog.PlaylistRepository
	sessions  auth.SessionStore
}

// newRepositories returns PostgreSQL repositories, or in-memory ones when pool is nil.
func newRepositories(pool db.Pool) repositorySet {
	if pool == nil {
		store := repositories.NewMemoryStore()
		return repositorySet{
			users:     store.Users(),
			profiles:  store.Profiles(),
			movies:    store.Movies(),
			favorites: store.Favorites(),
			playlists: store.Playlists(),
			sessions:  auth.NewInMemorySessionStore(),
		}
	}
	return repositorySet{
		users:     repositories.NewPostgresUserRepository(pool),
		profiles:  repositories.NewPostgresProfileRepository(pool),
		movies:    repositories.NewPostgresMovieRepository(pool),
		favorites: repositories.NewPostgresFavoriteRepository(pool),
		playlists: repositories.NewPostgresPlaylistRepository(pool),
		sessions:  repositories.NewPostgresSessionStore(pool),
	}
}

func newObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if cfg.ObjectStore.Bucket != "" {
		return storage.NewS3Storage(ctx, cfg.ObjectStore)
	}
	baseURL := cfg.ObjectStore.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d/objects", cfg.AppPort)
	}
	return storage.NewMemoryStorage(baseURL), nil
}

func newBus(cfg config.Config, logger *slog.Logger) (events.Bus, error) {
	if cfg.NATSURL == "" {
		return events.NewMemoryBus(), nil
	}
	return events.ConnectNATS(cfg.NATSURL, logger)
}

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. A nil pool selects the in-memory repositories. The returned
// cleanup drains the object janitor and closes the event bus.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, m *metrics.Metrics, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}
	bus, err := newBus(cfg, logger)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	repos := newRepositories(pool)
	tokens, err := auth.NewManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, repos.sessions)
	if err != nil {
		_ = bus.Close()
		return handlers.Dependencies{}, nil, err
	}

	janitor := storage.NewJanitor(objects, storage.JanitorConfig{Workers: cfg.ObjectStore.Janitors}, logger.With("component", "janitor"))
	movieRecords := cache.New[models.Movie](cfg.Cache.Size, cfg.Cache.TTL)

	deps := handlers.Dependencies{
		Accounts:  catalog.NewAccountService(repos.users, repos.profiles, repos.movies, tokens, janitor, movieRecords),
		Profiles:  catalog.NewProfileService(repos.profiles, repos.users, objects, janitor, bus),
		Movies:    catalog.NewMovieService(repos.movies, objects, janitor, movieRecords),
		Favorites: catalog.NewFavoriteService(repos.favorites, repos.movies, m),
		Playlists: catalog.NewPlaylistService(repos.playlists, repos.movies, repos.profiles, m),
		Tokens:    tokens,
		Limiter:   middleware.NewKeyedLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, limiterIdleTTL),
	}
	if pool != nil {
		deps.Database = pool
	}
	if m != nil {
		deps.Metrics = m.Handler()
	}

	cleanup := func(ctx context.Context) error {
		return errors.Join(janitor.Shutdown(ctx), bus.Close())
	}
	return deps, cleanup, nil
}
