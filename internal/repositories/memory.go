package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/models"
)

// MemoryStore keeps the whole catalog in process. It enforces the same unique
// and foreign key rules as the SQL schema, including cascades, and backs the
// repositories returned by its accessors.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	profiles  map[string]models.Profile
	movies    map[string]models.Movie
	favorites map[favoriteKey]models.Favorite
	playlists map[string]models.Playlist
	members   []membership
	seq       int64
}

type favoriteKey struct{ userID, movieID string }

type membership struct {
	seq        int64
	playlistID string
	movieID    string
	createdAt  time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]models.User),
		profiles:  make(map[string]models.Profile),
		movies:    make(map[string]models.Movie),
		favorites: make(map[favoriteKey]models.Favorite),
		playlists: make(map[string]models.Playlist),
	}
}

func (s *MemoryStore) Users() *MemoryUserRepository         { return &MemoryUserRepository{s} }
func (s *MemoryStore) Profiles() *MemoryProfileRepository   { return &MemoryProfileRepository{s} }
func (s *MemoryStore) Movies() *MemoryMovieRepository       { return &MemoryMovieRepository{s} }
func (s *MemoryStore) Favorites() *MemoryFavoriteRepository { return &MemoryFavoriteRepository{s} }
func (s *MemoryStore) Playlists() *MemoryPlaylistRepository { return &MemoryPlaylistRepository{s} }

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, errs.ErrNotFound)
}

// MemoryUserRepository is the in-memory identity table.
type MemoryUserRepository struct{ s *MemoryStore }

func (r *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	if _, ok := r.s.users[user.ID]; ok {
		return fmt.Errorf("insert user: %w", errs.ErrAlreadyExists)
	}
	for _, existing := range r.s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("insert user: %w", errs.ErrAlreadyExists)
		}
	}
	r.s.users[user.ID] = user
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return models.User{}, notFound("select user by id")
	}
	return user, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range r.s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, notFound("select user by email")
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id, passwordHash string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return notFound("update password")
	}
	user.Password = passwordHash
	user.UpdatedAt = at
	r.s.users[id] = user
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return notFound("delete user")
	}
	delete(r.s.users, id)
	delete(r.s.profiles, id)
	for movieID, movie := range r.s.movies {
		if movie.OwnerID == id {
			r.s.deleteMovieLocked(movieID)
		}
	}
	for playlistID, playlist := range r.s.playlists {
		if playlist.OwnerID == id {
			r.s.deletePlaylistLocked(playlistID)
		}
	}
	for key := range r.s.favorites {
		if key.userID == id {
			delete(r.s.favorites, key)
		}
	}
	return nil
}

// MemoryProfileRepository is the in-memory profile table.
type MemoryProfileRepository struct{ s *MemoryStore }

func (r *MemoryProfileRepository) Create(_ context.Context, profile models.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[profile.ID]; !ok {
		return notFound("insert profile")
	}
	if _, ok := r.s.profiles[profile.ID]; ok {
		return fmt.Errorf("insert profile: %w", errs.ErrAlreadyExists)
	}
	if r.s.usernameTakenLocked(profile.Username, profile.ID) {
		return fmt.Errorf("insert profile: %w", errs.ErrAlreadyExists)
	}
	r.s.profiles[profile.ID] = profile
	return nil
}

func (r *MemoryProfileRepository) FindByID(_ context.Context, id string) (models.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	profile, ok := r.s.profiles[id]
	if !ok {
		return models.Profile{}, notFound("select profile")
	}
	return profile, nil
}

func (r *MemoryProfileRepository) FindByUsername(_ context.Context, username string) (models.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, profile := range r.s.profiles {
		if profile.Username == username {
			return profile, nil
		}
	}
	return models.Profile{}, notFound("select profile by username")
}

func (r *MemoryProfileRepository) UpdateUsername(_ context.Context, id, username string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	profile, ok := r.s.profiles[id]
	if !ok {
		return notFound("update username")
	}
	if r.s.usernameTakenLocked(username, id) {
		return fmt.Errorf("update username: %w", errs.ErrAlreadyExists)
	}
	profile.Username = username
	profile.UpdatedAt = at
	r.s.profiles[id] = profile
	return nil
}

func (r *MemoryProfileRepository) UpdateAvatar(_ context.Context, id, url, path string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	profile, ok := r.s.profiles[id]
	if !ok {
		return notFound("update avatar")
	}
	profile.AvatarURL = url
	profile.AvatarPath = path
	profile.UpdatedAt = at
	r.s.profiles[id] = profile
	return nil
}

func (s *MemoryStore) usernameTakenLocked(username, exceptID string) bool {
	for id, profile := range s.profiles {
		if id != exceptID && profile.Username == username {
			return true
		}
	}
	return false
}

// MemoryMovieRepository is the in-memory movie table.
type MemoryMovieRepository struct{ s *MemoryStore }

func (r *MemoryMovieRepository) Create(_ context.Context, movie models.Movie) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[movie.OwnerID]; !ok {
		return notFound("insert movie")
	}
	if _, ok := r.s.movies[movie.ID]; ok {
		return fmt.Errorf("insert movie: %w", errs.ErrAlreadyExists)
	}
	r.s.movies[movie.ID] = cloneMovie(movie)
	return nil
}

func (r *MemoryMovieRepository) FindByID(_ context.Context, id string) (models.Movie, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	movie, ok := r.s.movies[id]
	if !ok {
		return models.Movie{}, notFound("select movie")
	}
	return cloneMovie(movie), nil
}

func (r *MemoryMovieRepository) Update(_ context.Context, id string, changes models.MovieChanges, at time.Time) (models.Movie, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	movie, ok := r.s.movies[id]
	if !ok {
		return models.Movie{}, notFound("update movie")
	}
	if changes.Title != nil {
		movie.Title = *changes.Title
	}
	if changes.Year != nil {
		movie.Year = intPtr(*changes.Year)
	}
	if changes.Director != nil {
		movie.Director = stringPtr(*changes.Director)
	}
	if changes.Duration != nil {
		movie.Duration = intPtr(*changes.Duration)
	}
	if changes.Score != nil {
		score := *changes.Score
		movie.Score = &score
	}
	if changes.ShortDesc != nil {
		movie.ShortDesc = stringPtr(*changes.ShortDesc)
	}
	if changes.Cast != nil {
		movie.Cast = append([]string(nil), changes.Cast...)
	}
	if changes.Genres != nil {
		movie.Genres = append([]string(nil), changes.Genres...)
	}
	movie.UpdatedAt = at
	r.s.movies[id] = movie
	return cloneMovie(movie), nil
}

func (r *MemoryMovieRepository) SetPortrait(_ context.Context, id, url, path string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	movie, ok := r.s.movies[id]
	if !ok {
		return notFound("update portrait")
	}
	movie.PortraitURL = url
	movie.PortraitPath = path
	movie.UpdatedAt = at
	r.s.movies[id] = movie
	return nil
}

func (r *MemoryMovieRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.movies[id]; !ok {
		return notFound("delete movie")
	}
	r.s.deleteMovieLocked(id)
	return nil
}

func (r *MemoryMovieRepository) List(_ context.Context, filter models.MovieFilter) ([]models.MovieView, error) {
	filter = filter.Normalize()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var ids map[string]bool
	if filter.MovieIDs != nil {
		ids = make(map[string]bool, len(filter.MovieIDs))
		for _, id := range filter.MovieIDs {
			ids[id] = true
		}
	}
	query := strings.ToLower(filter.Query)

	views := make([]models.MovieView, 0)
	for _, movie := range r.s.movies {
		switch {
		case ids != nil && !ids[movie.ID]:
			continue
		case filter.OwnerID != "" && movie.OwnerID != filter.OwnerID:
			continue
		case query != "" && !strings.Contains(strings.ToLower(movie.Title), query) &&
			(movie.Director == nil || !strings.Contains(strings.ToLower(*movie.Director), query)):
			continue
		case filter.YearFrom != nil && (movie.Year == nil || *movie.Year < *filter.YearFrom):
			continue
		case filter.YearTo != nil && (movie.Year == nil || *movie.Year > *filter.YearTo):
			continue
		case filter.MinScore != nil && (movie.Score == nil || *movie.Score < *filter.MinScore):
			continue
		case filter.Genre != "" && !containsString(movie.Genres, filter.Genre):
			continue
		}

		_, favorited := r.s.favorites[favoriteKey{filter.ViewerID, movie.ID}]
		views = append(views, models.MovieView{
			Movie:         cloneMovie(movie),
			OwnerUsername: r.s.profiles[movie.OwnerID].Username,
			IsFavorited:   filter.ViewerID != "" && favorited,
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		return movieBefore(views[i].Movie, views[j].Movie, filter.SortBy, filter.SortDesc)
	})

	if len(views) > filter.Limit {
		views = views[:filter.Limit]
	}
	return views, nil
}

// movieBefore mirrors ORDER BY <col> <dir> NULLS LAST, id.
func movieBefore(a, b models.Movie, sortBy string, desc bool) bool {
	var cmp int
	nulls := false
	switch sortBy {
	case models.SortByYear:
		cmp, nulls = compareOptional(a.Year, b.Year)
	case models.SortByScore:
		cmp, nulls = compareOptional(a.Score, b.Score)
	case models.SortByCreatedAt:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	default:
		cmp = strings.Compare(a.Title, b.Title)
	}
	if cmp == 0 {
		return a.ID < b.ID
	}
	if desc && !nulls {
		cmp = -cmp
	}
	return cmp < 0
}

// compareOptional reports nulls=true when exactly one side is missing; the
// missing side then always compares greater.
func compareOptional[T int | float64](a, b *T) (cmp int, nulls bool) {
	switch {
	case a == nil && b == nil:
		return 0, false
	case a == nil:
		return 1, true
	case b == nil:
		return -1, true
	case *a < *b:
		return -1, false
	case *a > *b:
		return 1, false
	default:
		return 0, false
	}
}

func (s *MemoryStore) deleteMovieLocked(id string) {
	delete(s.movies, id)
	for key := range s.favorites {
		if key.movieID == id {
			delete(s.favorites, key)
		}
	}
	kept := s.members[:0]
	for _, m := range s.members {
		if m.movieID != id {
			kept = append(kept, m)
		}
	}
	s.members = kept
}

// MemoryFavoriteRepository is the in-memory favorites table.
type MemoryFavoriteRepository struct{ s *MemoryStore }

// Toggle flips the pair under the store lock, which makes it atomic.
func (r *MemoryFavoriteRepository) Toggle(_ context.Context, userID, movieID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.movies[movieID]; !ok {
		return false, notFound("toggle favorite")
	}
	if _, ok := r.s.users[userID]; !ok {
		return false, notFound("toggle favorite")
	}
	key := favoriteKey{userID, movieID}
	if _, ok := r.s.favorites[key]; ok {
		delete(r.s.favorites, key)
		return false, nil
	}
	r.s.favorites[key] = models.Favorite{ID: uuid.NewString(), UserID: userID, MovieID: movieID, CreatedAt: utcNow()}
	return true, nil
}

func (r *MemoryFavoriteRepository) Exists(_ context.Context, userID, movieID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.favorites[favoriteKey{userID, movieID}]
	return ok, nil
}

func (r *MemoryFavoriteRepository) MovieIDs(_ context.Context, userID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var favs []models.Favorite
	for key, fav := range r.s.favorites {
		if key.userID == userID {
			favs = append(favs, fav)
		}
	}
	sort.Slice(favs, func(i, j int) bool {
		if favs[i].CreatedAt.Equal(favs[j].CreatedAt) {
			return favs[i].ID < favs[j].ID
		}
		return favs[i].CreatedAt.After(favs[j].CreatedAt)
	})
	ids := make([]string, 0, len(favs))
	for _, fav := range favs {
		ids = append(ids, fav.MovieID)
	}
	return ids, nil
}

// MemoryPlaylistRepository is the in-memory playlist and membership tables.
type MemoryPlaylistRepository struct{ s *MemoryStore }

func (r *MemoryPlaylistRepository) Create(_ context.Context, playlist models.Playlist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[playlist.OwnerID]; !ok {
		return notFound("insert playlist")
	}
	if _, ok := r.s.playlists[playlist.ID]; ok {
		return fmt.Errorf("insert playlist: %w", errs.ErrAlreadyExists)
	}
	r.s.playlists[playlist.ID] = playlist
	return nil
}

func (r *MemoryPlaylistRepository) FindByID(_ context.Context, id string) (models.Playlist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	playlist, ok := r.s.playlists[id]
	if !ok {
		return models.Playlist{}, notFound("select playlist")
	}
	return playlist, nil
}

func (r *MemoryPlaylistRepository) Update(_ context.Context, id string, changes models.PlaylistChanges, at time.Time) (models.Playlist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	playlist, ok := r.s.playlists[id]
	if !ok {
		return models.Playlist{}, notFound("update playlist")
	}
	if changes.Title != nil {
		playlist.Title = *changes.Title
	}
	if changes.Description != nil {
		playlist.Description = *changes.Description
	}
	if changes.IsPublic != nil {
		playlist.IsPublic = *changes.IsPublic
	}
	playlist.UpdatedAt = at
	r.s.playlists[id] = playlist
	return playlist, nil
}

func (r *MemoryPlaylistRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.playlists[id]; !ok {
		return notFound("delete playlist")
	}
	r.s.deletePlaylistLocked(id)
	return nil
}

func (r *MemoryPlaylistRepository) ListByOwner(_ context.Context, ownerID string) ([]models.Playlist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	playlists := make([]models.Playlist, 0)
	for _, playlist := range r.s.playlists {
		if playlist.OwnerID == ownerID {
			playlists = append(playlists, playlist)
		}
	}
	sort.Slice(playlists, func(i, j int) bool {
		if playlists[i].CreatedAt.Equal(playlists[j].CreatedAt) {
			return playlists[i].ID < playlists[j].ID
		}
		return playlists[i].CreatedAt.After(playlists[j].CreatedAt)
	})
	return playlists, nil
}

func (r *MemoryPlaylistRepository) AddMovie(_ context.Context, playlistID, movieID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.addMemberLocked(playlistID, movieID, at)
}

// AddMovies is all-or-nothing: memberships are only appended once every pair validated.
func (r *MemoryPlaylistRepository) AddMovies(_ context.Context, playlistID string, movieIDs []string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	snapshot := len(r.s.members)
	seq := r.s.seq
	for _, movieID := range movieIDs {
		if err := r.s.addMemberLocked(playlistID, movieID, at); err != nil {
			r.s.members = r.s.members[:snapshot]
			r.s.seq = seq
			return &errs.ItemError{ID: movieID, Err: err}
		}
	}
	return nil
}

func (r *MemoryPlaylistRepository) RemoveMovie(_ context.Context, playlistID, movieID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.members[:0]
	for _, m := range r.s.members {
		if m.playlistID != playlistID || m.movieID != movieID {
			kept = append(kept, m)
		}
	}
	r.s.members = kept
	return nil
}

func (r *MemoryPlaylistRepository) HasMovie(_ context.Context, playlistID, movieID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.hasMemberLocked(playlistID, movieID), nil
}

func (r *MemoryPlaylistRepository) MovieIDs(_ context.Context, playlistID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]string, 0)
	for _, m := range r.s.members {
		if m.playlistID == playlistID {
			ids = append(ids, m.movieID)
		}
	}
	return ids, nil
}

func (r *MemoryPlaylistRepository) ContainingMovie(_ context.Context, ownerID, movieID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]string, 0)
	for _, m := range r.s.members {
		if m.movieID == movieID && r.s.playlists[m.playlistID].OwnerID == ownerID {
			ids = append(ids, m.playlistID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) addMemberLocked(playlistID, movieID string, at time.Time) error {
	if _, ok := s.playlists[playlistID]; !ok {
		return notFound("insert playlist membership")
	}
	if _, ok := s.movies[movieID]; !ok {
		return notFound("insert playlist membership")
	}
	if s.hasMemberLocked(playlistID, movieID) {
		return fmt.Errorf("insert playlist membership: %w", errs.ErrAlreadyMember)
	}
	s.seq++
	s.members = append(s.members, membership{seq: s.seq, playlistID: playlistID, movieID: movieID, createdAt: at})
	return nil
}

func (s *MemoryStore) hasMemberLocked(playlistID, movieID string) bool {
	for _, m := range s.members {
		if m.playlistID == playlistID && m.movieID == movieID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) deletePlaylistLocked(id string) {
	delete(s.playlists, id)
	kept := s.members[:0]
	for _, m := range s.members {
		if m.playlistID != id {
			kept = append(kept, m)
		}
	}
	s.members = kept
}

func cloneMovie(m models.Movie) models.Movie {
	m.Cast = append([]string(nil), m.Cast...)
	m.Genres = append([]string(nil), m.Genres...)
	return m
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }
