package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moviescrud/backend/internal/auth"
	"github.com/moviescrud/backend/internal/cache"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/events"
	"github.com/moviescrud/backend/internal/metrics"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/repositories"
	"github.com/moviescrud/backend/internal/storage"
)

type recordingJanitor struct {
	mu   sync.Mutex
	keys []string
}

func (j *recordingJanitor) Enqueue(_ context.Context, keys ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, key := range keys {
		if key != "" {
			j.keys = append(j.keys, key)
		}
	}
	return nil
}

func (j *recordingJanitor) queued() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.keys...)
}

type fixture struct {
	store     *repositories.MemoryStore
	objects   *storage.MemoryStorage
	janitor   *recordingJanitor
	bus       *events.MemoryBus
	sessions  *auth.InMemorySessionStore
	records   *cache.TTL[models.Movie]
	accounts  *AccountService
	profiles  *ProfileService
	movies    *MovieService
	favorites *FavoriteService
	playlists *PlaylistService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repositories.NewMemoryStore()
	sessions := auth.NewInMemorySessionStore()
	manager, err := auth.NewManager([]byte("test-secret"), time.Minute, time.Hour, sessions)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	f := &fixture{
		store:    store,
		objects:  storage.NewMemoryStorage("https://cdn.test"),
		janitor:  &recordingJanitor{},
		bus:      events.NewMemoryBus(),
		sessions: sessions,
	}
	m := metrics.New()
	f.records = cache.New[models.Movie](16, time.Minute)
	f.accounts = NewAccountService(store.Users(), store.Profiles(), store.Movies(), manager, f.janitor, f.records)
	f.profiles = NewProfileService(store.Profiles(), store.Users(), f.objects, f.janitor, f.bus)
	f.movies = NewMovieService(store.Movies(), f.objects, f.janitor, f.records)
	f.favorites = NewFavoriteService(store.Favorites(), store.Movies(), m)
	f.playlists = NewPlaylistService(store.Playlists(), store.Movies(), store.Profiles(), m)
	return f
}

func (f *fixture) signUp(t *testing.T, email, username string) models.Session {
	t.Helper()
	session, err := f.accounts.SignUp(context.Background(), SignUpInput{Email: email, Password: "secret-pw", Username: username})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return session
}

func (f *fixture) movie(t *testing.T, ownerID, title string) models.Movie {
	t.Helper()
	movie, err := f.movies.Create(context.Background(), ownerID, MovieInput{Title: title})
	if err != nil {
		t.Fatalf("create movie %s: %v", title, err)
	}
	return movie
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }
func stringPtr(v string) *string { return &v }

func TestToggleTwiceRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "louise@example.com", "banks")
	movie := f.movie(t, user.Identity.ID, "Arrival")

	before, err := f.favorites.IsFavorited(ctx, user.Identity.ID, movie.ID)
	if err != nil {
		t.Fatalf("is favorited: %v", err)
	}

	first, err := f.favorites.Toggle(ctx, user.Identity.ID, movie.ID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if first == before {
		t.Fatalf("first toggle should flip the state")
	}
	second, err := f.favorites.Toggle(ctx, user.Identity.ID, movie.ID)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if second != before {
		t.Fatalf("two toggles should restore %v, got %v", before, second)
	}
}

func TestToggleRequiresIdentityAndMovie(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "louise@example.com", "")

	if _, err := f.favorites.Toggle(ctx, "", "m1"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.favorites.Toggle(ctx, user.Identity.ID, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFavoritesListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "louise@example.com", "")
	arrival := f.movie(t, user.Identity.ID, "Arrival")
	alien := f.movie(t, user.Identity.ID, "Alien")

	for _, id := range []string{arrival.ID, alien.ID} {
		if _, err := f.favorites.Toggle(ctx, user.Identity.ID, id); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	views, err := f.favorites.List(ctx, user.Identity.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 || views[0].ID != alien.ID || views[1].ID != arrival.ID {
		t.Fatalf("unexpected favorites %+v", views)
	}
	for _, view := range views {
		if !view.IsFavorited {
			t.Fatalf("favorites must be annotated as favorited: %+v", view)
		}
	}
}

func TestAddMovieTwiceReportsAlreadyMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "louise@example.com", "")
	movie := f.movie(t, user.Identity.ID, "Arrival")
	playlist, err := f.playlists.Create(ctx, user.Identity.ID, PlaylistInput{Title: "Sci-Fi"})
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	if err := f.playlists.AddMovie(ctx, user.Identity.ID, playlist.ID, movie.ID); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err = f.playlists.AddMovie(ctx, user.Identity.ID, playlist.ID, movie.ID)
	if !errors.Is(err, errs.ErrAlreadyMember) {
		t.Fatalf("expected already member, got %v", err)
	}

	ids, _ := f.store.Playlists().MovieIDs(ctx, playlist.ID)
	if len(ids) != 1 {
		t.Fatalf("membership count should stay 1, got %v", ids)
	}
}

func TestAddMovieChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.signUp(t, "louise@example.com", "")
	other := f.signUp(t, "ian@example.com", "")
	movie := f.movie(t, owner.Identity.ID, "Arrival")
	playlist, _ := f.playlists.Create(ctx, owner.Identity.ID, PlaylistInput{Title: "Sci-Fi", IsPublic: true})

	tests := []struct {
		name       string
		caller     string
		playlistID string
		movieID    string
		want       error
	}{
		{name: "anonymous", caller: "", playlistID: playlist.ID, movieID: movie.ID, want: errs.ErrUnauthorized},
		{name: "not owner", caller: other.Identity.ID, playlistID: playlist.ID, movieID: movie.ID, want: errs.ErrForbidden},
		{name: "missing playlist", caller: owner.Identity.ID, playlistID: "nope", movieID: movie.ID, want: errs.ErrNotFound},
		{name: "missing movie", caller: owner.Identity.ID, playlistID: playlist.ID, movieID: "nope", want: errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.playlists.AddMovie(ctx, tt.caller, tt.playlistID, tt.movieID)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRemoveMovieIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "louise@example.com", "")
	movie := f.movie(t, user.Identity.ID, "Arrival")
	playlist, _ := f.playlists.Create(ctx, user.Identity.ID, PlaylistInput{Title: "Sci-Fi"})

	if err := f.playlists.RemoveMovie(ctx, user.Identity.ID, playlist.ID, movie.ID); err != nil {
		t.Fatalf("remove non-member: %v", err)
	}
	ids, _ := f.store.Playlists().MovieIDs(ctx, playlist.ID)
	if len(ids) != 0 {
		t.Fatalf("membership count should stay 0, got %v", ids)
	}

	if err := f.playlists.AddMovie(ctx, user.Identity.ID, playlist.ID, movie.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.playlists.RemoveMovie(ctx, user.Identity.ID, playlist.ID, movie.ID); err != nil {
			t.Fatalf("remove %d: %v", i, err)
		}
	}
}

func TestListForPlaylistVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.signUp(t, "louise@example.com", "")
	other := f.signUp(t, "ian@example.com", "")
	if _, err := f.profiles.Create(ctx, owner.Identity.ID, "banks"); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	titles := []string{"Contact", "Arrival", "Alien"}
	private, _ := f.playlists.Create(ctx, owner.Identity.ID, PlaylistInput{Title: "Private"})
	public, _ := f.playlists.Create(ctx, owner.Identity.ID, PlaylistInput{Title: "Public", IsPublic: true})
	for _, title := range titles {
		movie := f.movie(t, owner.Identity.ID, title)
		for _, p := range []models.Playlist{private, public} {
			if err := f.playlists.AddMovie(ctx, owner.Identity.ID, p.ID, movie.ID); err != nil {
				t.Fatalf("add %s: %v", title, err)
			}
		}
	}

	for _, viewer := range []string{"", other.Identity.ID} {
		if _, err := f.playlists.ListForPlaylist(ctx, private.ID, viewer); !errors.Is(err, errs.ErrForbidden) {
			t.Fatalf("viewer %q: expected forbidden, got %v", viewer, err)
		}
	}

	cases := []struct {
		playlist models.Playlist
		viewer   string
		isOwner  bool
	}{
		{playlist: private, viewer: owner.Identity.ID, isOwner: true},
		{playlist: public, viewer: "", isOwner: false},
		{playlist: public, viewer: other.Identity.ID, isOwner: false},
	}
	for _, c := range cases {
		details, err := f.playlists.ListForPlaylist(ctx, c.playlist.ID, c.viewer)
		if err != nil {
			t.Fatalf("list %s for %q: %v", c.playlist.Title, c.viewer, err)
		}
		if details.IsOwner != c.isOwner || details.OwnerUsername != "banks" {
			t.Fatalf("unexpected details %+v", details)
		}
		var got []string
		for _, movie := range details.Movies {
			got = append(got, movie.Title)
		}
		if strings.Join(got, ",") != strings.Join(titles, ",") {
			t.Fatalf("expected insertion order %v, got %v", titles, got)
		}
	}
}

func TestAddMoviesIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "louise@example.com", "")
	arrival := f.movie(t, user.Identity.ID, "Arrival")
	alien := f.movie(t, user.Identity.ID, "Alien")
	playlist, _ := f.playlists.Create(ctx, user.Identity.ID, PlaylistInput{Title: "Sci-Fi"})

	err := f.playlists.AddMovies(ctx, user.Identity.ID, playlist.ID, []string{arrival.ID, "missing", alien.ID})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if id, ok := errs.FailedItem(err); !ok || id != "missing" {
		t.Fatalf("expected failure attributed to missing, got %q %v", id, ok)
	}
	ids, _ := f.store.Playlists().MovieIDs(ctx, playlist.ID)
	if len(ids) != 0 {
		t.Fatalf("failed batch must not leave memberships, got %v", ids)
	}

	err = f.playlists.AddMovies(ctx, user.Identity.ID, playlist.ID, []string{arrival.ID, arrival.ID})
	if !errors.Is(err, errs.ErrAlreadyMember) {
		t.Fatalf("expected duplicate ids to be rejected, got %v", err)
	}

	if err := f.playlists.AddMovies(ctx, user.Identity.ID, playlist.ID, []string{arrival.ID, alien.ID}); err != nil {
		t.Fatalf("add movies: %v", err)
	}
	containing, err := f.playlists.ListPlaylistsContaining(ctx, user.Identity.ID, alien.ID)
	if err != nil || len(containing) != 1 || containing[0] != playlist.ID {
		t.Fatalf("unexpected containing playlists %v %v", containing, err)
	}
}

func TestPlaylistOwnerOnlyMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.signUp(t, "louise@example.com", "")
	other := f.signUp(t, "ian@example.com", "")
	playlist, _ := f.playlists.Create(ctx, owner.Identity.ID, PlaylistInput{Title: "Sci-Fi"})

	if _, err := f.playlists.Update(ctx, other.Identity.ID, playlist.ID, PlaylistUpdate{Title: stringPtr("Mine")}); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden update, got %v", err)
	}
	if err := f.playlists.Delete(ctx, other.Identity.ID, playlist.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if _, err := f.playlists.Update(ctx, owner.Identity.ID, playlist.ID, PlaylistUpdate{Title: stringPtr("  ")}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	public := true
	updated, err := f.playlists.Update(ctx, owner.Identity.ID, playlist.ID, PlaylistUpdate{IsPublic: &public})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.IsPublic || updated.Title != "Sci-Fi" || updated.OwnerID != owner.Identity.ID {
		t.Fatalf("unexpected playlist %+v", updated)
	}
	if err := f.playlists.Delete(ctx, owner.Identity.ID, playlist.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestMovieValidationAndOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.signUp(t, "louise@example.com", "")
	other := f.signUp(t, "ian@example.com", "")

	invalid := []MovieInput{
		{Title: "   "},
		{Title: "Arrival", Score: floatPtr(10.5)},
		{Title: "Arrival", Year: intPtr(1850)},
		{Title: "Arrival", Duration: intPtr(0)},
	}
	for _, in := range invalid {
		if _, err := f.movies.Create(ctx, owner.Identity.ID, in); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}

	movie, err := f.movies.Create(ctx, owner.Identity.ID, MovieInput{
		Title:  " Arrival ",
		Year:   intPtr(2016),
		Score:  floatPtr(7.9),
		Cast:   []string{"Amy Adams", " ", "Jeremy Renner"},
		Genres: []string{"Sci-Fi"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if movie.Title != "Arrival" || len(movie.Cast) != 2 {
		t.Fatalf("input should be cleaned: %+v", movie)
	}

	if _, err := f.movies.Update(ctx, other.Identity.ID, movie.ID, MovieUpdate{Title: stringPtr("Mine")}); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := f.movies.Delete(ctx, other.Identity.ID, movie.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if _, err := f.movies.Get(ctx, movie.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	updated, err := f.movies.Update(ctx, owner.Identity.ID, movie.ID, MovieUpdate{Score: floatPtr(8.1)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if *updated.Score != 8.1 || updated.Title != "Arrival" {
		t.Fatalf("unexpected update %+v", updated)
	}
	cached, err := f.movies.Get(ctx, movie.ID)
	if err != nil || *cached.Score != 8.1 {
		t.Fatalf("cache should be invalidated on update, got %+v %v", cached, err)
	}

	view, err := f.movies.View(ctx, movie.ID, other.Identity.ID)
	if err != nil || view.IsFavorited {
		t.Fatalf("unexpected view %+v %v", view, err)
	}
}

func TestPortraitReplacementRemovesOldObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.signUp(t, "louise@example.com", "")
	movie := f.movie(t, owner.Identity.ID, "Arrival")

	first, err := f.movies.UploadPortrait(ctx, owner.Identity.ID, movie.ID, "poster.png", 4, strings.NewReader("png1"))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if !strings.HasPrefix(first.PortraitPath, "portraits/movie_"+movie.ID+"_") || first.PortraitURL != "https://cdn.test/"+first.PortraitPath {
		t.Fatalf("unexpected portrait %q %q", first.PortraitPath, first.PortraitURL)
	}
	if len(f.janitor.queued()) != 0 {
		t.Fatalf("nothing to remove on first upload, got %v", f.janitor.queued())
	}

	time.Sleep(2 * time.Millisecond)
	second, err := f.movies.UploadPortrait(ctx, owner.Identity.ID, movie.ID, "poster.jpg", 4, strings.NewReader("jpg2"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if second.PortraitPath == first.PortraitPath {
		t.Fatal("expected a new object key")
	}
	if got := f.janitor.queued(); len(got) != 1 || got[0] != first.PortraitPath {
		t.Fatalf("expected old portrait to be queued for removal, got %v", got)
	}

	if _, err := f.movies.UploadPortrait(ctx, owner.Identity.ID, movie.ID, "poster.bmp", 4, strings.NewReader("bmp")); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := f.movies.Delete(ctx, owner.Identity.ID, movie.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.janitor.queued(); len(got) != 2 || got[1] != second.PortraitPath {
		t.Fatalf("expected current portrait to be queued on delete, got %v", got)
	}
}

type countingMovies struct {
	MovieRepository
	mu    sync.Mutex
	finds int
}

func (c *countingMovies) FindByID(ctx context.Context, id string) (models.Movie, error) {
	c.mu.Lock()
	c.finds++
	c.mu.Unlock()
	return c.MovieRepository.FindByID(ctx, id)
}

func (c *countingMovies) loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finds
}

func TestOwnershipChecksUseRecordCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.signUp(t, "louise@example.com", "")
	other := f.signUp(t, "ian@example.com", "")

	repo := &countingMovies{MovieRepository: f.store.Movies()}
	svc := NewMovieService(repo, f.objects, f.janitor, cache.New[models.Movie](16, time.Minute))
	movie, err := svc.Create(ctx, owner.Identity.ID, MovieInput{Title: "Arrival"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Update(ctx, other.Identity.ID, movie.ID, MovieUpdate{Title: stringPtr("Mine")}); !errors.Is(err, errs.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	}
	if got := repo.loads(); got != 1 {
		t.Fatalf("repeated ownership checks should hit the cache, got %d loads", got)
	}

	if _, err := svc.Update(ctx, owner.Identity.ID, movie.ID, MovieUpdate{Title: stringPtr("Story of Your Life")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	current, err := svc.Get(ctx, movie.ID)
	if err != nil || current.Title != "Story of Your Life" {
		t.Fatalf("update should evict the stale record, got %+v %v", current, err)
	}
	if got := repo.loads(); got != 2 {
		t.Fatalf("expected a reload after update, got %d loads", got)
	}

	if err := svc.Delete(ctx, owner.Identity.ID, movie.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, movie.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("deleted movie should not be served from cache, got %v", err)
	}
}

func TestProfileLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	louise := f.signUp(t, "louise@example.com", "banks")
	ian := f.signUp(t, "ian.donnelly@example.com", "")

	received := make(chan events.ProfileUpdated, 4)
	unsubscribe, err := f.bus.SubscribeProfileUpdated(func(evt events.ProfileUpdated) { received <- evt })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if _, err := f.profiles.Get(ctx, louise.Identity.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("profiles are created lazily, got %v", err)
	}
	profile, err := f.profiles.Create(ctx, louise.Identity.ID, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if profile.Username != "banks" {
		t.Fatalf("expected username from hint, got %q", profile.Username)
	}
	if _, err := f.profiles.Create(ctx, louise.Identity.ID, ""); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}

	if _, err := f.profiles.Create(ctx, ian.Identity.ID, "banks"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("explicit taken username should conflict, got %v", err)
	}
	ianProfile, err := f.profiles.Create(ctx, ian.Identity.ID, "")
	if err != nil || ianProfile.Username != "ian.donnelly" {
		t.Fatalf("expected e-mail local part, got %+v %v", ianProfile, err)
	}

	available, err := f.profiles.UsernameAvailable(ctx, "banks")
	if err != nil || available {
		t.Fatalf("banks should be taken: %v %v", available, err)
	}
	if _, err := f.profiles.UsernameAvailable(ctx, "a b"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	renamed, err := f.profiles.UpdateUsername(ctx, louise.Identity.ID, "louise")
	if err != nil || renamed.Username != "louise" {
		t.Fatalf("rename: %+v %v", renamed, err)
	}
	select {
	case evt := <-received:
		if evt.IdentityID != louise.Identity.ID || evt.Username != "louise" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a profile update event")
	}

	withAvatar, err := f.profiles.ReplaceAvatar(ctx, louise.Identity.ID, "me.gif", 3, strings.NewReader("gif"))
	if err != nil {
		t.Fatalf("avatar: %v", err)
	}
	if _, _, ok := f.objects.Get(withAvatar.AvatarPath); !ok {
		t.Fatalf("avatar object %q should be stored", withAvatar.AvatarPath)
	}
	if _, err := f.profiles.ReplaceAvatar(ctx, louise.Identity.ID, "me.png", 3<<20, strings.NewReader("big")); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected size validation, got %v", err)
	}
}

func TestSignInByEmailOrUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "Louise@Example.com", "banks")
	if _, err := f.profiles.Create(ctx, user.Identity.ID, ""); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	for _, identifier := range []string{"louise@example.com", "banks"} {
		session, err := f.accounts.SignIn(ctx, identifier, "secret-pw")
		if err != nil {
			t.Fatalf("sign in with %q: %v", identifier, err)
		}
		if session.Identity.ID != user.Identity.ID || session.Tokens.AccessToken == "" {
			t.Fatalf("unexpected session %+v", session)
		}
	}

	for _, c := range []struct{ identifier, password string }{
		{"banks", "wrong-pw"},
		{"nobody", "secret-pw"},
		{"nobody@example.com", "secret-pw"},
	} {
		if _, err := f.accounts.SignIn(ctx, c.identifier, c.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%q: expected invalid credentials, got %v", c.identifier, err)
		}
	}

	if _, err := f.accounts.SignUp(ctx, SignUpInput{Email: "louise@example.com", Password: "secret-pw"}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected duplicate e-mail to conflict, got %v", err)
	}
	if _, err := f.accounts.SignUp(ctx, SignUpInput{Email: "other@example.com", Password: "secret-pw", Username: "banks"}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected taken username to conflict, got %v", err)
	}
	if _, err := f.accounts.SignUp(ctx, SignUpInput{Email: "not-an-email", Password: "secret-pw"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.accounts.SignUp(ctx, SignUpInput{Email: "short@example.com", Password: "12345"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected short password to be rejected, got %v", err)
	}
}

func TestRefreshAndPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signUp(t, "louise@example.com", "")

	refreshed, err := f.accounts.Refresh(ctx, user.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Identity.ID != user.Identity.ID || refreshed.Tokens.RefreshToken == user.Tokens.RefreshToken {
		t.Fatalf("unexpected refreshed session %+v", refreshed)
	}
	if _, err := f.accounts.Refresh(ctx, user.Tokens.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("used refresh token should be rejected, got %v", err)
	}

	if err := f.accounts.ChangePassword(ctx, user.Identity.ID, "new-secret"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := f.accounts.SignIn(ctx, "louise@example.com", "new-secret"); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
	if err := f.accounts.SignOut(ctx, refreshed.Tokens.RefreshToken); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if f.sessions.Has(refreshed.Tokens.RefreshToken) {
		t.Fatal("sign out should revoke the refresh token")
	}

	if err := f.accounts.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("reset for unknown address must not reveal anything: %v", err)
	}
	if err := f.accounts.RequestPasswordReset(ctx, "nope"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	louise := f.signUp(t, "louise@example.com", "banks")
	ian := f.signUp(t, "ian@example.com", "")
	if _, err := f.profiles.Create(ctx, louise.Identity.ID, ""); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	avatar, err := f.profiles.ReplaceAvatar(ctx, louise.Identity.ID, "me.png", 3, strings.NewReader("png"))
	if err != nil {
		t.Fatalf("avatar: %v", err)
	}
	movie := f.movie(t, louise.Identity.ID, "Arrival")
	withPortrait, err := f.movies.UploadPortrait(ctx, louise.Identity.ID, movie.ID, "p.png", 3, strings.NewReader("png"))
	if err != nil {
		t.Fatalf("portrait: %v", err)
	}
	if _, err := f.favorites.Toggle(ctx, ian.Identity.ID, movie.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if err := f.accounts.Delete(ctx, louise.Identity.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := f.accounts.User(ctx, louise.Identity.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("identity should be gone, got %v", err)
	}
	if _, err := f.movies.View(ctx, movie.ID, ""); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("movies should cascade, got %v", err)
	}
	if _, err := f.movies.Get(ctx, movie.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("cached records of deleted movies should be evicted, got %v", err)
	}
	favorites, err := f.favorites.List(ctx, ian.Identity.ID)
	if err != nil || len(favorites) != 0 {
		t.Fatalf("favorites of deleted movies should cascade, got %v %v", favorites, err)
	}
	if f.sessions.Has(louise.Tokens.RefreshToken) {
		t.Fatal("sessions should be revoked")
	}

	queued := strings.Join(f.janitor.queued(), ",")
	for _, key := range []string{withPortrait.PortraitPath, avatar.AvatarPath} {
		if !strings.Contains(queued, key) {
			t.Fatalf("expected %s queued for removal, got %s", key, queued)
		}
	}
}
