package repositories

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/moviescrud/backend/internal/auth"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/models"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestFavoriteRepo_Toggle_SingleStatement(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresFavoriteRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("WITH removed AS")).
		WithArgs("user-1", "movie-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("WITH removed AS")).
		WithArgs("user-1", "movie-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	on, err := repo.Toggle(context.Background(), "user-1", "movie-1")
	require.NoError(t, err)
	require.True(t, on)

	on, err = repo.Toggle(context.Background(), "user-1", "movie-1")
	require.NoError(t, err)
	require.False(t, on)
}

func TestFavoriteRepo_Toggle_UnknownMovie(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresFavoriteRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("WITH removed AS")).
		WithArgs("user-1", "missing", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := repo.Toggle(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPlaylistRepo_AddMovie_Duplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresPlaylistRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO playlist_movies")).
		WithArgs("pl-1", "movie-1", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.AddMovie(context.Background(), "pl-1", "movie-1", time.Now())
	require.ErrorIs(t, err, errs.ErrAlreadyMember)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestPlaylistRepo_AddMovies_RollsBackOnFirstFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresPlaylistRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO playlist_movies")).
		WithArgs("pl-1", "movie-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO playlist_movies")).
		WithArgs("pl-1", "movie-2", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	err := repo.AddMovies(context.Background(), "pl-1", []string{"movie-1", "movie-2", "movie-3"}, time.Now())
	require.ErrorIs(t, err, errs.ErrNotFound)
	id, ok := errs.FailedItem(err)
	require.True(t, ok)
	require.Equal(t, "movie-2", id)
}

func TestPlaylistRepo_AddMovies_Commits(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresPlaylistRepository(mock)

	mock.ExpectBegin()
	for _, id := range []string{"movie-1", "movie-2"} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO playlist_movies")).
			WithArgs("pl-1", id, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.AddMovies(context.Background(), "pl-1", []string{"movie-1", "movie-2"}, time.Now()))
}

func TestPlaylistRepo_RemoveMovie_IsIdempotent(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresPlaylistRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM playlist_movies")).
		WithArgs("pl-1", "movie-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.RemoveMovie(context.Background(), "pl-1", "movie-1"))
}

func TestPlaylistRepo_MovieIDs_OrderedBySeq(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresPlaylistRepository(mock)

	mock.ExpectQuery(`ORDER BY seq`).
		WithArgs("pl-1").
		WillReturnRows(pgxmock.NewRows([]string{"movie_id"}).AddRow("b").AddRow("a"))

	ids, err := repo.MovieIDs(context.Background(), "pl-1")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, ids)
}

func TestPlaylistRepo_Update_NeverWritesOwner(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresPlaylistRepository(mock)
	title := "Renamed"
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE playlists`).
		WithArgs("pl-1", &title, (*string)(nil), (*bool)(nil), now).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "title", "description", "is_public", "created_at", "updated_at"}).
			AddRow("pl-1", "owner-1", title, "", false, now, now))

	playlist, err := repo.Update(context.Background(), "pl-1", models.PlaylistChanges{Title: &title}, now)
	require.NoError(t, err)
	require.Equal(t, "owner-1", playlist.OwnerID)
	require.Equal(t, title, playlist.Title)
}

func TestUserRepo_Create_DuplicateEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresUserRepository(mock)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("u1", "ripley@example.com", "hash", "", false, now, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), models.User{ID: "u1", Email: "Ripley@Example.com", Password: "hash", CreatedAt: now, UpdatedAt: now})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestUserRepo_Delete_Missing(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresUserRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, repo.Delete(context.Background(), "u1"), errs.ErrNotFound)
}

func TestSessionStore_Find_Missing(t *testing.T) {
	mock := newMock(t)
	store := NewPostgresSessionStore(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
		WithArgs("token").
		WillReturnRows(pgxmock.NewRows([]string{"refresh_token", "user_id", "expires_at"}))

	_, err := store.Find(context.Background(), "token")
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestProfileRepo_Create_Conflict(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresProfileRepository(mock)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
		WithArgs("u1", "ripley", "", "", now, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), models.Profile{ID: "u1", Username: "ripley", CreatedAt: now, UpdatedAt: now})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestMovieRepo_Update_OnlyTouchesGivenColumns(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresMovieRepository(mock)
	now := time.Now().UTC()
	title := "Arrival"
	year := 2016

	mock.ExpectQuery(`SET updated_at = \$2, title = \$3, year = \$4`).
		WithArgs("m1", now, title, year).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "year", "director", "duration", "score", "short_desc", "cast", "genres", "portrait_url", "portrait_path", "user_id", "created_at", "updated_at"}).
			AddRow("m1", title, &year, (*string)(nil), (*int)(nil), (*float64)(nil), (*string)(nil), []string{}, []string{"Sci-Fi"}, "", "", "owner-1", now, now))

	movie, err := repo.Update(context.Background(), "m1", models.MovieChanges{Title: &title, Year: &year}, now)
	require.NoError(t, err)
	require.Equal(t, "owner-1", movie.OwnerID)
	require.Equal(t, 2016, *movie.Year)
}

func TestBuildMovieQuery(t *testing.T) {
	from := 2000
	score := 7.5
	query, args := buildMovieQuery(models.MovieFilter{
		Query:    "arr",
		YearFrom: &from,
		MinScore: &score,
		Genre:    "Sci-Fi",
		SortBy:   models.SortByScore,
		SortDesc: true,
		ViewerID: "viewer",
	}.Normalize())

	require.Contains(t, query, "m.title ILIKE $2 OR m.director ILIKE $2")
	require.Contains(t, query, "m.year >= $3")
	require.Contains(t, query, "m.score >= $4")
	require.Contains(t, query, "$5 = ANY(m.genres)")
	require.Contains(t, query, "ORDER BY m.score DESC NULLS LAST, m.id")
	require.True(t, strings.HasSuffix(strings.TrimSpace(query), "LIMIT $6"))
	require.Equal(t, []any{"viewer", "%arr%", 2000, 7.5, "Sci-Fi", 100}, args)
}

func TestBuildMovieQuery_AnonymousViewer(t *testing.T) {
	_, args := buildMovieQuery(models.MovieFilter{}.Normalize())
	require.Nil(t, args[0])
}
