package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moviescrud/backend/internal/db"
	"github.com/moviescrud/backend/internal/models"
)

// PostgresMovieRepository persists catalog entries.
type PostgresMovieRepository struct {
	pool db.Pool
}

// NewPostgresMovieRepository constructs a movie repository backed by PostgreSQL.
func NewPostgresMovieRepository(pool db.Pool) *PostgresMovieRepository {
	return &PostgresMovieRepository{pool: pool}
}

const movieColumns = `m.id, m.title, m.year, m.director, m.duration, m.score::float8, m.short_desc, m."cast", m.genres, m.portrait_url, m.portrait_path, m.user_id, m.created_at, m.updated_at`

var sortColumns = map[string]string{
	models.SortByTitle:     "m.title",
	models.SortByYear:      "m.year",
	models.SortByScore:     "m.score",
	models.SortByCreatedAt: "m.created_at",
}

func (r *PostgresMovieRepository) Create(ctx context.Context, movie models.Movie) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO movies (id, title, year, director, duration, score, short_desc, "cast", genres, portrait_url, portrait_path, user_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `, movie.ID, movie.Title, movie.Year, movie.Director, movie.Duration, movie.Score, movie.ShortDesc,
		nonNil(movie.Cast), nonNil(movie.Genres), movie.PortraitURL, movie.PortraitPath, movie.OwnerID, movie.CreatedAt, movie.UpdatedAt)
	return mapError("insert movie", err)
}

func (r *PostgresMovieRepository) FindByID(ctx context.Context, id string) (models.Movie, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movieColumns+` FROM movies m WHERE m.id = $1`, id)
	movie, err := scanMovie(row)
	if err != nil {
		return models.Movie{}, mapError("select movie", err)
	}
	return movie, nil
}

// Update applies the non-nil fields of changes. The owner column is never written.
func (r *PostgresMovieRepository) Update(ctx context.Context, id string, changes models.MovieChanges, at time.Time) (models.Movie, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, at}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if changes.Title != nil {
		add("title", *changes.Title)
	}
	if changes.Year != nil {
		add("year", *changes.Year)
	}
	if changes.Director != nil {
		add("director", *changes.Director)
	}
	if changes.Duration != nil {
		add("duration", *changes.Duration)
	}
	if changes.Score != nil {
		add("score", *changes.Score)
	}
	if changes.ShortDesc != nil {
		add("short_desc", *changes.ShortDesc)
	}
	if changes.Cast != nil {
		add(`"cast"`, changes.Cast)
	}
	if changes.Genres != nil {
		add("genres", changes.Genres)
	}

	row := r.pool.QueryRow(ctx, `
        UPDATE movies AS m
        SET `+strings.Join(sets, ", ")+`
        WHERE m.id = $1
        RETURNING `+movieColumns, args...)
	movie, err := scanMovie(row)
	if err != nil {
		return models.Movie{}, mapError("update movie", err)
	}
	return movie, nil
}

// SetPortrait swaps the portrait pointer.
func (r *PostgresMovieRepository) SetPortrait(ctx context.Context, id, url, path string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE movies
        SET portrait_url = $2, portrait_path = $3, updated_at = $4
        WHERE id = $1
    `, id, url, path, at)
	if err != nil {
		return mapError("update portrait", err)
	}
	return expectOne(tag, "update portrait")
}

// Delete removes the movie; favorites and playlist memberships cascade.
func (r *PostgresMovieRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return mapError("delete movie", err)
	}
	return expectOne(tag, "delete movie")
}

// List returns movies matching filter annotated for filter.ViewerID.
func (r *PostgresMovieRepository) List(ctx context.Context, filter models.MovieFilter) ([]models.MovieView, error) {
	filter = filter.Normalize()
	query, args := buildMovieQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("query movies", err)
	}
	defer rows.Close()

	views := make([]models.MovieView, 0)
	for rows.Next() {
		var view models.MovieView
		if err := rows.Scan(movieDest(&view.Movie, &view.OwnerUsername, &view.IsFavorited)...); err != nil {
			return nil, mapError("scan movie", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate movies", err)
	}
	return views, nil
}

func buildMovieQuery(filter models.MovieFilter) (string, []any) {
	args := []any{nullable(filter.ViewerID)}
	var where []string
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Query != "" {
		p := arg("%" + filter.Query + "%")
		where = append(where, fmt.Sprintf("(m.title ILIKE %s OR m.director ILIKE %s)", p, p))
	}
	if filter.YearFrom != nil {
		where = append(where, "m.year >= "+arg(*filter.YearFrom))
	}
	if filter.YearTo != nil {
		where = append(where, "m.year <= "+arg(*filter.YearTo))
	}
	if filter.MinScore != nil {
		where = append(where, "m.score >= "+arg(*filter.MinScore))
	}
	if filter.Genre != "" {
		where = append(where, arg(filter.Genre)+" = ANY(m.genres)")
	}
	if filter.OwnerID != "" {
		where = append(where, "m.user_id = "+arg(filter.OwnerID))
	}
	if filter.MovieIDs != nil {
		where = append(where, "m.id = ANY("+arg(filter.MovieIDs)+"::uuid[])")
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + movieColumns + `, COALESCE(p.username, ''),
        EXISTS (SELECT 1 FROM favorites f WHERE f.movie_id = m.id AND f.user_id = $1::uuid)
        FROM movies m
        LEFT JOIN profiles p ON p.id = m.user_id`)
	if len(where) > 0 {
		b.WriteString("\n        WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	fmt.Fprintf(&b, "\n        ORDER BY %s %s NULLS LAST, m.id", sortColumns[filter.SortBy], direction)
	b.WriteString("\n        LIMIT " + arg(filter.Limit))

	return b.String(), args
}

func scanMovie(row scanner) (models.Movie, error) {
	var movie models.Movie
	err := row.Scan(movieDest(&movie)...)
	return movie, err
}

func movieDest(m *models.Movie, extra ...any) []any {
	dest := []any{&m.ID, &m.Title, &m.Year, &m.Director, &m.Duration, &m.Score, &m.ShortDesc,
		&m.Cast, &m.Genres, &m.PortraitURL, &m.PortraitPath, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt}
	return append(dest, extra...)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
