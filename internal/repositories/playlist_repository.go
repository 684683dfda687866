package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moviescrud/backend/internal/db"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/models"
)

// PostgresPlaylistRepository stores playlists and their ordered memberships.
type PostgresPlaylistRepository struct {
	pool db.Pool
}

// NewPostgresPlaylistRepository constructs a playlist repository backed by PostgreSQL.
func NewPostgresPlaylistRepository(pool db.Pool) *PostgresPlaylistRepository {
	return &PostgresPlaylistRepository{pool: pool}
}

const playlistColumns = `id, user_id, title, description, is_public, created_at, updated_at`

const insertMembershipSQL = `
        INSERT INTO playlist_movies (playlist_id, movie_id, created_at)
        VALUES ($1, $2, $3)`

func (r *PostgresPlaylistRepository) Create(ctx context.Context, playlist models.Playlist) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO playlists (id, user_id, title, description, is_public, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, playlist.ID, playlist.OwnerID, playlist.Title, playlist.Description, playlist.IsPublic, playlist.CreatedAt, playlist.UpdatedAt)
	return mapError("insert playlist", err)
}

func (r *PostgresPlaylistRepository) FindByID(ctx context.Context, id string) (models.Playlist, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+playlistColumns+` FROM playlists WHERE id = $1`, id)
	playlist, err := scanPlaylist(row)
	if err != nil {
		return models.Playlist{}, mapError("select playlist", err)
	}
	return playlist, nil
}

// Update applies the non-nil fields of changes. The owner column is never written.
func (r *PostgresPlaylistRepository) Update(ctx context.Context, id string, changes models.PlaylistChanges, at time.Time) (models.Playlist, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE playlists
        SET title = COALESCE($2, title),
            description = COALESCE($3, description),
            is_public = COALESCE($4, is_public),
            updated_at = $5
        WHERE id = $1
        RETURNING `+playlistColumns, id, changes.Title, changes.Description, changes.IsPublic, at)
	playlist, err := scanPlaylist(row)
	if err != nil {
		return models.Playlist{}, mapError("update playlist", err)
	}
	return playlist, nil
}

// Delete removes the playlist and its memberships.
func (r *PostgresPlaylistRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return mapError("delete playlist", err)
	}
	return expectOne(tag, "delete playlist")
}

// ListByOwner returns ownerID's playlists, newest first.
func (r *PostgresPlaylistRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Playlist, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+playlistColumns+`
        FROM playlists
        WHERE user_id = $1
        ORDER BY created_at DESC, id
    `, ownerID)
	if err != nil {
		return nil, mapError("query playlists", err)
	}
	defer rows.Close()

	playlists := make([]models.Playlist, 0)
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, mapError("scan playlist", err)
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate playlists", err)
	}
	return playlists, nil
}

// AddMovie inserts a membership. A duplicate pair yields errs.ErrAlreadyMember and
// an unknown playlist or movie yields errs.ErrNotFound.
func (r *PostgresPlaylistRepository) AddMovie(ctx context.Context, playlistID, movieID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, insertMembershipSQL, playlistID, movieID, at)
	return membershipError(err)
}

// AddMovies inserts every membership in one transaction, in the given order.
// The first failure rolls the batch back and is reported as an *errs.ItemError.
func (r *PostgresPlaylistRepository) AddMovies(ctx context.Context, playlistID string, movieIDs []string, at time.Time) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, movieID := range movieIDs {
			if _, err := tx.Exec(ctx, insertMembershipSQL, playlistID, movieID, at); err != nil {
				return &errs.ItemError{ID: movieID, Err: membershipError(err)}
			}
		}
		return nil
	})
}

// RemoveMovie deletes the membership if present; absence is not an error.
func (r *PostgresPlaylistRepository) RemoveMovie(ctx context.Context, playlistID, movieID string) error {
	_, err := r.pool.Exec(ctx, `
        DELETE FROM playlist_movies
        WHERE playlist_id = $1 AND movie_id = $2
    `, playlistID, movieID)
	return mapError("delete playlist membership", err)
}

func (r *PostgresPlaylistRepository) HasMovie(ctx context.Context, playlistID, movieID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM playlist_movies WHERE playlist_id = $1 AND movie_id = $2)
    `, playlistID, movieID).Scan(&exists)
	if err != nil {
		return false, mapError("check playlist membership", err)
	}
	return exists, nil
}

// MovieIDs returns the members of playlistID in insertion order.
func (r *PostgresPlaylistRepository) MovieIDs(ctx context.Context, playlistID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT movie_id
        FROM playlist_movies
        WHERE playlist_id = $1
        ORDER BY seq
    `, playlistID)
	if err != nil {
		return nil, mapError("query playlist movies", err)
	}
	return collectIDs(rows, "playlist movies")
}

// ContainingMovie returns the ids of ownerID's playlists that include movieID.
func (r *PostgresPlaylistRepository) ContainingMovie(ctx context.Context, ownerID, movieID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT pm.playlist_id
        FROM playlist_movies pm
        JOIN playlists p ON p.id = pm.playlist_id
        WHERE p.user_id = $1 AND pm.movie_id = $2
        ORDER BY pm.seq
    `, ownerID, movieID)
	if err != nil {
		return nil, mapError("query playlists containing movie", err)
	}
	return collectIDs(rows, "playlist ids")
}

func membershipError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("insert playlist membership: %w", errs.ErrAlreadyMember)
	}
	return mapError("insert playlist membership", err)
}

func scanPlaylist(row scanner) (models.Playlist, error) {
	var p models.Playlist
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
