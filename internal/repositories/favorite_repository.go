package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/moviescrud/backend/internal/db"
)

// PostgresFavoriteRepository stores the (user, movie) favorite pairs.
type PostgresFavoriteRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresFavoriteRepository constructs a favorite repository backed by PostgreSQL.
func NewPostgresFavoriteRepository(pool db.Pool) *PostgresFavoriteRepository {
	return &PostgresFavoriteRepository{pool: pool, now: utcNow}
}

// toggleFavoriteSQL flips the pair in one statement: the delete runs first and
// the insert only fires when nothing was deleted. Concurrent inserts of the same
// pair collapse on the unique constraint.
const toggleFavoriteSQL = `
        WITH removed AS (
            DELETE FROM favorites
            WHERE user_id = $1 AND movie_id = $2
            RETURNING 1
        ),
        inserted AS (
            INSERT INTO favorites (id, user_id, movie_id, created_at)
            SELECT $3, $1, $2, $4
            WHERE NOT EXISTS (SELECT 1 FROM removed)
            ON CONFLICT (user_id, movie_id) DO NOTHING
            RETURNING 1
        )
        SELECT EXISTS (SELECT 1 FROM inserted)`

// Toggle flips the favorite state and reports the resulting state. An unknown
// movie yields errs.ErrNotFound.
func (r *PostgresFavoriteRepository) Toggle(ctx context.Context, userID, movieID string) (bool, error) {
	var favorited bool
	err := r.pool.QueryRow(ctx, toggleFavoriteSQL, userID, movieID, uuid.NewString(), r.now()).Scan(&favorited)
	if err != nil {
		return false, mapError("toggle favorite", err)
	}
	return favorited, nil
}

func (r *PostgresFavoriteRepository) Exists(ctx context.Context, userID, movieID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND movie_id = $2)
    `, userID, movieID).Scan(&exists)
	if err != nil {
		return false, mapError("check favorite", err)
	}
	return exists, nil
}

// MovieIDs lists the favorited movie ids of userID, newest first.
func (r *PostgresFavoriteRepository) MovieIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT movie_id
        FROM favorites
        WHERE user_id = $1
        ORDER BY created_at DESC, id
    `, userID)
	if err != nil {
		return nil, mapError("query favorites", err)
	}
	return collectIDs(rows, "favorites")
}
