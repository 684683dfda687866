package repositories

import (
	"context"
	"time"

	"github.com/moviescrud/backend/internal/db"
	"github.com/moviescrud/backend/internal/models"
)

// PostgresProfileRepository stores the profile attached to each identity.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

const profileColumns = `id, username, avatar_url, avatar_path, created_at, updated_at`

// Create inserts a profile. A second profile for the same identity, or a taken
// username, yields errs.ErrAlreadyExists.
func (r *PostgresProfileRepository) Create(ctx context.Context, profile models.Profile) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO profiles (id, username, avatar_url, avatar_path, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, profile.ID, profile.Username, profile.AvatarURL, profile.AvatarPath, profile.CreatedAt, profile.UpdatedAt)
	return mapError("insert profile", err)
}

func (r *PostgresProfileRepository) FindByID(ctx context.Context, id string) (models.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	profile, err := scanProfile(row)
	if err != nil {
		return models.Profile{}, mapError("select profile", err)
	}
	return profile, nil
}

func (r *PostgresProfileRepository) FindByUsername(ctx context.Context, username string) (models.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username)
	profile, err := scanProfile(row)
	if err != nil {
		return models.Profile{}, mapError("select profile by username", err)
	}
	return profile, nil
}

func (r *PostgresProfileRepository) UpdateUsername(ctx context.Context, id, username string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE profiles
        SET username = $2, updated_at = $3
        WHERE id = $1
    `, id, username, at)
	if err != nil {
		return mapError("update username", err)
	}
	return expectOne(tag, "update username")
}

// UpdateAvatar swaps the avatar pointer.
func (r *PostgresProfileRepository) UpdateAvatar(ctx context.Context, id, url, path string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE profiles
        SET avatar_url = $2, avatar_path = $3, updated_at = $4
        WHERE id = $1
    `, id, url, path, at)
	if err != nil {
		return mapError("update avatar", err)
	}
	return expectOne(tag, "update avatar")
}

func scanProfile(row scanner) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.AvatarPath, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
