package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/moviescrud/backend/internal/db"
	"github.com/moviescrud/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for identities.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, email, password_hash, username_hint, email_confirmed, created_at, updated_at`

// Create persists a new identity. Emails are stored lower-cased.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, username_hint, email_confirmed, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, user.ID, strings.ToLower(user.Email), user.Password, user.UsernameHint, user.EmailConfirmed, user.CreatedAt, user.UpdatedAt)
	return mapError("insert user", err)
}

// FindByID fetches an identity by id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, mapError("select user by id", err)
	}
	return user, nil
}

// FindByEmail fetches an identity by e-mail address, case-insensitively.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, mapError("select user by email", err)
	}
	return user, nil
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE users
        SET password_hash = $2, updated_at = $3
        WHERE id = $1
    `, id, passwordHash, at)
	if err != nil {
		return mapError("update password", err)
	}
	return expectOne(tag, "update password")
}

// Delete removes the identity; sessions, profile, movies, favorites and playlists cascade.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError("delete user", err)
	}
	return expectOne(tag, "delete user")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.UsernameHint, &user.EmailConfirmed, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
