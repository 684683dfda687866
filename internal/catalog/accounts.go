package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moviescrud/backend/internal/auth"
	"github.com/moviescrud/backend/internal/cache"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/models"
)

// ErrInvalidCredentials is returned for an unknown identifier or a wrong password.
var ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized)

// SignUpInput is the payload accepted when registering.
type SignUpInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Username string `json:"username" validate:"omitempty,min=3,max=30,username"`
}

type emailInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// AccountService owns identities and the sessions issued for them.
type AccountService struct {
	users    UserRepository
	profiles ProfileRepository
	movies   MovieRepository
	sessions SessionIssuer
	janitor  Janitor
	records  *cache.TTL[models.Movie]
	now      func() time.Time
}

// NewAccountService wires the account use cases. janitor and records may be
// nil; records must be the cache shared with the MovieService.
func NewAccountService(users UserRepository, profiles ProfileRepository, movies MovieRepository, sessions SessionIssuer, janitor Janitor, records *cache.TTL[models.Movie]) *AccountService {
	return &AccountService{
		users:    users,
		profiles: profiles,
		movies:   movies,
		sessions: sessions,
		janitor:  janitor,
		records:  records,
		now:      utcNow,
	}
}

// SignUp registers a new identity and signs it in. The requested username is
// only a hint; the profile itself is created lazily by the client.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (session models.Session, err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.signup")
	defer func() { span.Fail(err); span.End() }()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if err := validateInput(in); err != nil {
		return models.Session{}, err
	}

	if in.Username != "" {
		if _, err := s.profiles.FindByUsername(ctx, in.Username); err == nil {
			return models.Session{}, fmt.Errorf("username %q: %w", in.Username, errs.ErrAlreadyExists)
		} else if !errors.Is(err, errs.ErrNotFound) {
			return models.Session{}, fmt.Errorf("check username: %w", err)
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.Session{}, err
	}

	now := s.now()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Password:     hash,
		UsernameHint: in.Username,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.Session{}, fmt.Errorf("create account: %w", err)
	}
	logging.FromContext(ctx).Info("account created", "userId", user.ID)

	return s.issue(ctx, user)
}

// SignIn authenticates by e-mail address or username.
func (s *AccountService) SignIn(ctx context.Context, identifier, password string) (session models.Session, err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.signin")
	defer func() { span.Fail(err); span.End() }()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return models.Session{}, errs.Validation("identifier and password are required")
	}

	user, err := s.lookup(ctx, identifier)
	if errors.Is(err, errs.ErrNotFound) {
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, err
	}
	if !auth.CheckPassword(user.Password, password) {
		logging.FromContext(ctx).Warn("password mismatch", "userId", user.ID)
		return models.Session{}, ErrInvalidCredentials
	}
	return s.issue(ctx, user)
}

// Refresh exchanges a refresh token for a new session.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return models.Session{}, errs.Validation("refresh token is required")
	}
	tokens, userID, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return models.Session{}, fmt.Errorf("refresh session: %w", err)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.Session{}, fmt.Errorf("refresh session: %w", errs.ErrUnauthorized)
		}
		return models.Session{}, fmt.Errorf("load identity: %w", err)
	}
	return models.Session{Tokens: tokens, Identity: user.Identity()}, nil
}

// SignOut revokes refreshToken. Unknown tokens are ignored.
func (s *AccountService) SignOut(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, refreshToken)
}

// User returns the identity behind userID.
func (s *AccountService) User(ctx context.Context, userID string) (models.Identity, error) {
	if userID == "" {
		return models.Identity{}, errs.ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("load identity: %w", err)
	}
	return user.Identity(), nil
}

// ChangePassword replaces the password of userID.
func (s *AccountService) ChangePassword(ctx context.Context, userID, password string) error {
	if userID == "" {
		return errs.ErrUnauthorized
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// RequestPasswordReset accepts a reset request without revealing whether the
// address belongs to an account.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	in := emailInput{Email: strings.ToLower(strings.TrimSpace(email))}
	if err := validateInput(in); err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		logging.FromContext(ctx).Info("password reset requested", "userId", user.ID)
	case !errors.Is(err, errs.ErrNotFound):
		return fmt.Errorf("password reset lookup: %w", err)
	}
	return nil
}

// Delete removes the account of userID with its profile, movies, favorites and
// playlists. Stored images are removed in the background.
func (s *AccountService) Delete(ctx context.Context, userID string) (err error) {
	ctx, span := logging.StartSpan(ctx, "accounts.delete")
	defer func() { span.Fail(err); span.End() }()

	if userID == "" {
		return errs.ErrUnauthorized
	}

	var objects []string
	owned, err := s.movies.List(ctx, models.MovieFilter{OwnerID: userID, Limit: 500})
	if err != nil {
		return fmt.Errorf("list owned movies: %w", err)
	}
	for _, movie := range owned {
		objects = append(objects, movie.PortraitPath)
	}
	if profile, err := s.profiles.FindByID(ctx, userID); err == nil {
		objects = append(objects, profile.AvatarPath)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("load profile: %w", err)
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	for _, movie := range owned {
		s.records.Delete(movie.ID)
	}
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		logging.FromContext(ctx).Warn("revoke sessions of deleted account", "userId", userID, "error", err)
	}
	discardObjects(ctx, s.janitor, objects...)
	logging.FromContext(ctx).Info("account deleted", "userId", userID, "movies", len(owned))
	return nil
}

func (s *AccountService) lookup(ctx context.Context, identifier string) (models.User, error) {
	if strings.Contains(identifier, "@") {
		return s.users.FindByEmail(ctx, identifier)
	}
	profile, err := s.profiles.FindByUsername(ctx, identifier)
	if err != nil {
		return models.User{}, err
	}
	return s.users.FindByID(ctx, profile.ID)
}

func (s *AccountService) issue(ctx context.Context, user models.User) (models.Session, error) {
	tokens, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return models.Session{}, fmt.Errorf("issue session: %w", err)
	}
	return models.Session{Tokens: tokens, Identity: user.Identity()}, nil
}
