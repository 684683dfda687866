package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/events"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/storage"
)

// UsernameInput carries a requested username.
type UsernameInput struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
}

// ProfileService manages the profile attached to each identity.
type ProfileService struct {
	profiles ProfileRepository
	users    UserRepository
	objects  storage.ObjectStore
	janitor  Janitor
	bus      ProfilePublisher
	now      func() time.Time
}

// NewProfileService wires the profile use cases. objects, janitor and bus are optional.
func NewProfileService(profiles ProfileRepository, users UserRepository, objects storage.ObjectStore, janitor Janitor, bus ProfilePublisher) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		users:    users,
		objects:  objects,
		janitor:  janitor,
		bus:      bus,
		now:      utcNow,
	}
}

// Get returns the profile of identityID.
func (s *ProfileService) Get(ctx context.Context, identityID string) (models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, identityID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

// Create makes the profile of identityID. An empty username falls back to the
// identity's default username. ErrAlreadyExists means the profile already exists
// or an explicitly requested username is taken.
func (s *ProfileService) Create(ctx context.Context, identityID, username string) (profile models.Profile, err error) {
	ctx, span := logging.StartSpan(ctx, "profiles.create")
	defer func() { span.Fail(err); span.End() }()

	if identityID == "" {
		return models.Profile{}, errs.ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, identityID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("load identity: %w", err)
	}
	if _, err := s.profiles.FindByID(ctx, identityID); err == nil {
		return models.Profile{}, fmt.Errorf("profile %s: %w", identityID, errs.ErrAlreadyExists)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	fallback := user.Identity().DefaultUsername()
	username = strings.TrimSpace(username)
	if username == "" {
		username = fallback
	}
	if err := validateInput(UsernameInput{Username: username}); err != nil {
		return models.Profile{}, err
	}

	now := s.now()
	profile = models.Profile{ID: identityID, Username: username, CreatedAt: now, UpdatedAt: now}
	err = s.profiles.Create(ctx, profile)
	if errors.Is(err, errs.ErrAlreadyExists) && username == fallback {
		// a derived name may collide with someone else's; disambiguate with the id
		profile.Username = suffixed(fallback, identityID)
		err = s.profiles.Create(ctx, profile)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	logging.FromContext(ctx).Info("profile created", "identityId", identityID, "username", profile.Username)
	return profile, nil
}

// UpdateUsername renames the caller's profile and tells other clients about it.
func (s *ProfileService) UpdateUsername(ctx context.Context, callerID, username string) (models.Profile, error) {
	if callerID == "" {
		return models.Profile{}, errs.ErrUnauthorized
	}
	in := UsernameInput{Username: strings.TrimSpace(username)}
	if err := validateInput(in); err != nil {
		return models.Profile{}, err
	}
	if err := s.profiles.UpdateUsername(ctx, callerID, in.Username, s.now()); err != nil {
		return models.Profile{}, fmt.Errorf("update username: %w", err)
	}
	return s.changed(ctx, callerID)
}

// ReplaceAvatar uploads a new avatar, then swaps the profile's pointer to it. The
// old object is removed in the background. When the swap fails the new object
// is discarded and the profile still shows the old avatar.
func (s *ProfileService) ReplaceAvatar(ctx context.Context, callerID, filename string, size int64, body io.Reader) (profile models.Profile, err error) {
	ctx, span := logging.StartSpan(ctx, "profiles.avatar")
	defer func() { span.Fail(err); span.End() }()

	if callerID == "" {
		return models.Profile{}, errs.ErrUnauthorized
	}
	if s.objects == nil {
		return models.Profile{}, storage.ErrUnavailable
	}
	current, err := s.profiles.FindByID(ctx, callerID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	now := s.now()
	img, err := storage.PrepareImage(storage.Avatar, callerID, filename, size, now)
	if err != nil {
		return models.Profile{}, err
	}
	if err := s.objects.Put(ctx, img.Key, img.ContentType, body); err != nil {
		return models.Profile{}, fmt.Errorf("upload avatar: %w", err)
	}
	if err := s.profiles.UpdateAvatar(ctx, callerID, s.objects.PublicURL(img.Key), img.Key, now); err != nil {
		discardObjects(ctx, s.janitor, img.Key)
		return models.Profile{}, fmt.Errorf("set avatar: %w", err)
	}
	if current.AvatarPath != img.Key {
		discardObjects(ctx, s.janitor, current.AvatarPath)
	}
	return s.changed(ctx, callerID)
}

// UsernameAvailable reports whether no profile uses username yet.
func (s *ProfileService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	in := UsernameInput{Username: strings.TrimSpace(username)}
	if err := validateInput(in); err != nil {
		return false, err
	}
	_, err := s.profiles.FindByUsername(ctx, in.Username)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, errs.ErrNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("check username: %w", err)
	}
}

func (s *ProfileService) changed(ctx context.Context, identityID string) (models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, identityID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("reload profile: %w", err)
	}
	if s.bus != nil {
		evt := events.ProfileUpdated{IdentityID: identityID, Username: profile.Username}
		if err := s.bus.PublishProfileUpdated(ctx, evt); err != nil {
			logging.FromContext(ctx).Warn("publish profile update", "identityId", identityID, "error", err)
		}
	}
	return profile, nil
}

func suffixed(name, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	if len(name) > 23 {
		name = name[:23]
	}
	return name + "_" + suffix
}
