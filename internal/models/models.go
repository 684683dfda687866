package models

import (
	"strings"
	"time"
)

// User represents an account (identity) within the movie catalog.
type User struct {
	ID             string
	Email          string
	Password       string
	UsernameHint   string
	EmailConfirmed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity is the public view of a User handed to clients.
type Identity struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"emailConfirmed"`
	UsernameHint   string `json:"usernameHint,omitempty"`
}

// Identity strips credentials from the user record.
func (u User) Identity() Identity {
	return Identity{
		ID:             u.ID,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmed,
		UsernameHint:   u.UsernameHint,
	}
}

// DefaultUsername is the username given to a lazily created profile: the
// username hint when present, otherwise the local part of the e-mail address.
// Characters outside [A-Za-z0-9_.-] become '_'.
func (i Identity) DefaultUsername() string {
	name := strings.TrimSpace(i.UsernameHint)
	if name == "" {
		name, _, _ = strings.Cut(i.Email, "@")
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			return r
		}
		return '_'
	}, name)
	if len(name) > 30 {
		name = name[:30]
	}
	for len(name) < 3 {
		name += "_"
	}
	return name
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Session binds a token pair to the identity it was issued for.
type Session struct {
	Tokens   SessionTokens `json:"tokens"`
	Identity Identity      `json:"user"`
}

// Profile is application level metadata attached 1:1 to an identity.
type Profile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	AvatarPath string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Movie is a catalog entry owned by the identity that created it.
type Movie struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Year         *int      `json:"year,omitempty"`
	Director     *string   `json:"director,omitempty"`
	Duration     *int      `json:"duration,omitempty"`
	Score        *float64  `json:"score,omitempty"`
	ShortDesc    *string   `json:"shortDesc,omitempty"`
	Cast         []string  `json:"cast,omitempty"`
	Genres       []string  `json:"genres,omitempty"`
	PortraitURL  string    `json:"portraitUrl,omitempty"`
	PortraitPath string    `json:"-"`
	OwnerID      string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MovieView is a movie annotated for a particular viewer.
type MovieView struct {
	Movie
	OwnerUsername string `json:"ownerUsername,omitempty"`
	IsFavorited   bool   `json:"isFavorited"`
}

// MovieChanges carries the mutable movie columns. Nil fields are left untouched.
type MovieChanges struct {
	Title     *string
	Year      *int
	Director  *string
	Duration  *int
	Score     *float64
	ShortDesc *string
	Cast      []string
	Genres    []string
}

// Favorite is the unique (user, movie) relationship.
type Favorite struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	MovieID   string    `json:"movieId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Playlist groups movies chosen by its owner.
type Playlist struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlaylistChanges carries the mutable playlist columns. Nil fields are left untouched.
type PlaylistChanges struct {
	Title       *string
	Description *string
	IsPublic    *bool
}

// PlaylistMembership is the unique (playlist, movie) relationship.
type PlaylistMembership struct {
	PlaylistID string    `json:"playlistId"`
	MovieID    string    `json:"movieId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PlaylistDetails is a playlist together with its movies as seen by a viewer.
type PlaylistDetails struct {
	Playlist      Playlist    `json:"playlist"`
	OwnerUsername string      `json:"ownerUsername,omitempty"`
	Movies        []MovieView `json:"movies"`
	IsOwner       bool        `json:"isOwner"`
}

// Sort orders accepted by movie listings.
const (
	SortByTitle     = "title"
	SortByYear      = "year"
	SortByScore     = "score"
	SortByCreatedAt = "created_at"
)

// MovieFilter narrows a movie listing.
type MovieFilter struct {
	Query    string
	YearFrom *int
	YearTo   *int
	MinScore *float64
	Genre    string
	OwnerID  string
	SortBy   string
	SortDesc bool
	Limit    int
	ViewerID string
	MovieIDs []string
}

// Normalize applies listing defaults.
func (f MovieFilter) Normalize() MovieFilter {
	switch f.SortBy {
	case SortByTitle, SortByYear, SortByScore, SortByCreatedAt:
	default:
		f.SortBy = SortByTitle
	}
	switch {
	case f.MovieIDs != nil:
		// explicit id lists are never truncated
		f.Limit = max(len(f.MovieIDs), 1)
	case f.Limit <= 0 || f.Limit > 500:
		f.Limit = 100
	}
	f.Query = strings.TrimSpace(f.Query)
	f.Genre = strings.TrimSpace(f.Genre)
	return f
}
