package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/session"
)

type credentials struct {
	Email      string `json:"email,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Password   string `json:"password"`
	Username   string `json:"username,omitempty"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// SignUp registers an account and signs it in. username is optional and is
// used when the profile is created.
func (c *Client) SignUp(ctx context.Context, email, password, username string) (models.Session, error) {
	in, err := jsonPayload(credentials{Email: email, Password: password, Username: username})
	if err != nil {
		return models.Session{}, err
	}
	var s models.Session
	if err := c.send(ctx, http.MethodPost, "/auth/signup", "", in, &s); err != nil {
		return models.Session{}, err
	}
	c.setSession(&s, session.SignedInEvent)
	return s, nil
}

// SignIn authenticates with an e-mail address or a username.
func (c *Client) SignIn(ctx context.Context, identifier, password string) (models.Session, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return models.Session{}, errs.Validation("identifier and password are required")
	}
	in, err := jsonPayload(credentials{Identifier: identifier, Password: password})
	if err != nil {
		return models.Session{}, err
	}
	var s models.Session
	if err := c.send(ctx, http.MethodPost, "/auth/login", "", in, &s); err != nil {
		return models.Session{}, err
	}
	c.setSession(&s, session.SignedInEvent)
	return s, nil
}

// SignOut revokes the refresh token and forgets the session. The local session
// is cleared even when the revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.refreshToken()
	var err error
	if token != "" {
		var in *payload
		if in, err = jsonPayload(refreshBody{RefreshToken: token}); err == nil {
			err = c.send(ctx, http.MethodPost, "/auth/logout", "", in, nil)
		}
	}
	c.setSession(nil, func(*models.Session) session.Event { return session.SignedOutEvent() })
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// RefreshSession rotates the refresh token. A rejected refresh token signs the
// client out.
func (c *Client) RefreshSession(ctx context.Context) (models.Session, error) {
	token := c.refreshToken()
	if token == "" {
		return models.Session{}, fmt.Errorf("refresh session: %w", errs.ErrUnauthorized)
	}
	in, err := jsonPayload(refreshBody{RefreshToken: token})
	if err != nil {
		return models.Session{}, err
	}
	var s models.Session
	if err := c.send(ctx, http.MethodPost, "/auth/refresh", "", in, &s); err != nil {
		if errs.Code(err) == errs.CodeUnauthorized {
			c.setSession(nil, func(*models.Session) session.Event { return session.SignedOutEvent() })
		}
		return models.Session{}, err
	}
	c.setSession(&s, session.TokenRefreshedEvent)
	return s, nil
}

// GetSession re-reads the identity behind the current session from the server.
func (c *Client) GetSession(ctx context.Context) (*models.Session, error) {
	current := c.Session()
	if current == nil {
		return nil, fmt.Errorf("get session: %w", errs.ErrUnauthorized)
	}
	identity, err := c.User(ctx)
	if err != nil {
		return nil, err
	}
	if latest := c.Session(); latest != nil {
		current = latest
	}
	current.Identity = identity
	return current, nil
}

// User returns the identity of the signed in user.
func (c *Client) User(ctx context.Context) (models.Identity, error) {
	var identity models.Identity
	if err := c.call(ctx, http.MethodGet, "/auth/user", nil, &identity); err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

// UpdatePassword replaces the password of the signed in user.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	in, err := jsonPayload(map[string]string{"password": password})
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPut, "/auth/user", in, nil)
}

// RequestPasswordReset asks for reset instructions for email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	in, err := jsonPayload(map[string]string{"email": email})
	if err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, "/auth/password-reset", "", in, nil)
}

// DeleteAccount removes the signed in account with everything it owns and
// signs the client out.
func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.call(ctx, http.MethodDelete, "/account", nil, nil); err != nil {
		return err
	}
	c.setSession(nil, func(*models.Session) session.Event { return session.SignedOutEvent() })
	return nil
}
