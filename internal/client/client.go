// Package client is the Go SDK for the movie catalog API. It keeps the current
// session, refreshes it when the access token expires and reports every
// session change to OnAuthStateChange listeners as session events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/session"
)

const apiPrefix = "/api/v1"

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Session restores a previously persisted session.
	Session *models.Session
}

// Client talks to the HTTP API on behalf of one user.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu        sync.RWMutex
	session   *models.Session
	listeners map[int]func(session.Event)
	nextID    int

	refreshMu sync.Mutex
}

// New returns a client for the API served at baseURL.
func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      httpClient,
		logger:    logger.With("component", "client"),
		listeners: make(map[int]func(session.Event)),
	}
	if opts.Session != nil {
		s := *opts.Session
		c.session = &s
	}
	return c
}

// Session returns a copy of the current session, or nil when signed out.
func (c *Client) Session() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// OnAuthStateChange registers fn for session events. fn first receives an
// INITIAL_SESSION event carrying the current session, then every later change.
// Events are delivered synchronously in the order they happen.
func (c *Client) OnAuthStateChange(fn func(session.Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	var current *models.Session
	if c.session != nil {
		s := *c.session
		current = &s
	}
	c.mu.Unlock()

	fn(session.InitialSessionEvent(current))

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// setSession installs s and notifies listeners with the event built by mk.
func (c *Client) setSession(s *models.Session, mk func(*models.Session) session.Event) {
	c.mu.Lock()
	if s != nil {
		copied := *s
		c.session = &copied
	} else {
		c.session = nil
	}
	listeners := make([]func(session.Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	evt := mk(s)
	for _, fn := range listeners {
		fn(evt)
	}
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.Tokens.AccessToken
}

func (c *Client) refreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.Tokens.RefreshToken
}

// payload is a request body that can be replayed after a token refresh.
type payload struct {
	contentType string
	body        []byte
}

func jsonPayload(v any) (*payload, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return &payload{contentType: "application/json", body: raw}, nil
}

// call sends an authenticated request. A 401 answer triggers one refresh and a
// retry when a refresh token is available.
func (c *Client) call(ctx context.Context, method, path string, in *payload, out any) error {
	token := c.accessToken()
	err := c.send(ctx, method, path, token, in, out)
	if !errors.Is(err, errs.ErrUnauthorized) || token == "" || c.refreshToken() == "" {
		return err
	}
	if refreshErr := c.refreshAfter(ctx, token); refreshErr != nil {
		logging.FromContext(ctx).Debug("token refresh failed", "error", refreshErr)
		return err
	}
	return c.send(ctx, method, path, c.accessToken(), in, out)
}

// refreshAfter refreshes the session unless another caller already replaced stale.
func (c *Client) refreshAfter(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.accessToken() != stale {
		return nil
	}
	_, err := c.RefreshSession(ctx)
	return err
}

func (c *Client) send(ctx context.Context, method, path, token string, in *payload, out any) error {
	var body io.Reader
	if in != nil {
		body = bytes.NewReader(in.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", in.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return errs.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Transient(fmt.Errorf("%s %s: decode response: %w", method, path, err))
	}
	return nil
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Item  string `json:"item"`
}

// decodeError rebuilds the error taxonomy from a failed response. Server
// failures and timeouts are transient; everything else is final.
func decodeError(method, path string, resp *http.Response) error {
	var body apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}

	sentinel := errs.FromCode(body.Code)
	if sentinel == nil {
		sentinel = sentinelForStatus(resp.StatusCode)
	}

	var err error
	if sentinel != nil {
		err = fmt.Errorf("%s %s: %s: %w", method, path, body.Error, sentinel)
	} else {
		err = fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body.Error)
	}
	if body.Item != "" {
		err = &errs.ItemError{ID: body.Item, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusRequestTimeout {
		err = errs.Transient(err)
	}
	return err
}

func sentinelForStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return errs.ErrValidation
	case http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusConflict:
		return errs.ErrAlreadyExists
	case http.StatusTooManyRequests:
		return errs.ErrRateLimited
	default:
		return nil
	}
}
