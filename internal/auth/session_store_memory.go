package auth

import (
	"context"
	"sync"
	"time"
)

// InMemorySessionStore keeps refresh tokens in process memory for tests and
// the --memory server. Expired tokens are dropped whenever a new one is saved.
type InMemorySessionStore struct {
	mu      sync.RWMutex
	byToken map[string]Session
	byUser  map[string]map[string]struct{}
	now     func() time.Time
}

// NewInMemorySessionStore returns an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		byToken: make(map[string]Session),
		byUser:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, existing := range s.byToken {
		if now.After(existing.ExpiresAt) {
			s.deleteLocked(token)
		}
	}

	s.byToken[session.RefreshToken] = session
	tokens := s.byUser[session.UserID]
	if tokens == nil {
		tokens = make(map[string]struct{})
		s.byUser[session.UserID] = tokens
	}
	tokens[session.RefreshToken] = struct{}{}
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	s.mu.RLock()
	session, ok := s.byToken[refreshToken]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	s.deleteLocked(refreshToken)
	s.mu.Unlock()
	return nil
}

func (s *InMemorySessionStore) DeleteForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token := range s.byUser[userID] {
		delete(s.byToken, token)
	}
	delete(s.byUser, userID)
	return nil
}

func (s *InMemorySessionStore) deleteLocked(refreshToken string) {
	session, ok := s.byToken[refreshToken]
	if !ok {
		return
	}
	delete(s.byToken, refreshToken)
	if tokens := s.byUser[session.UserID]; tokens != nil {
		delete(tokens, refreshToken)
		if len(tokens) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
}

// Has reports whether a refresh token exists.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byToken[refreshToken]
	return ok
}
