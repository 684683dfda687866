package session

import (
	"context"
	"sync"

	"github.com/moviescrud/backend/internal/models"
)

// State is the top level state of the machine.
type State int

const (
	Uninitialized State = iota
	Initializing
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case Authenticated:
		return "AUTHENTICATED"
	case Anonymous:
		return "ANONYMOUS"
	default:
		return "UNINITIALIZED"
	}
}

// ProfileStatus tracks the profile of an authenticated session.
type ProfileStatus int

const (
	ProfileNone ProfileStatus = iota
	ProfileLoading
	ProfileReady
	ProfileFailed
)

func (s ProfileStatus) String() string {
	switch s {
	case ProfileLoading:
		return "PROFILE_LOADING"
	case ProfileReady:
		return "PROFILE_READY"
	case ProfileFailed:
		return "PROFILE_FAILED"
	default:
		return "PROFILE_NONE"
	}
}

// Snapshot is an immutable view of the store.
type Snapshot struct {
	State         State
	Session       *models.Session
	Profile       *models.Profile
	ProfileStatus ProfileStatus
	// ProfileErr is the last profile load failure; the previous profile is kept.
	ProfileErr error
	// SessionErr is set when a session re-fetch gave up.
	SessionErr error
}

// Identity returns the cached identity, if any.
func (s Snapshot) Identity() (models.Identity, bool) {
	if s.Session == nil || s.Session.Identity.ID == "" {
		return models.Identity{}, false
	}
	return s.Session.Identity, true
}

// Loading reports whether the presentation should show a pending indicator.
func (s Snapshot) Loading() bool {
	return s.State == Uninitialized || s.State == Initializing ||
		(s.State == Authenticated && s.ProfileStatus == ProfileLoading)
}

// DisplayName is the label shown for the current user: the profile username,
// falling back to the e-mail address while no profile is available.
func (s Snapshot) DisplayName() string {
	if s.Profile != nil && s.Profile.Username != "" {
		return s.Profile.Username
	}
	if identity, ok := s.Identity(); ok {
		return identity.Email
	}
	return ""
}

func (s Snapshot) identityID() string {
	identity, _ := s.Identity()
	return identity.ID
}

// Store is the single slot holding the current Snapshot. Only the Machine
// writes to it; everyone else reads or subscribes.
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]func(Snapshot)
	nextID int
}

// NewStore returns an uninitialized store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Snapshot))}
}

// Snapshot returns the current value.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers fn to be called with every new snapshot, in order. fn
// runs on the machine goroutine and must not block.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// WaitFor blocks until a snapshot satisfying pred is current or ctx ends.
func (s *Store) WaitFor(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	matched := make(chan Snapshot, 1)
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		if pred(snap) {
			select {
			case matched <- snap:
			default:
			}
		}
	})
	defer unsubscribe()

	if snap := s.Snapshot(); pred(snap) {
		return snap, nil
	}
	select {
	case snap := <-matched:
		return snap, nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

func (s *Store) set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
