// Package session keeps the locally cached (session, profile) pair consistent
// with the stream of authentication events delivered by the backend.
package session

import "github.com/moviescrud/backend/internal/models"

// EventKind enumerates the inputs of the machine.
type EventKind int

const (
	InitialSession EventKind = iota + 1
	SignedIn
	SignedOut
	TokenRefreshed
	ProfileInvalidated
)

func (k EventKind) String() string {
	switch k {
	case InitialSession:
		return "INITIAL_SESSION"
	case SignedIn:
		return "SIGNED_IN"
	case SignedOut:
		return "SIGNED_OUT"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	case ProfileInvalidated:
		return "PROFILE_INVALIDATED"
	default:
		return "UNKNOWN"
	}
}

// Event is one authentication notification. Session may be nil for
// InitialSession and SignedIn; IdentityID is only used by ProfileInvalidated.
type Event struct {
	Kind       EventKind
	Session    *models.Session
	IdentityID string
}

func (e Event) identityID() string {
	if e.Kind == ProfileInvalidated {
		return e.IdentityID
	}
	if e.Session == nil {
		return ""
	}
	return e.Session.Identity.ID
}

func InitialSessionEvent(s *models.Session) Event { return Event{Kind: InitialSession, Session: s} }
func SignedInEvent(s *models.Session) Event { return Event{Kind: SignedIn, Session: s} }
func SignedOutEvent() Event { return Event{Kind: SignedOut} }
func TokenRefreshedEvent(s *models.Session) Event { return Event{Kind: TokenRefreshed, Session: s} }

func ProfileInvalidatedEvent(identityID string) Event {
	return Event{Kind: ProfileInvalidated, IdentityID: identityID}
}
