package client

import (
	"context"
	"fmt"

	"github.com/moviescrud/backend/internal/events"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/session"
)

// Dispatcher accepts session events; *session.Machine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt session.Event) error
}

// ProfileSubscriber delivers profile change notifications.
type ProfileSubscriber interface {
	SubscribeProfileUpdated(handler func(events.ProfileUpdated)) (events.Unsubscribe, error)
}

// Attach forwards every session change of c to d, starting with the initial
// session. Dispatching stops when ctx ends or unsubscribe is called.
func Attach(ctx context.Context, c *Client, d Dispatcher) (unsubscribe func()) {
	return c.OnAuthStateChange(func(evt session.Event) {
		if err := d.Dispatch(ctx, evt); err != nil {
			logging.FromContext(ctx).Debug("session event dropped", "event", evt.Kind.String(), "error", err)
		}
	})
}

// ForwardProfileUpdates turns profile change notifications into
// PROFILE_INVALIDATED events. The machine ignores notifications about other
// identities.
func ForwardProfileUpdates(ctx context.Context, bus ProfileSubscriber, d Dispatcher) (events.Unsubscribe, error) {
	unsubscribe, err := bus.SubscribeProfileUpdated(func(evt events.ProfileUpdated) {
		if err := d.Dispatch(ctx, session.ProfileInvalidatedEvent(evt.IdentityID)); err != nil {
			logging.FromContext(ctx).Debug("profile invalidation dropped", "identityId", evt.IdentityID, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to profile updates: %w", err)
	}
	return unsubscribe, nil
}
