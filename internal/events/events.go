// Package events fans profile changes out to every client holding a session
// for the affected identity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ProfileSubject is the subject profile change notifications are published on.
const ProfileSubject = "movies.profiles.updated"

// ProfileUpdated announces that the profile of IdentityID changed.
type ProfileUpdated struct {
	IdentityID string    `json:"identityId"`
	Username   string    `json:"username,omitempty"`
	At         time.Time `json:"at"`
}

// Bus publishes and delivers profile change notifications.
type Bus interface {
	PublishProfileUpdated(ctx context.Context, evt ProfileUpdated) error
	SubscribeProfileUpdated(handler func(ProfileUpdated)) (Unsubscribe, error)
	Close() error
}

// Unsubscribe detaches a handler.
type Unsubscribe func()

func encode(evt ProfileUpdated) ([]byte, error) {
	if evt.IdentityID == "" {
		return nil, fmt.Errorf("profile event without identity")
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	return json.Marshal(evt)
}

func decode(data []byte) (ProfileUpdated, error) {
	var evt ProfileUpdated
	if err := json.Unmarshal(data, &evt); err != nil {
		return ProfileUpdated{}, fmt.Errorf("decode profile event: %w", err)
	}
	return evt, nil
}

// MemoryBus delivers events synchronously inside the process.
type MemoryBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(ProfileUpdated)
}

// NewMemoryBus constructs an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]func(ProfileUpdated))}
}

func (b *MemoryBus) PublishProfileUpdated(ctx context.Context, evt ProfileUpdated) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// round trip through the wire format so both buses behave alike
	data, err := encode(evt)
	if err != nil {
		return err
	}
	decoded, err := decode(data)
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]func(ProfileUpdated), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(decoded)
	}
	return nil
}

func (b *MemoryBus) SubscribeProfileUpdated(handler func(ProfileUpdated)) (Unsubscribe, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil handler")
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]func(ProfileUpdated))
	b.mu.Unlock()
	return nil
}
