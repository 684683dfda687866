// Package storage keeps movie portraits and profile avatars in an object store.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrUnavailable is returned when no object store is configured.
var ErrUnavailable = errors.New("object storage unavailable")

// ObjectStore uploads, addresses and removes objects by key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	PublicURL(key string) string
	Remove(ctx context.Context, keys ...string) error
}
