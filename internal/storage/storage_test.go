package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moviescrud/backend/internal/errs"
)

func TestPrepareImage(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)

	tests := []struct {
		name     string
		kind     ImageKind
		filename string
		size     int64
		wantKey  string
		wantType string
		wantErr  bool
	}{
		{name: "avatar png", kind: Avatar, filename: "me.PNG", size: 1024, wantKey: "avatars/avatar_u1_1700000000123.png", wantType: "image/png"},
		{name: "portrait jpeg", kind: Portrait, filename: "poster.jpeg", size: 4 << 20, wantKey: "portraits/movie_u1_1700000000123.jpeg", wantType: "image/jpeg"},
		{name: "avatar too large", kind: Avatar, filename: "me.png", size: 3 << 20, wantErr: true},
		{name: "portrait too large", kind: Portrait, filename: "p.webp", size: 6 << 20, wantErr: true},
		{name: "unsupported type", kind: Avatar, filename: "me.bmp", size: 10, wantErr: true},
		{name: "empty", kind: Avatar, filename: "me.gif", size: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := PrepareImage(tt.kind, "u1", tt.filename, tt.size, now)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("prepare: %v", err)
			}
			if img.Key != tt.wantKey || img.ContentType != tt.wantType {
				t.Fatalf("got %+v", img)
			}
		})
	}
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	store := NewMemoryStorage("https://cdn.example.com/")
	ctx := context.Background()

	if err := store.Put(ctx, "avatars/a.png", "image/png", strings.NewReader("png")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := store.PublicURL("avatars/a.png"); got != "https://cdn.example.com/avatars/a.png" {
		t.Fatalf("public url = %q", got)
	}
	data, contentType, ok := store.Get("avatars/a.png")
	if !ok || string(data) != "png" || contentType != "image/png" {
		t.Fatalf("get = %q %q %v", data, contentType, ok)
	}
	if err := store.Remove(ctx, "avatars/a.png", "missing"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("expected empty store, got %v", store.Keys())
	}
}

type recordingStore struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (r *recordingStore) Put(context.Context, string, string, io.Reader) error { return nil }
func (r *recordingStore) PublicURL(key string) string                        { return key }
func (r *recordingStore) Remove(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, keys...)
	return r.err
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

func TestJanitorRemovesQueuedKeys(t *testing.T) {
	store := &recordingStore{}
	janitor := NewJanitor(store, JanitorConfig{QueueSize: 4, Workers: 2}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := janitor.Enqueue(context.Background(), "a", "", "b"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := janitor.Enqueue(context.Background(), ""); err != nil {
		t.Fatalf("enqueue empty: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := janitor.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if store.count() != 2 {
		t.Fatalf("expected two removals, got %v", store.removed)
	}
	if err := janitor.Enqueue(context.Background(), "c"); !errors.Is(err, errJanitorClosed) {
		t.Fatalf("expected closed janitor to reject work, got %v", err)
	}
}

func TestJanitorSwallowsRemovalErrors(t *testing.T) {
	store := &recordingStore{err: errors.New("s3 down")}
	janitor := NewJanitor(store, JanitorConfig{}, nil)

	if err := janitor.Enqueue(context.Background(), "a"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := janitor.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("expected removal attempt, got %d", store.count())
	}
}
