package unistore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mwantia/unistore"
	"github.com/mwantia/unistore/data"
)

func TestRedirect_SessionAlias(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorageWith(t)
	redirect := unistore.NewRedirect(storage, nil)

	concrete := data.MustParsePath("sessions/abc123/state")
	if err := storage.Store(ctx, concrete, data.Document{"step": int64(3)}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	ctx = unistore.WithIdentity(ctx, unistore.Identity{SessionID: "abc123", UserID: "alice"})

	doc, err := redirect.Load(ctx, data.MustParsePath("sessions/current/state"))
	if err != nil {
		t.Fatalf("Load via alias failed: %v", err)
	}
	if doc["step"] != int64(3) {
		t.Errorf("Got %v", doc["step"])
	}

	// Writes through the alias land on the concrete path.
	if err := redirect.Store(ctx, data.MustParsePath("sessions/current/note"), data.Document{"text": "hi"}); err != nil {
		t.Fatalf("Store via alias failed: %v", err)
	}
	if _, err := storage.Lookup(ctx, data.MustParsePath("sessions/abc123/note")); err != nil {
		t.Errorf("Expected concrete path written, got %v", err)
	}
}

func TestRedirect_UserAlias(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorageWith(t)
	redirect := unistore.NewRedirect(storage, nil)

	if err := storage.Store(ctx, data.MustParsePath("users/alice/profile"), data.Document{"name": "Alice"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	ctx = unistore.WithIdentity(ctx, unistore.Identity{UserID: "alice"})

	doc, err := redirect.Load(ctx, data.MustParsePath("users/current/profile"))
	if err != nil {
		t.Fatalf("Load via alias failed: %v", err)
	}
	if doc["name"] != "Alice" {
		t.Errorf("Got %v", doc["name"])
	}
}

func TestRedirect_NoIdentity(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorageWith(t)
	redirect := unistore.NewRedirect(storage, nil)

	_, err := redirect.Load(ctx, data.MustParsePath("sessions/current/state"))
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound without identity, got %v", err)
	}

	// A partial identity only unlocks its own alias.
	ctx = unistore.WithIdentity(ctx, unistore.Identity{SessionID: "abc123"})
	_, err = redirect.Load(ctx, data.MustParsePath("users/current/profile"))
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound without user, got %v", err)
	}
}

func TestRedirect_PassThrough(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorageWith(t)
	redirect := unistore.NewRedirect(storage, nil)

	// Non-alias paths do not require an identity.
	path := data.MustParsePath("app/config")
	if err := redirect.Store(ctx, path, data.Document{"v": int64(1)}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := redirect.Load(ctx, path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// "current" outside the well-known roots stays literal.
	literal := data.MustParsePath("jobs/current")
	if err := redirect.Store(ctx, literal, data.Document{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := storage.Lookup(ctx, literal); err != nil {
		t.Errorf("Expected literal path kept, got %v", err)
	}
}

func TestRedirect_CustomResolver(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorageWith(t)

	resolver := func(ctx context.Context) (unistore.Identity, bool) {
		return unistore.Identity{SessionID: "fixed"}, true
	}
	redirect := unistore.NewRedirect(storage, resolver)

	if err := storage.Store(ctx, data.MustParsePath("sessions/fixed/state"), data.Document{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := redirect.Lookup(ctx, data.MustParsePath("sessions/current/state")); err != nil {
		t.Errorf("Expected custom resolver honored, got %v", err)
	}
}
