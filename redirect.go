package unistore

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
)

// Identity is the request-scoped caller identity consumed by the redirect
// overlay. How it is established (cookies, tokens) is a host concern.
type Identity struct {
	SessionID string
	UserID    string
}

type identityKey struct{}

// WithIdentity attaches the caller identity to a request context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom extracts the caller identity from a request context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// IdentityResolver yields the active identity for a call. The default
// resolver reads the context via IdentityFrom.
type IdentityResolver func(ctx context.Context) (Identity, bool)

// Well-known alias segments intercepted by the redirect overlay.
const (
	aliasMarker    = "current"
	sessionSegment = "sessions"
	userSegment    = "users"
)

// RedirectStorage is a thin wrapper rewriting the two well-known alias
// paths "sessions/current" and "users/current" to the caller's concrete
// session and user paths. All other paths pass through unmodified. With no
// active identity an alias resolves to not-found instead of raising.
type RedirectStorage struct {
	inner    Storage
	resolver IdentityResolver
}

func NewRedirect(inner Storage, resolver IdentityResolver) *RedirectStorage {
	if resolver == nil {
		resolver = IdentityFrom
	}

	return &RedirectStorage{
		inner:    inner,
		resolver: resolver,
	}
}

// rewrite maps alias paths to their concrete form. Returns ErrNotFound
// when an alias is addressed without an active identity.
func (r *RedirectStorage) rewrite(ctx context.Context, path data.Path) (data.Path, error) {
	if path.Depth() < 2 || !strings.EqualFold(path.Name(1), aliasMarker) {
		return path, nil
	}

	var target string
	switch {
	case strings.EqualFold(path.Name(0), sessionSegment):
		identity, ok := r.resolver(ctx)
		if !ok || identity.SessionID == "" {
			return data.Path{}, fmt.Errorf("%w: no active session for %s", data.ErrNotFound, path)
		}
		target = identity.SessionID
	case strings.EqualFold(path.Name(0), userSegment):
		identity, ok := r.resolver(ctx)
		if !ok || identity.UserID == "" {
			return data.Path{}, fmt.Errorf("%w: no active user for %s", data.ErrNotFound, path)
		}
		target = identity.UserID
	default:
		return path, nil
	}

	return path.ReplaceName(1, target)
}

func (r *RedirectStorage) Lookup(ctx context.Context, path data.Path) (*data.Metadata, error) {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.inner.Lookup(ctx, path)
}

func (r *RedirectStorage) Load(ctx context.Context, path data.Path) (data.Document, error) {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.inner.Load(ctx, path)
}

func (r *RedirectStorage) LoadBinary(ctx context.Context, path data.Path) ([]byte, error) {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.inner.LoadBinary(ctx, path)
}

func (r *RedirectStorage) Store(ctx context.Context, path data.Path, doc data.Document) error {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return err
	}
	return r.inner.Store(ctx, path, doc)
}

func (r *RedirectStorage) StoreBinary(ctx context.Context, path data.Path, raw []byte) error {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return err
	}
	return r.inner.StoreBinary(ctx, path, raw)
}

func (r *RedirectStorage) Remove(ctx context.Context, path data.Path) error {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return err
	}
	return r.inner.Remove(ctx, path)
}

func (r *RedirectStorage) List(ctx context.Context, path data.Path) (*data.Index, error) {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.inner.List(ctx, path)
}

func (r *RedirectStorage) Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error) {
	prefix, err := r.rewrite(ctx, query.Prefix)
	if err != nil {
		return nil, err
	}

	rewritten := *query
	rewritten.Prefix = prefix
	return r.inner.Query(ctx, &rewritten)
}

func (r *RedirectStorage) Materialize(ctx context.Context, path data.Path) (*Handle, error) {
	path, err := r.rewrite(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.inner.Materialize(ctx, path)
}
