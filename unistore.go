// Package unistore implements a path-addressed, layered content tree. Many
// independently packaged, mostly read-only providers merge with exactly one
// read-write provider into a single unified view: higher-priority providers
// shadow lower ones at object positions while index listings union across
// every mounted layer. Loaded documents materialize into typed live
// instances through a self-hosted type registry and an activity-swept
// object cache, and secret references expand transparently on every load.
package unistore

import (
	"context"

	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
)

// Storage is the operational surface exposed to higher layers (request
// dispatch, procedure execution, access control). Management operations
// (Mount, Populate, Close) live on UnionStorage directly.
type Storage interface {
	// Lookup resolves a path to its Metadata without loading content.
	// Object positions resolve by provider priority (shadowing); index
	// positions exist when any mounted layer contributes to them.
	Lookup(ctx context.Context, path data.Path) (*data.Metadata, error)

	// Load reads the document at an object position, filters hidden
	// properties for non-privileged callers and expands placeholder
	// references.
	Load(ctx context.Context, path data.Path) (data.Document, error)

	// LoadBinary reads raw content at a binary position.
	LoadBinary(ctx context.Context, path data.Path) ([]byte, error)

	// Store writes a document into the read-write layer, stripping
	// computed properties and auto-creating intermediate index nodes.
	Store(ctx context.Context, path data.Path, doc data.Document) error

	// StoreBinary writes raw content into the read-write layer.
	StoreBinary(ctx context.Context, path data.Path, raw []byte) error

	// Remove deletes from the read-write layer, recursively at index
	// positions.
	Remove(ctx context.Context, path data.Path) error

	// List returns the merged directory listing of an index position
	// across every mounted layer.
	List(ctx context.Context, path data.Path) (*data.Index, error)

	// Query streams Metadata below a prefix across all layers, shadow
	// aware: every path appears once, owned by its winning provider.
	Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error)

	// Materialize loads a document and returns its cached live instance.
	// The returned handle pins the instance against eviction until
	// closed.
	Materialize(ctx context.Context, path data.Path) (*Handle, error)
}

type privilegedReadKey struct{}

// WithPrivilegedRead marks the context as allowed to see hidden-prefixed
// properties on Load.
func WithPrivilegedRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, privilegedReadKey{}, true)
}

// IsPrivilegedRead reports whether the context carries elevated read
// access.
func IsPrivilegedRead(ctx context.Context) bool {
	privileged, _ := ctx.Value(privilegedReadKey{}).(bool)
	return privileged
}
