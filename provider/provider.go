package provider

import (
	"context"

	"github.com/mwantia/unistore/data"
)

// Provider is one mountable content source serving a sub-tree of the
// unified storage. All paths handed to a provider are relative to its
// mount prefix. Providers guard their own state; every operation may be
// called concurrently.
type Provider interface {
	// ID returns the stable identifier recorded in Metadata.ProviderID.
	ID() string

	// Open is part of the lifecycle behaviour and gets called when the
	// provider is mounted.
	Open(ctx context.Context) error

	// Close is part of the lifecycle behaviour and gets called when the
	// provider is unmounted.
	Close(ctx context.Context) error

	// Lookup resolves a path to its Metadata. Returns data.ErrNotFound
	// when the provider holds nothing at the path.
	Lookup(ctx context.Context, path data.Path) (*data.Metadata, error)

	// LoadDocument reads a structured document at an object position.
	LoadDocument(ctx context.Context, path data.Path) (data.Document, *data.Metadata, error)

	// LoadBinary reads raw content at a binary position.
	LoadBinary(ctx context.Context, path data.Path) ([]byte, *data.Metadata, error)

	// Store writes a document, replacing any prior content and creating
	// missing intermediate index nodes. Read-only providers return
	// data.ErrReadOnly.
	Store(ctx context.Context, path data.Path, doc data.Document) error

	// StoreBinary writes raw content the same way Store writes documents.
	StoreBinary(ctx context.Context, path data.Path, raw []byte) error

	// Remove deletes an object, or a whole sub-tree at an index position.
	Remove(ctx context.Context, path data.Path) error

	// List returns the direct entries at an index position.
	List(ctx context.Context, path data.Path) (*data.Index, error)

	// Query streams Metadata for everything below the query prefix.
	Query(ctx context.Context, query *Query) (*Cursor, error)
}
