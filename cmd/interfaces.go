package cmd

import (
	"context"
	"io"

	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
)

// API is a simplified view of the storage engine. It strips away all
// functions not required for command operations.
type API interface {
	// Lookup resolves a path to its Metadata without loading content.
	Lookup(ctx context.Context, path data.Path) (*data.Metadata, error)

	// Load reads the document at an object position.
	Load(ctx context.Context, path data.Path) (data.Document, error)

	// Store writes a document into the read-write layer.
	Store(ctx context.Context, path data.Path, doc data.Document) error

	// Remove deletes from the read-write layer.
	Remove(ctx context.Context, path data.Path) error

	// List returns the merged directory listing of an index position.
	List(ctx context.Context, path data.Path) (*data.Index, error)

	// Query streams Metadata below a prefix across all layers.
	Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error)
}

// Command represents an executable command against the storage tree.
type Command interface {
	// Name returns the command identifier
	Name() string

	// Description returns human-readable help text
	Description() string

	// Usage returns a usage string for help (e.g. "ls [path]")
	Usage() string

	// Execute runs the command with parsed arguments
	// The writer parameter is where command output should be written
	// Returns exit code (0 = success) and error message
	Execute(ctx context.Context, api API, args *CommandArgs, writer io.Writer) (int, error)

	// GetFlags returns the flag set for this command (this is optional)
	GetFlags() *CommandFlagSet
}
