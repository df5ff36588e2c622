package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/unistore/cmd"
	"github.com/mwantia/unistore/data"
)

// StatCommand resolves a path and prints its Metadata.
type StatCommand struct {
}

func (st *StatCommand) Name() string {
	return "stat"
}

func (st *StatCommand) Description() string {
	return "Resolve a path and print kind, owning provider and timestamp"
}

func (st *StatCommand) Usage() string {
	return "stat <path>"
}

func (st *StatCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if len(args.Args) != 1 {
		return 1, fmt.Errorf("usage: %s", st.Usage())
	}

	path, err := data.ParsePath(args.Args[0])
	if err != nil {
		return 1, err
	}

	meta, err := api.Lookup(ctx, path)
	if err != nil {
		return 1, err
	}

	fmt.Fprintf(writer, "path:     %s\n", meta.Path)
	fmt.Fprintf(writer, "kind:     %s\n", meta.Kind)
	fmt.Fprintf(writer, "provider: %s\n", meta.ProviderID)
	if !meta.LastModified.IsZero() {
		fmt.Fprintf(writer, "modified: %s\n", meta.LastModified.Format("2006-01-02 15:04:05"))
	}

	return 0, nil
}

func (st *StatCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}
