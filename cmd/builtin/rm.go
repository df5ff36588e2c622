package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/unistore/cmd"
	"github.com/mwantia/unistore/data"
)

// RmCommand removes an object or sub-tree from the read-write layer.
type RmCommand struct {
}

func (rm *RmCommand) Name() string {
	return "rm"
}

func (rm *RmCommand) Description() string {
	return "Remove an object, or with -r a whole sub-tree, from the read-write layer"
}

func (rm *RmCommand) Usage() string {
	return "rm [-r] <path>"
}

func (rm *RmCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if len(args.Args) != 1 {
		return 1, fmt.Errorf("usage: %s", rm.Usage())
	}

	path, err := data.ParsePath(args.Args[0])
	if err != nil {
		return 1, err
	}

	if args.Bool("recursive") {
		path = path.AsIndex()
	} else if path.IsIndex() {
		return 1, fmt.Errorf("'%s' is an index position, use -r", path)
	}

	if err := api.Remove(ctx, path); err != nil {
		return 1, err
	}

	fmt.Fprintf(writer, "removed %s\n", path)
	return 0, nil
}

func (rm *RmCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"recursive": {
				Name:        "recursive",
				Short:       "r",
				Type:        "bool",
				Description: "Remove a whole sub-tree",
			},
		},
	}
}
