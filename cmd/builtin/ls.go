package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/unistore/cmd"
	"github.com/mwantia/unistore/data"
)

// LsCommand prints the merged directory listing of an index position.
type LsCommand struct {
}

func (ls *LsCommand) Name() string {
	return "ls"
}

func (ls *LsCommand) Description() string {
	return "List the entries of an index position across all mounted layers"
}

func (ls *LsCommand) Usage() string {
	return "ls [-l] [path]"
}

func (ls *LsCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	raw := "/"
	if len(args.Args) > 0 {
		raw = args.Args[0]
	}

	path, err := data.ParsePath(raw)
	if err != nil {
		return 1, err
	}

	index, err := api.List(ctx, path.AsIndex())
	if err != nil {
		return 1, err
	}

	long := args.Bool("long")
	for _, name := range index.Children() {
		fmt.Fprintf(writer, "%s/\n", name)
	}
	for _, name := range index.Objects() {
		if !long {
			fmt.Fprintf(writer, "%s\n", name)
			continue
		}

		child, err := path.AsIndex().Child(name, false)
		if err != nil {
			continue
		}
		meta, err := api.Lookup(ctx, child)
		if err != nil {
			fmt.Fprintf(writer, "%s\t(unavailable)\n", name)
			continue
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", name, meta.Kind, meta.ProviderID,
			meta.LastModified.Format("2006-01-02 15:04:05"))
	}

	return 0, nil
}

func (ls *LsCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"long": {
				Name:        "long",
				Short:       "l",
				Type:        "bool",
				Description: "Include kind, provider and timestamp per entry",
			},
		},
	}
}
