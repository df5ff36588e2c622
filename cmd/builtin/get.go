package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/unistore/cmd"
	"github.com/mwantia/unistore/data"
)

// GetCommand loads a document and prints its at-rest rendering.
type GetCommand struct {
}

func (g *GetCommand) Name() string {
	return "get"
}

func (g *GetCommand) Description() string {
	return "Load the document at an object position and print it"
}

func (g *GetCommand) Usage() string {
	return "get <path>"
}

func (g *GetCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if len(args.Args) != 1 {
		return 1, fmt.Errorf("usage: %s", g.Usage())
	}

	path, err := data.ParsePath(args.Args[0])
	if err != nil {
		return 1, err
	}

	doc, err := api.Load(ctx, path)
	if err != nil {
		return 1, err
	}

	rendered, err := data.EncodeDocument(doc)
	if err != nil {
		return 1, err
	}

	if _, err := writer.Write(rendered); err != nil {
		return 1, err
	}

	return 0, nil
}

func (g *GetCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}
