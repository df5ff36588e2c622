package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Runner dispatches command invocations against one storage tree.
type Runner struct {
	mu sync.RWMutex

	api      API
	commands map[string]Command
}

func NewRunner(api API) *Runner {
	return &Runner{
		api:      api,
		commands: make(map[string]Command),
	}
}

// Register adds a command; a command with the same name is replaced.
func (r *Runner) Register(command Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands[command.Name()] = command
}

// Unregister removes a command by name, reporting whether it existed.
func (r *Runner) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.commands[name]
	delete(r.commands, name)
	return exists
}

// Execute parses args[0] as the command name and runs it. Returns the
// command's exit code.
func (r *Runner) Execute(ctx context.Context, writer io.Writer, args ...string) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("no command given")
	}

	r.mu.RLock()
	command, exists := r.commands[args[0]]
	r.mu.RUnlock()

	if !exists {
		return 1, fmt.Errorf("unknown command '%s'", args[0])
	}

	parsed, err := ParseArgs(command.GetFlags(), args[1:])
	if err != nil {
		return 1, err
	}

	return command.Execute(ctx, r.api, parsed, writer)
}
