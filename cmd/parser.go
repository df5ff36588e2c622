package cmd

import (
	"fmt"
	"strings"
)

// ParseArgs splits raw arguments into flags and positionals according to
// the command's flag set. Boolean flags stand alone; every other flag
// consumes the following argument as its value.
func ParseArgs(flagSet *CommandFlagSet, raw []string) (*CommandArgs, error) {
	args := &CommandArgs{
		Flags: make(map[string]any),
		Raw:   raw,
	}

	if flagSet != nil {
		for _, flag := range flagSet.Flags {
			if flag.Default != nil {
				args.Flags[flag.Name] = flag.Default
			}
		}
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if !strings.HasPrefix(arg, "-") {
			args.Args = append(args.Args, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		flag := findFlag(flagSet, name)
		if flag == nil {
			return nil, fmt.Errorf("unknown flag '%s'", arg)
		}

		if flag.Type == "bool" {
			args.Flags[flag.Name] = true
			continue
		}

		if i+1 >= len(raw) {
			return nil, fmt.Errorf("flag '%s' requires a value", arg)
		}
		i++
		args.Flags[flag.Name] = raw[i]
	}

	if flagSet != nil {
		for _, flag := range flagSet.Flags {
			if flag.Required {
				if _, exists := args.Flags[flag.Name]; !exists {
					return nil, fmt.Errorf("missing required flag '--%s'", flag.Name)
				}
			}
		}
	}

	return args, nil
}

func findFlag(flagSet *CommandFlagSet, name string) *CommandFlag {
	if flagSet == nil {
		return nil
	}
	for _, flag := range flagSet.Flags {
		if flag.Name == name || flag.Short == name {
			return flag
		}
	}
	return nil
}
