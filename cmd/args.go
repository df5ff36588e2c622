package cmd

// CommandArgs contains parsed command arguments
type CommandArgs struct {
	// Positional arguments (command-specific)
	Args []string

	// Parsed flags
	Flags map[string]any

	// Raw unparsed arguments (for custom parsing)
	Raw []string
}

// Bool returns a parsed boolean flag, or false when absent.
func (ca *CommandArgs) Bool(name string) bool {
	value, _ := ca.Flags[name].(bool)
	return value
}

// String returns a parsed string flag, or the fallback when absent.
func (ca *CommandArgs) String(name, fallback string) string {
	if value, ok := ca.Flags[name].(string); ok {
		return value
	}
	return fallback
}

// CommandFlagSet defines the expected flags for a command
type CommandFlagSet struct {
	Flags map[string]*CommandFlag
}

// CommandFlag represents a single command-line flag
type CommandFlag struct {
	Name        string `json:"name"`              // e.g., "kind" or "k"
	Short       string `json:"short"`             // Single-char shorthand (e.g., "k")
	Type        string `json:"type"`              // "string" or "bool"
	Default     any    `json:"default,omitempty"` // Default value
	Required    bool   `json:"required"`          // Must be provided
	Description string `json:"description"`      // Help text
}
