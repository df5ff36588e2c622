package expand

// Vault is a named backend resolving secret or configuration references.
// Get reports absence through the second return value; a Vault never
// errors, unreachable backends simply report absent.
type Vault interface {
	// Name returns the identifier used in "${name!key}" placeholders.
	Name() string

	// Get resolves a key to its value.
	Get(key string) (string, bool)
}
