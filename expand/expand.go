// Package expand resolves "${vault!key:default}" placeholder references
// inside document values against pluggable vault backends. Expansion runs
// fresh on every load; a resolved value is never written back, so a stored
// secret reference stays a reference at rest.
package expand

import (
	"strings"
	"sync"

	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/log"
)

// DefaultVault is the vault consulted for "${key}" references that name no
// vault explicitly.
const DefaultVault = "env"

// Registry holds the named vaults available to expansion.
type Registry struct {
	mu sync.RWMutex

	vaults      map[string]Vault
	defaultName string
	logger      *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Discard()
	}

	registry := &Registry{
		vaults:      make(map[string]Vault),
		defaultName: DefaultVault,
		logger:      logger,
	}
	registry.Register(NewEnvVault())
	registry.Register(NewPropsVault(nil))

	return registry
}

// Register adds or replaces a vault under its own name.
func (r *Registry) Register(vault Vault) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vaults[vault.Name()] = vault
}

// SetDefault changes which vault serves references without an explicit
// vault name.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultName = name
}

// Expand recursively walks the value graph and substitutes placeholder
// references inside every string. Substituted text is scanned again, so
// references resolving to further references expand as well; there is no
// depth limit on this recursion. Expansion never fails: an unresolvable
// vault name leaves the literal placeholder text in place with a warning.
func (r *Registry) Expand(value data.Value) data.Value {
	switch typed := value.(type) {
	case data.Document:
		return r.ExpandDocument(typed)
	case data.List:
		expanded := make(data.List, len(typed))
		for n, item := range typed {
			expanded[n] = r.Expand(item)
		}
		return expanded
	case string:
		return r.expandString(typed)
	default:
		return value
	}
}

// ExpandDocument expands every value of the document into a new document.
func (r *Registry) ExpandDocument(doc data.Document) data.Document {
	expanded := make(data.Document, len(doc))
	for key, value := range doc {
		expanded[key] = r.Expand(value)
	}
	return expanded
}

func (r *Registry) expandString(s string) string {
	// searchFrom only advances past placeholders left unresolved, so
	// substituted text is re-scanned from its own beginning.
	searchFrom := 0
	for {
		start := strings.Index(s[searchFrom:], "${")
		if start < 0 {
			return s
		}
		start += searchFrom

		end := strings.Index(s[start:], "}")
		if end < 0 {
			return s
		}
		end += start

		resolved, ok := r.resolve(s[start+2 : end])
		if !ok {
			searchFrom = end + 1
			continue
		}

		s = s[:start] + resolved + s[end+1:]
		searchFrom = start
	}
}

// resolve evaluates one placeholder body of the form "vault!key:default".
// The second return value is false only when the named vault is unknown.
func (r *Registry) resolve(ref string) (string, bool) {
	r.mu.RLock()
	vaultName := r.defaultName
	rest := ref
	if i := strings.Index(ref, "!"); i >= 0 {
		vaultName = ref[:i]
		rest = ref[i+1:]
	}

	key := rest
	fallback := ""
	hasFallback := false
	if i := strings.Index(rest, ":"); i >= 0 {
		key = rest[:i]
		fallback = rest[i+1:]
		hasFallback = true
	}

	vault, exists := r.vaults[vaultName]
	r.mu.RUnlock()

	if !exists {
		r.logger.Warn("unresolvable vault '%s' in reference '${%s}', keeping literal", vaultName, ref)
		return "", false
	}

	if value, found := vault.Get(key); found {
		return value, true
	}
	if hasFallback {
		return fallback, true
	}
	return "", true
}
