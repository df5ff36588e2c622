package data

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// KeyType names the type descriptor a document materializes through.
	KeyType = "type"

	// HiddenPrefix marks properties that are persisted but stripped from
	// results handed to callers without elevated read access.
	HiddenPrefix = "."

	// ComputedPrefix marks transient properties that are never persisted.
	ComputedPrefix = "_"
)

// Value is one tagged document value. The concrete types are:
// string, int64, float64, bool, time.Time, []byte, Document and List.
type Value any

// List is an ordered sequence of values.
type List []Value

// Document is the open-ended property map every stored object is made of.
type Document map[string]Value

// Type returns the declared type descriptor name, or "" for untyped
// documents.
func (d Document) Type() string {
	if raw, exists := d[KeyType]; exists {
		if name, ok := raw.(string); ok {
			return name
		}
	}
	return ""
}

// Clone performs a deep copy of the document.
func (d Document) Clone() Document {
	clone := make(Document, len(d))
	for key, value := range d {
		clone[key] = cloneValue(value)
	}
	return clone
}

// WithoutHidden returns a copy with all hidden-prefixed keys removed, at
// every nesting level.
func (d Document) WithoutHidden() Document {
	return d.withoutPrefix(HiddenPrefix)
}

// WithoutComputed returns a copy with all computed-prefixed keys removed,
// at every nesting level.
func (d Document) WithoutComputed() Document {
	return d.withoutPrefix(ComputedPrefix)
}

func (d Document) withoutPrefix(prefix string) Document {
	filtered := make(Document, len(d))
	for key, value := range d {
		if strings.HasPrefix(key, prefix) {
			continue
		}
		filtered[key] = filterValue(value, prefix)
	}
	return filtered
}

func filterValue(value Value, prefix string) Value {
	switch typed := value.(type) {
	case Document:
		return typed.withoutPrefix(prefix)
	case List:
		filtered := make(List, len(typed))
		for n, item := range typed {
			filtered[n] = filterValue(item, prefix)
		}
		return filtered
	default:
		return value
	}
}

func cloneValue(value Value) Value {
	switch typed := value.(type) {
	case Document:
		return typed.Clone()
	case List:
		clone := make(List, len(typed))
		for n, item := range typed {
			clone[n] = cloneValue(item)
		}
		return clone
	case []byte:
		clone := make([]byte, len(typed))
		copy(clone, typed)
		return clone
	default:
		return value
	}
}

// EncodeDocument renders the at-rest form of a document. The encoding is
// an implementation detail of the providers; nothing outside this package
// should assume YAML.
func EncodeDocument(doc Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

// DecodeDocument parses the at-rest form back into a Document, normalizing
// decoded scalars into the tagged value set.
func DecodeDocument(raw []byte) (Document, error) {
	var decoded map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if decoded == nil {
		return Document{}, nil
	}
	return normalizeMap(decoded), nil
}

func normalizeMap(decoded map[string]any) Document {
	doc := make(Document, len(decoded))
	for key, value := range decoded {
		doc[key] = normalizeValue(value)
	}
	return doc
}

func normalizeValue(value any) Value {
	switch typed := value.(type) {
	case map[string]any:
		return normalizeMap(typed)
	case []any:
		list := make(List, len(typed))
		for n, item := range typed {
			list[n] = normalizeValue(item)
		}
		return list
	case int:
		return int64(typed)
	case int64, float64, bool, string, time.Time, []byte, nil:
		return typed
	default:
		return typed
	}
}
