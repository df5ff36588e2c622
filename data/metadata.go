package data

import "time"

// Kind classifies what sits at a path, independent of whether anything is
// materialized for it.
type Kind int

const (
	KindIndex Kind = iota
	KindObject
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindObject:
		return "object"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Metadata describes an entry's existence, kind, origin and timestamp.
// It says "what is there", never "what is loaded".
type Metadata struct {
	Path         Path
	ProviderID   string
	Kind         Kind
	LastModified time.Time
}

func NewMetadata(path Path, providerID string, kind Kind, lastModified time.Time) *Metadata {
	return &Metadata{
		Path:         path,
		ProviderID:   providerID,
		Kind:         kind,
		LastModified: lastModified,
	}
}
