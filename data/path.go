package data

import (
	"fmt"
	"strings"
)

// Path is an immutable hierarchical address inside the unified tree.
// A path either names an index position (directory-like, renders with a
// trailing slash) or an object position (leaf). Segment comparison for
// routing is case-insensitive; the original case is preserved for display.
type Path struct {
	segments []string
	index    bool
}

// RootPath returns the empty path, which is always an index position.
func RootPath() Path {
	return Path{index: true}
}

// ParsePath builds a Path from a slash-separated string. A trailing slash
// (or the empty string) marks an index position. "." segments collapse and
// ".." segments resolve against the preceding segment. Returns
// ErrInvalidPath when a segment would escape above the root.
func ParsePath(raw string) (Path, error) {
	index := raw == "" || strings.HasSuffix(raw, "/")

	var segments []string
	for _, segment := range strings.Split(raw, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(segments) == 0 {
				return Path{}, fmt.Errorf("%w: %q escapes the root", ErrInvalidPath, raw)
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, segment)
		}
	}

	if len(segments) == 0 {
		return RootPath(), nil
	}

	return Path{segments: segments, index: index}, nil
}

// MustParsePath is ParsePath for statically known inputs.
func MustParsePath(raw string) Path {
	path, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return path
}

// Child returns the path extended by one segment. The index flag decides
// whether the new path names an index or an object position.
func (p Path) Child(name string, index bool) (Path, error) {
	if err := validateSegment(name); err != nil {
		return Path{}, err
	}

	segments := make([]string, len(p.segments)+1)
	copy(segments, p.segments)
	segments[len(p.segments)] = name

	return Path{segments: segments, index: index}, nil
}

// Parent returns the enclosing index position. The parent of the root is
// the root itself.
func (p Path) Parent() Path {
	if len(p.segments) == 0 {
		return RootPath()
	}

	segments := make([]string, len(p.segments)-1)
	copy(segments, p.segments)

	return Path{segments: segments, index: true}
}

// Sibling replaces the final segment, keeping the index flag.
func (p Path) Sibling(name string) (Path, error) {
	if p.IsRoot() {
		return Path{}, fmt.Errorf("%w: root has no sibling", ErrInvalidPath)
	}

	return p.Parent().Child(name, p.index)
}

// Resolve interprets rel against p. An absolute-style resolution is not
// supported; rel is appended segment-wise and may use ".." through
// ParsePath before calling. The result adopts rel's index flag.
func (p Path) Resolve(rel Path) (Path, error) {
	segments := make([]string, 0, len(p.segments)+len(rel.segments))
	segments = append(segments, p.segments...)

	for _, segment := range rel.segments {
		if err := validateSegment(segment); err != nil {
			return Path{}, err
		}
		segments = append(segments, segment)
	}

	if len(segments) == 0 {
		return RootPath(), nil
	}

	return Path{segments: segments, index: rel.index}, nil
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	return len(p.segments)
}

// Length is an alias for Depth kept for callers thinking in name counts.
func (p Path) Length() int {
	return len(p.segments)
}

// Name returns the i-th segment in original case.
func (p Path) Name(i int) string {
	if i < 0 || i >= len(p.segments) {
		return ""
	}
	return p.segments[i]
}

// LastName returns the final segment, or "" for the root.
func (p Path) LastName() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

func (p Path) IsIndex() bool {
	return p.IsRoot() || p.index
}

// AsIndex returns the same address as an index position.
func (p Path) AsIndex() Path {
	p.index = true
	return p
}

// AsObject returns the same address as an object position.
func (p Path) AsObject() Path {
	if p.IsRoot() {
		return p
	}
	p.index = false
	return p
}

// Key returns the case-insensitive routing key. Two paths naming the same
// position (regardless of index flag) share a key.
func (p Path) Key() string {
	return strings.ToLower(strings.Join(p.segments, "/"))
}

// Equal compares routing keys and index flags.
func (p Path) Equal(other Path) bool {
	return p.IsIndex() == other.IsIndex() && p.Key() == other.Key()
}

// Contains reports whether other lies at or below the index position p.
func (p Path) Contains(other Path) bool {
	if len(other.segments) < len(p.segments) {
		return false
	}
	for i, segment := range p.segments {
		if !strings.EqualFold(segment, other.segments[i]) {
			return false
		}
	}
	return true
}

// RelativeTo strips the prefix from p. The second return value is false
// when p does not lie under prefix.
func (p Path) RelativeTo(prefix Path) (Path, bool) {
	if !prefix.Contains(p) {
		return Path{}, false
	}

	rest := p.segments[len(prefix.segments):]
	if len(rest) == 0 {
		return RootPath(), true
	}

	segments := make([]string, len(rest))
	copy(segments, rest)

	return Path{segments: segments, index: p.index}, true
}

// ReplaceName returns a copy with the i-th segment replaced.
func (p Path) ReplaceName(i int, name string) (Path, error) {
	if i < 0 || i >= len(p.segments) {
		return Path{}, fmt.Errorf("%w: no segment %d in %q", ErrInvalidPath, i, p.String())
	}
	if err := validateSegment(name); err != nil {
		return Path{}, err
	}

	segments := make([]string, len(p.segments))
	copy(segments, p.segments)
	segments[i] = name

	return Path{segments: segments, index: p.index}, nil
}

// String renders the original-case display form. Index positions carry a
// trailing slash; the root renders as "/".
func (p Path) String() string {
	if len(p.segments) == 0 {
		return "/"
	}

	joined := strings.Join(p.segments, "/")
	if p.index {
		return joined + "/"
	}
	return joined
}

func validateSegment(name string) error {
	switch name {
	case "", ".", "..":
		return fmt.Errorf("%w: invalid segment %q", ErrInvalidPath, name)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: segment %q contains separator", ErrInvalidPath, name)
	}
	return nil
}
