package data

import (
	"sort"
	"strings"
)

// Index is the union-able directory listing for an index position. Names
// are unique per set under case-insensitive comparison; the first
// contributor's casing wins for display. Indexes are recomputed per lookup
// and never persisted as their own artifact.
type Index struct {
	objects  map[string]string // routing key -> display name
	children map[string]string
}

func NewIndex() *Index {
	return &Index{
		objects:  make(map[string]string),
		children: make(map[string]string),
	}
}

func (i *Index) AddObject(name string) {
	key := strings.ToLower(name)
	if _, exists := i.objects[key]; !exists {
		i.objects[key] = name
	}
}

func (i *Index) AddChild(name string) {
	key := strings.ToLower(name)
	if _, exists := i.children[key]; !exists {
		i.children[key] = name
	}
}

func (i *Index) HasObject(name string) bool {
	_, exists := i.objects[strings.ToLower(name)]
	return exists
}

func (i *Index) HasChild(name string) bool {
	_, exists := i.children[strings.ToLower(name)]
	return exists
}

// Objects returns the object names sorted by routing key.
func (i *Index) Objects() []string {
	return sortedValues(i.objects)
}

// Children returns the child directory names sorted by routing key.
func (i *Index) Children() []string {
	return sortedValues(i.children)
}

// Len counts all entries across both sets.
func (i *Index) Len() int {
	return len(i.objects) + len(i.children)
}

// Merge unions other into i. Entries already present keep their casing.
func (i *Index) Merge(other *Index) *Index {
	if other == nil {
		return i
	}
	for key, name := range other.objects {
		if _, exists := i.objects[key]; !exists {
			i.objects[key] = name
		}
	}
	for key, name := range other.children {
		if _, exists := i.children[key]; !exists {
			i.children[key] = name
		}
	}
	return i
}

func sortedValues(set map[string]string) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	names := make([]string, len(keys))
	for n, key := range keys {
		names[n] = set[key]
	}
	return names
}
