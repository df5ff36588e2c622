package provider

import (
	"strings"

	"github.com/mwantia/unistore/data"
)

// Query selects Metadata below a prefix, optionally filtered by kind and
// name suffix.
type Query struct {
	// Prefix restricts results to the sub-tree below this index position.
	Prefix data.Path

	// Kind filters results to one kind when set.
	Kind *data.Kind

	// NameSuffix filters on the final path segment (case-insensitive).
	NameSuffix string
}

// Matches applies the kind and suffix filters to one candidate.
func (q *Query) Matches(meta *data.Metadata) bool {
	if q.Kind != nil && meta.Kind != *q.Kind {
		return false
	}
	if q.NameSuffix != "" {
		name := strings.ToLower(meta.Path.LastName())
		if !strings.HasSuffix(name, strings.ToLower(q.NameSuffix)) {
			return false
		}
	}
	return true
}

// WithKind returns a copy of the query filtered to one kind.
func (q Query) WithKind(kind data.Kind) *Query {
	q.Kind = &kind
	return &q
}

// Cursor is a lazy, restartable sequence of Metadata. The underlying fetch
// runs on the first Next after construction or Reset, so a restarted
// cursor observes the current state of the tree.
type Cursor struct {
	fetch func() ([]*data.Metadata, error)

	fetched bool
	metas   []*data.Metadata
	pos     int
	err     error
}

// NewCursor builds a cursor around a fetch callback.
func NewCursor(fetch func() ([]*data.Metadata, error)) *Cursor {
	return &Cursor{fetch: fetch}
}

// Next returns the next entry, or false when the sequence is exhausted or
// the fetch failed. Check Err after a false return.
func (c *Cursor) Next() (*data.Metadata, bool) {
	if !c.fetched {
		c.metas, c.err = c.fetch()
		c.fetched = true
		c.pos = 0
	}
	if c.err != nil || c.pos >= len(c.metas) {
		return nil, false
	}

	meta := c.metas[c.pos]
	c.pos++
	return meta, true
}

// Reset rewinds the cursor and discards fetched state, so the next Next
// re-runs the fetch.
func (c *Cursor) Reset() {
	c.fetched = false
	c.metas = nil
	c.pos = 0
	c.err = nil
}

// Err returns the fetch error, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Collect drains the cursor into a slice.
func (c *Cursor) Collect() ([]*data.Metadata, error) {
	var metas []*data.Metadata
	for {
		meta, ok := c.Next()
		if !ok {
			break
		}
		metas = append(metas, meta)
	}
	return metas, c.Err()
}
