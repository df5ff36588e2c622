package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
	"github.com/tidwall/btree"
)

// MemoryProvider is a thread-safe in-memory content source. Entries are
// held in a B-tree ordered by routing key, which makes index listings and
// prefix queries a bounded ascend instead of a full scan. Content is lost
// when the provider is closed.
type MemoryProvider struct {
	mu sync.RWMutex

	id       string
	readOnly bool
	entries  *btree.Map[string, *memoryEntry]
}

type memoryEntry struct {
	id      string
	path    data.Path
	kind    data.Kind
	content []byte
	modTime time.Time
}

type MemoryOption func(*MemoryProvider)

// AsReadOnly marks the provider itself read-only, independent of how it is
// mounted. Used for packaged content layers in tests.
func AsReadOnly() MemoryOption {
	return func(mp *MemoryProvider) {
		mp.readOnly = true
	}
}

func NewMemoryProvider(id string, opts ...MemoryOption) *MemoryProvider {
	mp := &MemoryProvider{
		id:      id,
		entries: btree.NewMap[string, *memoryEntry](0),
	}
	for _, opt := range opts {
		opt(mp)
	}

	return mp
}

// Seed stores a set of documents keyed by path string, bypassing the
// read-only flag. Intended for building fixed content layers.
func (mp *MemoryProvider) Seed(docs map[string]data.Document) error {
	for raw, doc := range docs {
		path, err := data.ParsePath(raw)
		if err != nil {
			return err
		}

		content, err := data.EncodeDocument(doc)
		if err != nil {
			return err
		}

		mp.mu.Lock()
		mp.put(path, data.KindObject, content)
		mp.mu.Unlock()
	}
	return nil
}

func (mp *MemoryProvider) ID() string {
	return mp.id
}

func (mp *MemoryProvider) Open(ctx context.Context) error {
	return nil
}

func (mp *MemoryProvider) Close(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.entries.Clear()
	return nil
}

func (mp *MemoryProvider) Lookup(ctx context.Context, path data.Path) (*data.Metadata, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entry, exists := mp.entries.Get(entryKey(path))
	if !exists {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	if path.IsIndex() != (entry.kind == data.KindIndex) {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	return data.NewMetadata(entry.path, mp.id, entry.kind, entry.modTime), nil
}

func (mp *MemoryProvider) LoadDocument(ctx context.Context, path data.Path) (data.Document, *data.Metadata, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entry, exists := mp.entries.Get(entryKey(path))
	if !exists || entry.kind != data.KindObject {
		return nil, nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	doc, err := data.DecodeDocument(entry.content)
	if err != nil {
		return nil, nil, err
	}

	return doc, data.NewMetadata(entry.path, mp.id, entry.kind, entry.modTime), nil
}

func (mp *MemoryProvider) LoadBinary(ctx context.Context, path data.Path) ([]byte, *data.Metadata, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entry, exists := mp.entries.Get(entryKey(path))
	if !exists || entry.kind == data.KindIndex {
		return nil, nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	raw := make([]byte, len(entry.content))
	copy(raw, entry.content)

	return raw, data.NewMetadata(entry.path, mp.id, entry.kind, entry.modTime), nil
}

func (mp *MemoryProvider) Store(ctx context.Context, path data.Path, doc data.Document) error {
	content, err := data.EncodeDocument(doc)
	if err != nil {
		return err
	}
	return mp.store(path, data.KindObject, content)
}

func (mp *MemoryProvider) StoreBinary(ctx context.Context, path data.Path, raw []byte) error {
	content := make([]byte, len(raw))
	copy(content, raw)
	return mp.store(path, data.KindBinary, content)
}

func (mp *MemoryProvider) store(path data.Path, kind data.Kind, content []byte) error {
	if mp.readOnly {
		return fmt.Errorf("%w: %s", data.ErrReadOnly, mp.id)
	}
	if path.IsIndex() {
		return fmt.Errorf("%w: %s is an index position", data.ErrReadOnly, path)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.put(path, kind, content)
	return nil
}

// put writes the entry and auto-creates missing parent index nodes.
// Must be called with lock held.
func (mp *MemoryProvider) put(path data.Path, kind data.Kind, content []byte) {
	now := time.Now()

	for parent := path.Parent(); !parent.IsRoot(); parent = parent.Parent() {
		key := entryKey(parent)
		if _, exists := mp.entries.Get(key); exists {
			break
		}
		mp.entries.Set(key, &memoryEntry{
			id:      newEntryID(),
			path:    parent,
			kind:    data.KindIndex,
			modTime: now,
		})
	}

	mp.entries.Set(entryKey(path), &memoryEntry{
		id:      newEntryID(),
		path:    path,
		kind:    kind,
		content: content,
		modTime: now,
	})
}

func (mp *MemoryProvider) Remove(ctx context.Context, path data.Path) error {
	if mp.readOnly {
		return fmt.Errorf("%w: %s", data.ErrReadOnly, mp.id)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := entryKey(path)
	entry, exists := mp.entries.Get(key)
	if !exists {
		return fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	if entry.kind == data.KindIndex {
		// Recursive removal of the whole sub-tree. The walk starts at
		// "key/" so siblings sorting between "key" and "key/" (runes
		// below '/', e.g. "app-config" next to "app/") cannot cut it
		// short.
		prefix := key + "/"
		doomed := []string{key}
		mp.entries.Ascend(prefix, func(k string, _ *memoryEntry) bool {
			if !strings.HasPrefix(k, prefix) {
				return false
			}
			doomed = append(doomed, k)
			return true
		})
		for _, k := range doomed {
			mp.entries.Delete(k)
		}
		return nil
	}

	mp.entries.Delete(key)
	return nil
}

func (mp *MemoryProvider) List(ctx context.Context, path data.Path) (*data.Index, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if !path.IsRoot() {
		entry, exists := mp.entries.Get(entryKey(path))
		if !exists || entry.kind != data.KindIndex {
			return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
		}
	}

	index := data.NewIndex()
	depth := path.Depth()

	mp.ascend(path, func(entry *memoryEntry) bool {
		if entry.path.Depth() != depth+1 {
			return true
		}
		if entry.kind == data.KindIndex {
			index.AddChild(entry.path.LastName())
		} else {
			index.AddObject(entry.path.LastName())
		}
		return true
	})

	return index, nil
}

func (mp *MemoryProvider) Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error) {
	return provider.NewCursor(func() ([]*data.Metadata, error) {
		mp.mu.RLock()
		defer mp.mu.RUnlock()

		var metas []*data.Metadata
		mp.ascend(query.Prefix, func(entry *memoryEntry) bool {
			meta := data.NewMetadata(entry.path, mp.id, entry.kind, entry.modTime)
			if query.Matches(meta) {
				metas = append(metas, meta)
			}
			return true
		})
		return metas, nil
	}), nil
}

// ascend walks every entry strictly below the index position, in key order.
// Must be called with lock held.
func (mp *MemoryProvider) ascend(path data.Path, visit func(*memoryEntry) bool) {
	prefix := entryKey(path)
	if prefix != "" {
		prefix += "/"
	}

	mp.entries.Ascend(prefix, func(key string, entry *memoryEntry) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		return visit(entry)
	})
}

func entryKey(path data.Path) string {
	return path.Key()
}

func newEntryID() string {
	return uuid.Must(uuid.NewV7()).String()
}
