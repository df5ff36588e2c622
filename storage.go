package unistore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/expand"
	"github.com/mwantia/unistore/log"
	"github.com/mwantia/unistore/provider"
)

// UnionStorage composes mounted providers into one tree. Object lookups
// resolve by priority (read-write layer first, platform layer last) so a
// higher-priority provider shadows lower ones; index listings union every
// layer. The mount table is copy-on-write: mutations build a fresh ordered
// slice under the write lock, readers snapshot the current slice and never
// observe a provider half-mounted.
type UnionStorage struct {
	mu     sync.RWMutex
	mounts []*mountEntry
	seq    int
	closed bool

	typesPrefix data.Path
	registry    *TypeRegistry
	cache       *objectCache
	expander    *expand.Registry
	logger      *log.Logger
}

type mountEntry struct {
	provider provider.Provider
	prefix   data.Path
	options  *MountOptions
	seq      int
}

func New(opts ...StorageOption) (*UnionStorage, error) {
	options := newDefaultStorageOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	logger := options.Logger
	if logger == nil {
		logger = log.Discard()
	}

	expander := options.Expander
	if expander == nil {
		expander = expand.NewRegistry(logger.Named("expand"))
	}

	typesPrefix, err := data.ParsePath(options.TypesPrefix)
	if err != nil {
		return nil, err
	}

	return &UnionStorage{
		typesPrefix: typesPrefix.AsIndex(),
		registry:    NewTypeRegistry(logger.Named("registry")),
		cache:       newObjectCache(options.SweepInterval, logger.Named("cache")),
		expander:    expander,
		logger:      logger,
	}, nil
}

// Mount registers a provider for a sub-tree. Several providers may mount
// the same prefix; that is how shadowing occurs. At most one mount is
// writable. The provider is opened before it becomes visible, so a
// concurrent lookup sees it fully present or not at all.
func (s *UnionStorage) Mount(ctx context.Context, prefix data.Path, prov provider.Provider, opts ...MountOption) error {
	options := newDefaultMountOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return data.ErrClosed
	}

	for _, entry := range s.mounts {
		if entry.provider.ID() == prov.ID() {
			return fmt.Errorf("%w: provider '%s'", data.ErrAlreadyMounted, prov.ID())
		}
		if !options.ReadOnly && !entry.options.ReadOnly {
			return fmt.Errorf("%w: '%s' is already the read-write layer", data.ErrAlreadyMounted, entry.provider.ID())
		}
	}

	if err := prov.Open(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", data.ErrMountFailed, prov.ID(), err)
	}

	s.seq++
	mounts := make([]*mountEntry, len(s.mounts), len(s.mounts)+1)
	copy(mounts, s.mounts)
	mounts = append(mounts, &mountEntry{
		provider: prov,
		prefix:   prefix.AsIndex(),
		options:  options,
		seq:      s.seq,
	})
	sortMounts(mounts)

	s.mounts = mounts
	s.logger.Info("mounted provider '%s' at '%s' (priority %d, readonly %t)",
		prov.ID(), prefix.AsIndex(), options.Priority, options.ReadOnly)

	return nil
}

// Unmount removes a provider by ID, closes it and drops every cached
// instance under its prefix.
func (s *UnionStorage) Unmount(ctx context.Context, providerID string) error {
	s.mu.Lock()

	var removed *mountEntry
	mounts := make([]*mountEntry, 0, len(s.mounts))
	for _, entry := range s.mounts {
		if entry.provider.ID() == providerID {
			removed = entry
			continue
		}
		mounts = append(mounts, entry)
	}
	if removed == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: provider '%s'", data.ErrNotMounted, providerID)
	}

	s.mounts = mounts
	s.mu.Unlock()

	s.cache.invalidatePrefix(removed.prefix.Key())

	if err := removed.provider.Close(ctx); err != nil {
		return err
	}

	s.logger.Info("unmounted provider '%s'", providerID)
	return nil
}

// Mounts returns the current resolution order as provider IDs.
func (s *UnionStorage) Mounts() []string {
	ids := make([]string, 0)
	for _, entry := range s.snapshot() {
		ids = append(ids, entry.provider.ID())
	}
	return ids
}

// RegisterHandler binds a native type handler factory by name.
func (s *UnionStorage) RegisterHandler(name string, handler TypeHandler) {
	s.registry.RegisterHandler(name, handler)
}

// Registry exposes the type registry for inspection.
func (s *UnionStorage) Registry() *TypeRegistry {
	return s.registry
}

// Populate is phase two of initialization: with providers mounted and raw
// load/store working, it builds the type registry from the descriptor
// sub-tree. Typed materialization is enabled from then on; instances
// materialized untyped during phase one are dropped so their next load
// constructs through the registry.
func (s *UnionStorage) Populate(ctx context.Context) error {
	if err := s.registry.populate(ctx, s, s.typesPrefix); err != nil {
		return err
	}

	s.cache.invalidatePrefix("")
	return nil
}

// Close evicts and tears down every live instance, then closes all
// providers in reverse mount order.
func (s *UnionStorage) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return data.ErrClosed
	}
	s.closed = true
	mounts := s.mounts
	s.mounts = nil
	s.mu.Unlock()

	errs := data.Errors{}
	errs.Add(s.cache.close(ctx))

	for n := len(mounts) - 1; n >= 0; n-- {
		errs.Add(mounts[n].provider.Close(ctx))
	}

	return errs.Errors()
}

func (s *UnionStorage) Lookup(ctx context.Context, path data.Path) (*data.Metadata, error) {
	mounts, err := s.snapshotChecked()
	if err != nil {
		return nil, err
	}

	if path.IsIndex() {
		return s.lookupIndex(ctx, mounts, path)
	}

	for _, entry := range mounts {
		rel, claimed := path.RelativeTo(entry.prefix)
		if !claimed {
			continue
		}

		meta, err := entry.provider.Lookup(ctx, rel)
		if err != nil {
			if !errors.Is(err, data.ErrNotFound) {
				s.logger.Debug("lookup of '%s' in '%s' failed: %v", path, entry.provider.ID(), err)
			}
			continue
		}

		return rebase(meta, entry.prefix), nil
	}

	return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
}

// lookupIndex synthesizes Metadata for an index position. It exists when
// any mounted layer contributes entries to it, including mounts rooted
// below it.
func (s *UnionStorage) lookupIndex(ctx context.Context, mounts []*mountEntry, path data.Path) (*data.Metadata, error) {
	for _, entry := range mounts {
		if rel, claimed := path.RelativeTo(entry.prefix); claimed {
			// The mount point itself always exists as an index
			if rel.IsRoot() {
				return data.NewMetadata(path.AsIndex(), entry.provider.ID(), data.KindIndex, time.Time{}), nil
			}

			meta, err := entry.provider.Lookup(ctx, rel.AsIndex())
			if err == nil {
				return data.NewMetadata(path.AsIndex(), meta.ProviderID, data.KindIndex, meta.LastModified), nil
			}
			continue
		}
		if path.Contains(entry.prefix) {
			return data.NewMetadata(path.AsIndex(), entry.provider.ID(), data.KindIndex, time.Time{}), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
}

// Load reads the document at an object position through the winning
// provider, strips hidden properties for non-privileged callers and
// expands placeholder references. Expansion runs fresh on every load; the
// resolved form is never cached or persisted.
func (s *UnionStorage) Load(ctx context.Context, path data.Path) (data.Document, error) {
	doc, _, err := s.loadDocument(ctx, path)
	if err != nil {
		return nil, err
	}

	if !IsPrivilegedRead(ctx) {
		doc = doc.WithoutHidden()
	}

	return s.expander.ExpandDocument(doc), nil
}

// loadRaw reads a document without filtering or expansion. The registry
// bootstrap and materialization run through this.
func (s *UnionStorage) loadRaw(ctx context.Context, path data.Path) (data.Document, error) {
	doc, _, err := s.loadDocument(ctx, path)
	return doc, err
}

func (s *UnionStorage) loadDocument(ctx context.Context, path data.Path) (data.Document, *data.Metadata, error) {
	mounts, err := s.snapshotChecked()
	if err != nil {
		return nil, nil, err
	}

	for _, entry := range mounts {
		rel, claimed := path.RelativeTo(entry.prefix)
		if !claimed {
			continue
		}

		doc, meta, err := entry.provider.LoadDocument(ctx, rel)
		if err != nil {
			if !errors.Is(err, data.ErrNotFound) {
				s.logger.Debug("load of '%s' from '%s' failed: %v", path, entry.provider.ID(), err)
			}
			continue
		}

		return doc, rebase(meta, entry.prefix), nil
	}

	return nil, nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
}

func (s *UnionStorage) LoadBinary(ctx context.Context, path data.Path) ([]byte, error) {
	mounts, err := s.snapshotChecked()
	if err != nil {
		return nil, err
	}

	for _, entry := range mounts {
		rel, claimed := path.RelativeTo(entry.prefix)
		if !claimed {
			continue
		}

		raw, _, err := entry.provider.LoadBinary(ctx, rel)
		if err != nil {
			if !errors.Is(err, data.ErrNotFound) {
				s.logger.Debug("load of '%s' from '%s' failed: %v", path, entry.provider.ID(), err)
			}
			continue
		}

		return raw, nil
	}

	return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
}

// Store writes into the read-write layer. Computed properties never reach
// the provider; hidden properties persist as stored. Missing intermediate
// index nodes are created by the provider. Writing to a path outside the
// writable mount's sub-tree, or to an index position, fails with
// ErrReadOnly.
func (s *UnionStorage) Store(ctx context.Context, path data.Path, doc data.Document) error {
	if path.IsIndex() {
		return fmt.Errorf("%w: %s is an index position", data.ErrReadOnly, path)
	}

	entry, rel, err := s.writableClaim(path)
	if err != nil {
		return err
	}

	if err := entry.provider.Store(ctx, rel, doc.WithoutComputed()); err != nil {
		return err
	}

	s.cache.invalidate(path.Key())
	return nil
}

func (s *UnionStorage) StoreBinary(ctx context.Context, path data.Path, raw []byte) error {
	if path.IsIndex() {
		return fmt.Errorf("%w: %s is an index position", data.ErrReadOnly, path)
	}

	entry, rel, err := s.writableClaim(path)
	if err != nil {
		return err
	}

	if err := entry.provider.StoreBinary(ctx, rel, raw); err != nil {
		return err
	}

	s.cache.invalidate(path.Key())
	return nil
}

// Remove deletes from the read-write layer, recursively at index
// positions. Removing a path that exists only in read-only layers fails
// with ErrReadOnly and has no side effects.
func (s *UnionStorage) Remove(ctx context.Context, path data.Path) error {
	entry, rel, err := s.writableClaim(path)
	if err != nil {
		return err
	}

	if err := entry.provider.Remove(ctx, rel); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			if _, lookupErr := s.Lookup(ctx, path); lookupErr == nil {
				return fmt.Errorf("%w: %s exists only in read-only layers", data.ErrReadOnly, path)
			}
		}
		return err
	}

	if path.IsIndex() {
		s.cache.invalidatePrefix(path.Key())
	} else {
		s.cache.invalidate(path.Key())
	}

	return nil
}

// List returns the union of every mounted provider's entries at an index
// position. Mounts rooted below the position contribute their mount point
// as a child name.
func (s *UnionStorage) List(ctx context.Context, path data.Path) (*data.Index, error) {
	mounts, err := s.snapshotChecked()
	if err != nil {
		return nil, err
	}

	path = path.AsIndex()
	merged := data.NewIndex()
	found := false

	for _, entry := range mounts {
		if rel, claimed := path.RelativeTo(entry.prefix); claimed {
			index, err := entry.provider.List(ctx, rel.AsIndex())
			if err != nil {
				if !errors.Is(err, data.ErrNotFound) {
					s.logger.Warn("listing '%s' in '%s' failed: %v", path, entry.provider.ID(), err)
				}
				continue
			}
			merged.Merge(index)
			found = true
			continue
		}

		if path.Contains(entry.prefix) && entry.prefix.Depth() > path.Depth() {
			merged.AddChild(entry.prefix.Name(path.Depth()))
			found = true
		}
	}

	if !found && !path.IsRoot() {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	return merged, nil
}

// Query produces a lazy, restartable sequence of Metadata across all
// providers under the prefix. Shadowed paths appear once, owned by the
// winning provider; results are ordered by routing key.
func (s *UnionStorage) Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error) {
	if _, err := s.snapshotChecked(); err != nil {
		return nil, err
	}

	return provider.NewCursor(func() ([]*data.Metadata, error) {
		mounts, err := s.snapshotChecked()
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)
		var metas []*data.Metadata

		for _, entry := range mounts {
			sub := *query
			if rel, claimed := query.Prefix.RelativeTo(entry.prefix); claimed {
				sub.Prefix = rel.AsIndex()
			} else if query.Prefix.Contains(entry.prefix) {
				sub.Prefix = data.RootPath()
			} else {
				continue
			}

			cursor, err := entry.provider.Query(ctx, &sub)
			if err != nil {
				s.logger.Warn("query in '%s' failed: %v", entry.provider.ID(), err)
				continue
			}

			results, err := cursor.Collect()
			if err != nil {
				s.logger.Warn("query in '%s' failed: %v", entry.provider.ID(), err)
				continue
			}

			for _, meta := range results {
				abs, err := entry.prefix.Resolve(meta.Path)
				if err != nil {
					continue
				}

				key := abs.Key()
				if abs.IsIndex() {
					key += "/"
				}
				if seen[key] {
					continue
				}
				seen[key] = true

				metas = append(metas, data.NewMetadata(abs, meta.ProviderID, meta.Kind, meta.LastModified))
			}
		}

		sort.Slice(metas, func(i, j int) bool {
			return metas[i].Path.Key() < metas[j].Path.Key()
		})

		return metas, nil
	}), nil
}

// Materialize loads the document at path and returns a handle to its live
// instance. Repeated calls with an unchanged source document return the
// same instance; a changed document tears the old instance down and
// constructs a fresh one. Types without a registered descriptor fall back
// to an untyped DocumentInstance. A handler construction failure marks the
// path unavailable until its document changes.
func (s *UnionStorage) Materialize(ctx context.Context, path data.Path) (*Handle, error) {
	doc, meta, err := s.loadDocument(ctx, path)
	if err != nil {
		return nil, err
	}

	expanded := s.expander.ExpandDocument(doc)
	handler, typed := s.registry.HandlerFor(expanded.Type())

	return s.cache.acquire(ctx, path.Key(), meta.LastModified, func(ctx context.Context) (Instance, error) {
		if typed {
			return handler.Construct(ctx, path, expanded)
		}
		return NewDocumentInstance(path, expanded), nil
	})
}

// writableClaim resolves the single writable mount claiming the path.
func (s *UnionStorage) writableClaim(path data.Path) (*mountEntry, data.Path, error) {
	mounts, err := s.snapshotChecked()
	if err != nil {
		return nil, data.Path{}, err
	}

	hasWritable := false
	for _, entry := range mounts {
		if entry.options.ReadOnly {
			continue
		}
		hasWritable = true

		if rel, claimed := path.RelativeTo(entry.prefix); claimed {
			return entry, rel, nil
		}
	}

	if !hasWritable {
		return nil, data.Path{}, fmt.Errorf("%w", data.ErrNoWritable)
	}
	return nil, data.Path{}, fmt.Errorf("%w: %s resolves outside the read-write layer", data.ErrReadOnly, path)
}

func (s *UnionStorage) snapshot() []*mountEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mounts
}

func (s *UnionStorage) snapshotChecked() ([]*mountEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, data.ErrClosed
	}
	return s.mounts, nil
}

// sortMounts orders entries for object resolution: the read-write layer
// first, the platform layer last, everything else by descending priority.
// Equal priorities resolve by mount registration order.
func sortMounts(mounts []*mountEntry) {
	sort.SliceStable(mounts, func(i, j int) bool {
		a, b := mounts[i], mounts[j]
		if a.options.ReadOnly != b.options.ReadOnly {
			return !a.options.ReadOnly
		}
		if a.options.Platform != b.options.Platform {
			return b.options.Platform
		}
		if a.options.Priority != b.options.Priority {
			return a.options.Priority > b.options.Priority
		}
		return a.seq < b.seq
	})
}

// rebase rewrites provider-relative Metadata into the unified tree.
func rebase(meta *data.Metadata, prefix data.Path) *data.Metadata {
	abs, err := prefix.Resolve(meta.Path)
	if err != nil {
		abs = meta.Path
	}
	return data.NewMetadata(abs, meta.ProviderID, meta.Kind, meta.LastModified)
}
