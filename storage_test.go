package unistore_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/mwantia/unistore"
	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
	"github.com/mwantia/unistore/provider/memory"
)

// newLayeredStorage builds the canonical three-layer setup: a writable
// local layer, a plugin layer and the platform base layer, all mounted at
// the root.
func newLayeredStorage(t *testing.T) *unistore.UnionStorage {
	ctx := t.Context()

	storage, err := unistore.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { storage.Close(ctx) })

	local := memory.NewMemoryProvider("local")

	plugin := memory.NewMemoryProvider("examplePlugin", memory.AsReadOnly())
	if err := plugin.Seed(map[string]data.Document{
		"app/start":  {"source": "examplePlugin", "label": "Start"},
		"app/plugin": {"source": "examplePlugin"},
	}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	platform := memory.NewMemoryProvider("platform", memory.AsReadOnly())
	if err := platform.Seed(map[string]data.Document{
		"app/start": {"source": "platform", "label": "Start"},
		"app/base":  {"source": "platform"},
	}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if err := storage.Mount(ctx, data.RootPath(), local, unistore.AsWritable(), unistore.WithPriority(100)); err != nil {
		t.Fatalf("Mount local failed: %v", err)
	}
	if err := storage.Mount(ctx, data.RootPath(), plugin, unistore.WithPriority(50)); err != nil {
		t.Fatalf("Mount plugin failed: %v", err)
	}
	if err := storage.Mount(ctx, data.RootPath(), platform, unistore.AsPlatform()); err != nil {
		t.Fatalf("Mount platform failed: %v", err)
	}

	return storage
}

func TestUnionStorage_Shadowing(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	// user/alice exists only in local
	alice := data.MustParsePath("user/alice")
	if err := storage.Store(ctx, alice, data.Document{"name": "Alice"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	meta, err := storage.Lookup(ctx, alice)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if meta.ProviderID != "local" {
		t.Errorf("Expected local, got %s", meta.ProviderID)
	}

	// app/start exists in examplePlugin and platform; the plugin wins
	doc, err := storage.Load(ctx, data.MustParsePath("app/start"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc["source"] != "examplePlugin" {
		t.Errorf("Expected examplePlugin's copy, got %v", doc["source"])
	}

	// A copy in the writable layer shadows everything
	if err := storage.Store(ctx, data.MustParsePath("app/start"), data.Document{"source": "local"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	doc, err = storage.Load(ctx, data.MustParsePath("app/start"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc["source"] != "local" {
		t.Errorf("Expected local's copy, got %v", doc["source"])
	}
}

func TestUnionStorage_ListingUnion(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	if err := storage.Store(ctx, data.MustParsePath("app/mine"), data.Document{"source": "local"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	index, err := storage.List(ctx, data.MustParsePath("app/"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	for _, name := range []string{"start", "plugin", "base", "mine"} {
		if !index.HasObject(name) {
			t.Errorf("Expected %q in union listing, got %v", name, index.Objects())
		}
	}

	// start is shadowed but appears exactly once
	count := 0
	for _, name := range index.Objects() {
		if name == "start" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected shadowed name once, got %d", count)
	}
}

func TestUnionStorage_IndexLookup(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	meta, err := storage.Lookup(ctx, data.MustParsePath("app/"))
	if err != nil {
		t.Fatalf("Index lookup failed: %v", err)
	}
	if meta.Kind != data.KindIndex {
		t.Errorf("Expected index kind, got %s", meta.Kind)
	}

	if _, err := storage.Lookup(ctx, data.MustParsePath("nothing/")); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUnionStorage_StoreErrors(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	// Index positions reject document writes
	err := storage.Store(ctx, data.MustParsePath("app/"), data.Document{"x": "y"})
	if !errors.Is(err, data.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for index position, got %v", err)
	}

	// Without any writable layer writes fail outright
	bare, err := unistore.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bare.Close(ctx)

	ro := memory.NewMemoryProvider("ro", memory.AsReadOnly())
	if err := bare.Mount(ctx, data.RootPath(), ro); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	err = bare.Store(ctx, data.MustParsePath("x"), data.Document{})
	if !errors.Is(err, data.ErrNoWritable) {
		t.Errorf("Expected ErrNoWritable, got %v", err)
	}
}

func TestUnionStorage_StoreOutsideWritablePrefix(t *testing.T) {
	ctx := t.Context()

	storage, err := unistore.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer storage.Close(ctx)

	local := memory.NewMemoryProvider("local")
	if err := storage.Mount(ctx, data.MustParsePath("user/"), local, unistore.AsWritable()); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	plugin := memory.NewMemoryProvider("plugin", memory.AsReadOnly())
	if err := plugin.Seed(map[string]data.Document{"start": {}}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := storage.Mount(ctx, data.MustParsePath("app/"), plugin); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if err := storage.Store(ctx, data.MustParsePath("user/alice"), data.Document{}); err != nil {
		t.Fatalf("Store inside writable prefix failed: %v", err)
	}

	err = storage.Store(ctx, data.MustParsePath("app/other"), data.Document{})
	if !errors.Is(err, data.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly outside writable prefix, got %v", err)
	}
}

func TestUnionStorage_StoreAutoCreatesParents(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	deep := data.MustParsePath("a/b/c/leaf")
	if err := storage.Store(ctx, deep, data.Document{"v": int64(1)}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	index, err := storage.List(ctx, data.MustParsePath("a/b/"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !index.HasChild("c") {
		t.Errorf("Expected intermediate index 'c', got %v", index.Children())
	}
}

func TestUnionStorage_Remove(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	path := data.MustParsePath("user/bob")
	if err := storage.Store(ctx, path, data.Document{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if err := storage.Remove(ctx, path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := storage.Lookup(ctx, path); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after removal, got %v", err)
	}

	// Removing a non-existent path
	if err := storage.Remove(ctx, data.MustParsePath("user/nobody")); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// Removing something that exists only in a read-only layer
	err := storage.Remove(ctx, data.MustParsePath("app/base"))
	if !errors.Is(err, data.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	// And it had no side effects
	if _, lookupErr := storage.Lookup(ctx, data.MustParsePath("app/base")); lookupErr != nil {
		t.Errorf("Expected app/base untouched, got %v", lookupErr)
	}
}

func TestUnionStorage_RemoveRecursive(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	for _, raw := range []string{"docs/a", "docs/sub/b", "docs/sub/c"} {
		if err := storage.Store(ctx, data.MustParsePath(raw), data.Document{}); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}

	if err := storage.Remove(ctx, data.MustParsePath("docs/")); err != nil {
		t.Fatalf("Recursive remove failed: %v", err)
	}

	for _, raw := range []string{"docs/a", "docs/sub/b"} {
		if _, err := storage.Lookup(ctx, data.MustParsePath(raw)); !errors.Is(err, data.ErrNotFound) {
			t.Errorf("Expected %s gone, got %v", raw, err)
		}
	}
}

func TestUnionStorage_HiddenAndComputedProperties(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	path := data.MustParsePath("user/carol")
	doc := data.Document{
		"name":      "Carol",
		".password": "secret",
		"_session":  "transient",
	}
	if err := storage.Store(ctx, path, doc); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// Non-privileged read omits hidden and never sees computed
	loaded, err := storage.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, exists := loaded[".password"]; exists {
		t.Error("Expected hidden property omitted from non-privileged read")
	}
	if _, exists := loaded["_session"]; exists {
		t.Error("Expected computed property absent")
	}
	if loaded["name"] != "Carol" {
		t.Errorf("Expected plain property, got %v", loaded["name"])
	}

	// Privileged read sees the persisted hidden property
	privileged, err := storage.Load(unistore.WithPrivilegedRead(ctx), path)
	if err != nil {
		t.Fatalf("Privileged load failed: %v", err)
	}
	if privileged[".password"] != "secret" {
		t.Error("Expected hidden property persisted and visible to privileged read")
	}
	if _, exists := privileged["_session"]; exists {
		t.Error("Expected computed property never persisted")
	}
}

func TestUnionStorage_ExpansionOnLoad(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	t.Setenv("UNISTORE_DB_HOST", "first.internal")

	path := data.MustParsePath("config/db")
	if err := storage.Store(ctx, path, data.Document{"url": "postgres://${env!UNISTORE_DB_HOST}/app"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	doc, err := storage.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc["url"] != "postgres://first.internal/app" {
		t.Errorf("Got %v", doc["url"])
	}

	// Expansion is applied fresh on every load, never persisted resolved
	t.Setenv("UNISTORE_DB_HOST", "second.internal")

	doc, err = storage.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc["url"] != "postgres://second.internal/app" {
		t.Errorf("Expected re-expansion, got %v", doc["url"])
	}
}

func TestUnionStorage_Query(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	if err := storage.Store(ctx, data.MustParsePath("app/mine"), data.Document{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	cursor, err := storage.Query(ctx, &provider.Query{Prefix: data.MustParsePath("app/")})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	byKey := make(map[string]*data.Metadata)
	for {
		meta, ok := cursor.Next()
		if !ok {
			break
		}
		if meta.Kind == data.KindIndex {
			continue
		}
		byKey[meta.Path.Key()] = meta
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}

	if len(byKey) != 4 {
		t.Errorf("Expected 4 objects under app/, got %d", len(byKey))
	}
	// Shadowed path reports its winning provider exactly once
	if meta := byKey["app/start"]; meta == nil || meta.ProviderID != "examplePlugin" {
		t.Errorf("Expected app/start owned by examplePlugin, got %+v", meta)
	}

	// Restarting the cursor observes later modifications
	if err := storage.Store(ctx, data.MustParsePath("app/later"), data.Document{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	cursor.Reset()

	count := 0
	for {
		meta, ok := cursor.Next()
		if !ok {
			break
		}
		if meta.Kind != data.KindIndex {
			count++
		}
	}
	if count != 5 {
		t.Errorf("Expected restarted cursor to see 5 objects, got %d", count)
	}
}

func TestUnionStorage_QuerySuffixFilter(t *testing.T) {
	ctx := t.Context()
	storage := newLayeredStorage(t)

	for _, raw := range []string{"lib/util.js", "lib/main.js", "lib/readme.md"} {
		if err := storage.Store(ctx, data.MustParsePath(raw), data.Document{}); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}

	cursor, err := storage.Query(ctx, &provider.Query{
		Prefix:     data.MustParsePath("lib/"),
		NameSuffix: ".js",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	metas, err := cursor.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("Expected 2 matches, got %d", len(metas))
	}
}

func TestUnionStorage_MountLifecycle(t *testing.T) {
	ctx := t.Context()

	storage, err := unistore.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer storage.Close(ctx)

	local := memory.NewMemoryProvider("local")
	if err := storage.Mount(ctx, data.RootPath(), local, unistore.AsWritable()); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	// Duplicate provider ID
	err = storage.Mount(ctx, data.RootPath(), memory.NewMemoryProvider("local"))
	if !errors.Is(err, data.ErrAlreadyMounted) {
		t.Errorf("Expected ErrAlreadyMounted, got %v", err)
	}

	// Second writable layer
	err = storage.Mount(ctx, data.RootPath(), memory.NewMemoryProvider("other"), unistore.AsWritable())
	if !errors.Is(err, data.ErrAlreadyMounted) {
		t.Errorf("Expected ErrAlreadyMounted for second writable, got %v", err)
	}

	plugin := memory.NewMemoryProvider("plugin", memory.AsReadOnly())
	if err := plugin.Seed(map[string]data.Document{"ext/tool": {}}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := storage.Mount(ctx, data.RootPath(), plugin); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if _, err := storage.Lookup(ctx, data.MustParsePath("ext/tool")); err != nil {
		t.Fatalf("Expected plugin content visible, got %v", err)
	}

	if err := storage.Unmount(ctx, "plugin"); err != nil {
		t.Fatalf("Unmount failed: %v", err)
	}
	if _, err := storage.Lookup(ctx, data.MustParsePath("ext/tool")); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected plugin content gone after unmount, got %v", err)
	}

	if err := storage.Unmount(ctx, "plugin"); !errors.Is(err, data.ErrNotMounted) {
		t.Errorf("Expected ErrNotMounted, got %v", err)
	}
}

func TestUnionStorage_MountPointsAppearInListings(t *testing.T) {
	ctx := t.Context()

	storage, err := unistore.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer storage.Close(ctx)

	local := memory.NewMemoryProvider("local")
	if err := storage.Mount(ctx, data.RootPath(), local, unistore.AsWritable()); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	plugin := memory.NewMemoryProvider("plugin", memory.AsReadOnly())
	if err := plugin.Seed(map[string]data.Document{"tool": {}}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := storage.Mount(ctx, data.MustParsePath("app/ext/"), plugin); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	index, err := storage.List(ctx, data.RootPath())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !index.HasChild("app") {
		t.Errorf("Expected mount point visible as child, got %v", index.Children())
	}

	index, err = storage.List(ctx, data.MustParsePath("app/ext/"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !index.HasObject("tool") {
		t.Errorf("Expected mounted content listed, got %v", index.Objects())
	}
}

func TestUnionStorage_ConcurrentMountAndLookup(t *testing.T) {
	ctx := t.Context()

	storage, err := unistore.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer storage.Close(ctx)

	local := memory.NewMemoryProvider("local")
	if err := storage.Mount(ctx, data.RootPath(), local, unistore.AsWritable()); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if err := storage.Store(ctx, data.MustParsePath("app/config"), data.Document{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup

	// Readers resolve through the mount table while it churns. A mounted
	// provider is either fully visible or absent, so the stable path
	// must resolve on every iteration.
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				if _, err := storage.Lookup(ctx, data.MustParsePath("app/config")); err != nil {
					t.Errorf("Lookup failed during mount churn: %v", err)
					return
				}
				if _, err := storage.List(ctx, data.MustParsePath("app/")); err != nil {
					t.Errorf("List failed during mount churn: %v", err)
					return
				}
			}
		}()
	}

	for n := 0; n < 50; n++ {
		plugin := memory.NewMemoryProvider("plugin", memory.AsReadOnly())
		if err := plugin.Seed(map[string]data.Document{"app/extra": {}}); err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		if err := storage.Mount(ctx, data.RootPath(), plugin); err != nil {
			t.Fatalf("Mount failed: %v", err)
		}
		if err := storage.Unmount(ctx, "plugin"); err != nil {
			t.Fatalf("Unmount failed: %v", err)
		}
	}

	close(done)
	wg.Wait()
}

func TestUnionStorage_Closed(t *testing.T) {
	ctx := t.Context()

	storage, err := unistore.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := storage.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := storage.Lookup(ctx, data.MustParsePath("x")); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := storage.Close(ctx); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed on double close, got %v", err)
	}
}
