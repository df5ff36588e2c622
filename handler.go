package unistore

import (
	"context"
	"sync"
	"time"

	"github.com/mwantia/unistore/data"
)

// Instance is one live object materialized from a document. Instances are
// owned by the object cache and torn down when the sweep finds them
// inactive.
type Instance interface {
	// Active reports whether the instance should survive the next
	// eviction sweep. Typical implementations check open resources or
	// recent use.
	Active() bool

	// Release tears the instance down. Called exactly once, either on
	// eviction, on replacement after the source document changed, or on
	// storage shutdown.
	Release(ctx context.Context) error
}

// Touchable is implemented by instances that track their own recent-use
// activity. The cache calls Touch every time a handle is acquired.
type Touchable interface {
	Touch()
}

// TypeHandler constructs live instances for one declared type. Handlers
// are native code registered by name; the mapping from type descriptor to
// handler lives in documents under the reserved types sub-tree.
type TypeHandler interface {
	Construct(ctx context.Context, path data.Path, doc data.Document) (Instance, error)
}

// TypeHandlerFunc adapts a plain function to the TypeHandler interface.
type TypeHandlerFunc func(ctx context.Context, path data.Path, doc data.Document) (Instance, error)

func (f TypeHandlerFunc) Construct(ctx context.Context, path data.Path, doc data.Document) (Instance, error) {
	return f(ctx, path, doc)
}

// documentIdleTTL is how long an untyped instance counts as active after
// its last use.
const documentIdleTTL = time.Minute

// DocumentInstance is the untyped fallback: a document with no registered
// type descriptor materializes into this instead of failing. Activity is
// recency of use.
type DocumentInstance struct {
	mu        sync.RWMutex
	path      data.Path
	doc       data.Document
	lastTouch time.Time
}

func NewDocumentInstance(path data.Path, doc data.Document) *DocumentInstance {
	return &DocumentInstance{
		path:      path,
		doc:       doc,
		lastTouch: time.Now(),
	}
}

func (di *DocumentInstance) Path() data.Path {
	return di.path
}

// Document returns the materialized document and counts as use.
func (di *DocumentInstance) Document() data.Document {
	di.Touch()

	di.mu.RLock()
	defer di.mu.RUnlock()
	return di.doc
}

func (di *DocumentInstance) Touch() {
	di.mu.Lock()
	defer di.mu.Unlock()
	di.lastTouch = time.Now()
}

func (di *DocumentInstance) Active() bool {
	di.mu.RLock()
	defer di.mu.RUnlock()
	return time.Since(di.lastTouch) < documentIdleTTL
}

func (di *DocumentInstance) Release(ctx context.Context) error {
	return nil
}
