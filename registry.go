package unistore

import (
	"context"
	"sync"

	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/log"
	"github.com/mwantia/unistore/provider"
)

// TypeDescriptor is the stored form of one registered type. Descriptors
// are ordinary documents under the reserved types sub-tree; the registry
// that types objects is itself stored in the tree it serves.
type TypeDescriptor struct {
	Name       string
	Handler    string
	Properties data.Document
}

// TypeRegistry maps declared type names to native handlers. Handler
// factories register in code; the name-to-handler binding comes from the
// descriptor documents at Populate time.
type TypeRegistry struct {
	mu sync.RWMutex

	handlers map[string]TypeHandler
	types    map[string]*TypeDescriptor
	ready    bool
	logger   *log.Logger
}

func NewTypeRegistry(logger *log.Logger) *TypeRegistry {
	if logger == nil {
		logger = log.Discard()
	}

	return &TypeRegistry{
		handlers: make(map[string]TypeHandler),
		types:    make(map[string]*TypeDescriptor),
		logger:   logger,
	}
}

// RegisterHandler binds a native handler factory to a name referenced by
// descriptor documents.
func (tr *TypeRegistry) RegisterHandler(name string, handler TypeHandler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.handlers[name] = handler
}

// Ready reports whether Populate has run; before that every load is
// untyped.
func (tr *TypeRegistry) Ready() bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.ready
}

// Descriptor returns the stored descriptor for a type name.
func (tr *TypeRegistry) Descriptor(name string) (*TypeDescriptor, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	descriptor, exists := tr.types[name]
	return descriptor, exists
}

// HandlerFor resolves a declared type name to its native handler. Types
// without a descriptor, or descriptors naming an unregistered handler,
// report false and fall back to untyped handling.
func (tr *TypeRegistry) HandlerFor(typeName string) (TypeHandler, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	if !tr.ready || typeName == "" {
		return nil, false
	}

	descriptor, exists := tr.types[typeName]
	if !exists {
		return nil, false
	}

	handler, exists := tr.handlers[descriptor.Handler]
	return handler, exists
}

// populate builds the registry from the descriptor sub-tree. Loads run raw
// through the storage (phase one of the two-phase init), so bootstrapping
// never depends on typed materialization.
func (tr *TypeRegistry) populate(ctx context.Context, storage *UnionStorage, prefix data.Path) error {
	kind := data.KindObject
	cursor, err := storage.Query(ctx, &provider.Query{Prefix: prefix, Kind: &kind})
	if err != nil {
		return err
	}

	types := make(map[string]*TypeDescriptor)
	for {
		meta, ok := cursor.Next()
		if !ok {
			break
		}

		doc, err := storage.loadRaw(ctx, meta.Path)
		if err != nil {
			tr.logger.Warn("skipping unreadable type descriptor '%s': %v", meta.Path, err)
			continue
		}

		descriptor := descriptorFromDocument(meta.Path.LastName(), doc)
		if descriptor.Handler == "" {
			tr.logger.Warn("type descriptor '%s' names no handler, skipping", meta.Path)
			continue
		}
		types[descriptor.Name] = descriptor
	}
	if err := cursor.Err(); err != nil {
		return err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.types = types
	tr.ready = true
	tr.logger.Info("type registry populated with %d descriptors", len(types))

	return nil
}

func descriptorFromDocument(name string, doc data.Document) *TypeDescriptor {
	descriptor := &TypeDescriptor{Name: name}

	if raw, exists := doc["name"]; exists {
		if value, ok := raw.(string); ok && value != "" {
			descriptor.Name = value
		}
	}
	if raw, exists := doc["handler"]; exists {
		if value, ok := raw.(string); ok {
			descriptor.Handler = value
		}
	}
	if raw, exists := doc["properties"]; exists {
		if value, ok := raw.(data.Document); ok {
			descriptor.Properties = value
		}
	}

	return descriptor
}
