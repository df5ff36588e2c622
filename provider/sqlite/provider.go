package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
	"github.com/tidwall/btree"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SqliteProvider is the persistent content source backing the read-write
// layer, built on a two-layer architecture:
//
// Layer 1: In-memory B-tree mirroring entry metadata for fast routing-key
// lookups and ordered prefix scans (listings, queries).
// Layer 2: SQLite for durable metadata and content.
//
// Mutations write SQLite first and update the B-tree only on success, so a
// failed write never leaves a phantom entry.
type SqliteProvider struct {
	mu sync.RWMutex

	id string
	db *sql.DB

	// In-memory B-tree mirror for fast key lookups
	keys *btree.Map[string, *sqliteRecord]
}

type sqliteRecord struct {
	id      string
	path    data.Path
	kind    data.Kind
	modTime time.Time
}

// NewSqliteProvider creates a new SQLite-backed provider. The dbPath can be
// ":memory:" for an in-memory database or a file path.
func NewSqliteProvider(id string, dbPath string) (*SqliteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	sp := &SqliteProvider{
		id:   id,
		db:   db,
		keys: btree.NewMap[string, *sqliteRecord](0),
	}

	if err := sp.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return sp, nil
}

func (sp *SqliteProvider) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS store_entries (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		display TEXT NOT NULL,
		kind INTEGER NOT NULL,
		content BLOB,
		modify_time INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_store_entries_key ON store_entries(key);
	`

	_, err := sp.db.Exec(schema)
	return err
}

func (sp *SqliteProvider) ID() string {
	return sp.id
}

// Open loads the B-tree mirror from the entries table.
func (sp *SqliteProvider) Open(ctx context.Context) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	rows, err := sp.db.QueryContext(ctx, `SELECT id, key, display, kind, modify_time FROM store_entries`)
	if err != nil {
		return fmt.Errorf("%w: %v", data.ErrMountFailed, err)
	}
	defer rows.Close()

	sp.keys.Clear()
	for rows.Next() {
		var id, key, display string
		var kind int
		var modTime int64
		if err := rows.Scan(&id, &key, &display, &kind, &modTime); err != nil {
			return err
		}

		path, err := data.ParsePath(display)
		if err != nil {
			return err
		}

		sp.keys.Set(key, &sqliteRecord{
			id:      id,
			path:    path,
			kind:    data.Kind(kind),
			modTime: time.Unix(0, modTime),
		})
	}

	return rows.Err()
}

func (sp *SqliteProvider) Close(ctx context.Context) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.keys.Clear()
	return sp.db.Close()
}

func (sp *SqliteProvider) Lookup(ctx context.Context, path data.Path) (*data.Metadata, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	record, exists := sp.keys.Get(path.Key())
	if !exists || path.IsIndex() != (record.kind == data.KindIndex) {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	return data.NewMetadata(record.path, sp.id, record.kind, record.modTime), nil
}

func (sp *SqliteProvider) LoadDocument(ctx context.Context, path data.Path) (data.Document, *data.Metadata, error) {
	content, meta, err := sp.loadContent(ctx, path, data.KindObject)
	if err != nil {
		return nil, nil, err
	}

	doc, err := data.DecodeDocument(content)
	if err != nil {
		return nil, nil, err
	}

	return doc, meta, nil
}

func (sp *SqliteProvider) LoadBinary(ctx context.Context, path data.Path) ([]byte, *data.Metadata, error) {
	return sp.loadContent(ctx, path, data.KindBinary)
}

func (sp *SqliteProvider) loadContent(ctx context.Context, path data.Path, kind data.Kind) ([]byte, *data.Metadata, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	record, exists := sp.keys.Get(path.Key())
	if !exists || record.kind != kind {
		return nil, nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	var content []byte
	row := sp.db.QueryRowContext(ctx, `SELECT content FROM store_entries WHERE id = ?`, record.id)
	if err := row.Scan(&content); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
		}
		return nil, nil, err
	}

	return content, data.NewMetadata(record.path, sp.id, record.kind, record.modTime), nil
}

func (sp *SqliteProvider) Store(ctx context.Context, path data.Path, doc data.Document) error {
	content, err := data.EncodeDocument(doc)
	if err != nil {
		return err
	}
	return sp.store(ctx, path, data.KindObject, content)
}

func (sp *SqliteProvider) StoreBinary(ctx context.Context, path data.Path, raw []byte) error {
	return sp.store(ctx, path, data.KindBinary, raw)
}

func (sp *SqliteProvider) store(ctx context.Context, path data.Path, kind data.Kind, content []byte) error {
	if path.IsIndex() {
		return fmt.Errorf("%w: %s is an index position", data.ErrReadOnly, path)
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	now := time.Now()

	tx, err := sp.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Auto-create missing parent index nodes
	type pending struct {
		record *sqliteRecord
		key    string
	}
	var created []pending

	for parent := path.Parent(); !parent.IsRoot(); parent = parent.Parent() {
		key := parent.Key()
		if _, exists := sp.keys.Get(key); exists {
			break
		}

		record := &sqliteRecord{
			id:      newRecordID(),
			path:    parent,
			kind:    data.KindIndex,
			modTime: now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO store_entries (id, key, display, kind, content, modify_time) VALUES (?, ?, ?, ?, NULL, ?)`,
			record.id, key, parent.String(), int(data.KindIndex), now.UnixNano()); err != nil {
			return err
		}
		created = append(created, pending{record: record, key: key})
	}

	key := path.Key()
	record := &sqliteRecord{
		id:      newRecordID(),
		path:    path,
		kind:    kind,
		modTime: now,
	}

	if prior, exists := sp.keys.Get(key); exists {
		record.id = prior.id
		if _, err := tx.ExecContext(ctx,
			`UPDATE store_entries SET display = ?, kind = ?, content = ?, modify_time = ? WHERE id = ?`,
			path.String(), int(kind), content, now.UnixNano(), record.id); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO store_entries (id, key, display, kind, content, modify_time) VALUES (?, ?, ?, ?, ?, ?)`,
			record.id, key, path.String(), int(kind), content, now.UnixNano()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, p := range created {
		sp.keys.Set(p.key, p.record)
	}
	sp.keys.Set(key, record)

	return nil
}

func (sp *SqliteProvider) Remove(ctx context.Context, path data.Path) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	key := path.Key()
	record, exists := sp.keys.Get(key)
	if !exists {
		return fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	doomed := []string{key}
	if record.kind == data.KindIndex {
		prefix := key + "/"
		sp.keys.Ascend(prefix, func(k string, _ *sqliteRecord) bool {
			if !strings.HasPrefix(k, prefix) {
				return false
			}
			doomed = append(doomed, k)
			return true
		})
	}

	tx, err := sp.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, k := range doomed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM store_entries WHERE key = ?`, k); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, k := range doomed {
		sp.keys.Delete(k)
	}

	return nil
}

func (sp *SqliteProvider) List(ctx context.Context, path data.Path) (*data.Index, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	if !path.IsRoot() {
		record, exists := sp.keys.Get(path.Key())
		if !exists || record.kind != data.KindIndex {
			return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
		}
	}

	index := data.NewIndex()
	depth := path.Depth()

	sp.ascend(path, func(record *sqliteRecord) bool {
		if record.path.Depth() != depth+1 {
			return true
		}
		if record.kind == data.KindIndex {
			index.AddChild(record.path.LastName())
		} else {
			index.AddObject(record.path.LastName())
		}
		return true
	})

	return index, nil
}

func (sp *SqliteProvider) Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error) {
	return provider.NewCursor(func() ([]*data.Metadata, error) {
		sp.mu.RLock()
		defer sp.mu.RUnlock()

		var metas []*data.Metadata
		sp.ascend(query.Prefix, func(record *sqliteRecord) bool {
			meta := data.NewMetadata(record.path, sp.id, record.kind, record.modTime)
			if query.Matches(meta) {
				metas = append(metas, meta)
			}
			return true
		})
		return metas, nil
	}), nil
}

// ascend walks every record strictly below the index position, in key
// order. Must be called with lock held.
func (sp *SqliteProvider) ascend(path data.Path, visit func(*sqliteRecord) bool) {
	prefix := path.Key()
	if prefix != "" {
		prefix += "/"
	}

	sp.keys.Ascend(prefix, func(key string, record *sqliteRecord) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		return visit(record)
	})
}

func newRecordID() string {
	return uuid.Must(uuid.NewV7()).String()
}
