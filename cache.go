package unistore

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/log"
)

const cacheShardCount = 32

// objectCache owns every materialized live instance, keyed by routing key.
// State is split across fixed shards so unrelated paths never contend on
// one lock; creation, replacement and eviction of one path all serialize
// through its shard, which is the coordination point that keeps a first
// load from racing the sweep.
type objectCache struct {
	shards [cacheShardCount]cacheShard

	interval time.Duration
	logger   *log.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	key      string
	instance Instance
	modTime  time.Time

	// broken marks a failed construction; the path stays unavailable
	// until its source document changes.
	broken    bool
	brokenErr error

	inUse   int
	removed bool
}

func newObjectCache(interval time.Duration, logger *log.Logger) *objectCache {
	cache := &objectCache{
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for n := range cache.shards {
		cache.shards[n].entries = make(map[string]*cacheEntry)
	}

	go cache.sweepLoop()

	return cache
}

// Handle pins one live instance against eviction. Callers must Close it
// when done; the instance stays valid until then even if evicted from the
// cache meanwhile.
type Handle struct {
	cache *objectCache
	entry *cacheEntry
	once  sync.Once
}

// Instance returns the pinned live instance.
func (h *Handle) Instance() Instance {
	return h.entry.instance
}

// Close releases the pin. If the entry was evicted while in use, the last
// pin performs the deferred teardown.
func (h *Handle) Close() error {
	h.once.Do(func() {
		shard := h.cache.shard(h.entry.key)

		shard.mu.Lock()
		h.entry.inUse--
		teardown := h.entry.removed && h.entry.inUse == 0
		shard.mu.Unlock()

		if teardown {
			h.cache.release(h.entry)
		}
	})
	return nil
}

// acquire returns the live instance for key, constructing or replacing it
// under the shard lock when needed. modTime is the source document's
// modification time; reference stability holds while it is unchanged.
func (c *objectCache) acquire(ctx context.Context, key string, modTime time.Time, construct func(ctx context.Context) (Instance, error)) (*Handle, error) {
	shard := c.shard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.entries[key]
	if exists && entry.modTime.Equal(modTime) {
		if entry.broken {
			return nil, entry.brokenErr
		}

		entry.inUse++
		if t, ok := entry.instance.(Touchable); ok {
			t.Touch()
		}
		return &Handle{cache: c, entry: entry}, nil
	}

	// Replacement: tear the stale instance down once nothing pins it
	if exists {
		entry.removed = true
		delete(shard.entries, key)
		if !entry.broken && entry.inUse == 0 {
			defer c.release(entry)
		}
	}

	instance, err := construct(ctx)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s: %v", data.ErrInitialization, key, err)
		c.logger.Error("materialization of '%s' failed: %v", key, err)

		shard.entries[key] = &cacheEntry{
			key:       key,
			modTime:   modTime,
			broken:    true,
			brokenErr: wrapped,
		}
		return nil, wrapped
	}

	entry = &cacheEntry{
		key:      key,
		instance: instance,
		modTime:  modTime,
		inUse:    1,
	}
	shard.entries[key] = entry

	return &Handle{cache: c, entry: entry}, nil
}

// invalidate drops the cached entry for one key, if any.
func (c *objectCache) invalidate(key string) {
	shard := c.shard(key)

	shard.mu.Lock()
	entry, exists := shard.entries[key]
	if exists {
		entry.removed = true
		delete(shard.entries, key)
	}
	teardown := exists && !entry.broken && entry.inUse == 0
	shard.mu.Unlock()

	if teardown {
		c.release(entry)
	}
}

// invalidatePrefix drops every cached entry at or below an index position.
func (c *objectCache) invalidatePrefix(prefix string) {
	var doomed []*cacheEntry

	for n := range c.shards {
		shard := &c.shards[n]

		shard.mu.Lock()
		for key, entry := range shard.entries {
			if key != prefix && (prefix != "" && !strings.HasPrefix(key, prefix+"/")) {
				continue
			}
			entry.removed = true
			delete(shard.entries, key)
			if !entry.broken && entry.inUse == 0 {
				doomed = append(doomed, entry)
			}
		}
		shard.mu.Unlock()
	}

	for _, entry := range doomed {
		c.release(entry)
	}
}

func (c *objectCache) sweepLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts every unpinned instance whose handler reports inactivity.
// Broken entries stay; they clear when their source document changes.
func (c *objectCache) sweep() {
	var doomed []*cacheEntry

	for n := range c.shards {
		shard := &c.shards[n]

		shard.mu.Lock()
		for key, entry := range shard.entries {
			if entry.broken || entry.inUse > 0 {
				continue
			}
			if entry.instance.Active() {
				continue
			}

			entry.removed = true
			delete(shard.entries, key)
			doomed = append(doomed, entry)
		}
		shard.mu.Unlock()
	}

	for _, entry := range doomed {
		c.logger.Debug("evicting inactive instance '%s'", entry.key)
		c.release(entry)
	}
}

// close stops the sweeper and tears down every remaining instance.
// Entries still pinned by an open handle are only marked removed; the last
// Handle.Close performs their deferred teardown, so Release runs exactly
// once per instance.
func (c *objectCache) close(ctx context.Context) error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done

	errs := data.Errors{}
	for n := range c.shards {
		shard := &c.shards[n]

		shard.mu.Lock()
		entries := make([]*cacheEntry, 0, len(shard.entries))
		for key, entry := range shard.entries {
			entry.removed = true
			delete(shard.entries, key)
			if !entry.broken && entry.inUse == 0 {
				entries = append(entries, entry)
			}
		}
		shard.mu.Unlock()

		for _, entry := range entries {
			errs.Add(entry.instance.Release(ctx))
		}
	}

	return errs.Errors()
}

func (c *objectCache) release(entry *cacheEntry) {
	if err := entry.instance.Release(context.Background()); err != nil {
		c.logger.Warn("teardown of '%s' failed: %v", entry.key, err)
	}
}

func (c *objectCache) shard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return &c.shards[hash.Sum32()%cacheShardCount]
}
