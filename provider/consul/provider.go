package consul

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
)

// ConsulProvider exposes a HashiCorp Consul KV sub-tree as a read-only
// content layer.
//
// Architecture:
// - Every KV entry below the configured prefix appears as an object
// - Directory structure derives from "/" separators in the KV keys
// - Store and Remove always fail with data.ErrReadOnly; the tree is owned
//   by whoever writes Consul, not by this process
//
// Consul exposes no wall-clock modification time; ModifyIndex is monotonic
// per key, which is all the object cache needs to detect change.
//
// Limitations:
// - Consul KV has a 512KB limit per value
// - Best suited for configuration documents and small assets
type ConsulProvider struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV

	id     string
	config *ConsulProviderConfig
}

// ConsulProviderConfig contains configuration options for the Consul
// provider.
type ConsulProviderConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Prefix below which all keys live (default: "")
	Prefix string
}

func NewConsulProvider(id string, config *ConsulProviderConfig) (*ConsulProvider, error) {
	if config == nil {
		config = &ConsulProviderConfig{}
	}

	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulProvider{
		id:     id,
		client: client,
		kv:     client.KV(),
		config: config,
	}, nil
}

func (cp *ConsulProvider) ID() string {
	return cp.id
}

// Open verifies the Consul agent is reachable.
func (cp *ConsulProvider) Open(ctx context.Context) error {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	if _, err := cp.client.Status().Leader(); err != nil {
		return fmt.Errorf("%w: %v", data.ErrMountFailed, err)
	}

	return nil
}

func (cp *ConsulProvider) Close(ctx context.Context) error {
	return nil
}

func (cp *ConsulProvider) Lookup(ctx context.Context, path data.Path) (*data.Metadata, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	key := cp.key(path)

	if !path.IsIndex() {
		pair, _, err := cp.kv.Get(key, queryOpts(ctx))
		if err != nil {
			return nil, err
		}
		if pair == nil {
			return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
		}

		return data.NewMetadata(path, cp.id, data.KindObject, indexTime(pair.ModifyIndex)), nil
	}

	keys, _, err := cp.kv.Keys(key+"/", "/", queryOpts(ctx))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 && !path.IsRoot() {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	return data.NewMetadata(path, cp.id, data.KindIndex, time.Time{}), nil
}

func (cp *ConsulProvider) LoadDocument(ctx context.Context, path data.Path) (data.Document, *data.Metadata, error) {
	raw, meta, err := cp.LoadBinary(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	doc, err := data.DecodeDocument(raw)
	if err != nil {
		return nil, nil, err
	}

	meta.Kind = data.KindObject
	return doc, meta, nil
}

func (cp *ConsulProvider) LoadBinary(ctx context.Context, path data.Path) ([]byte, *data.Metadata, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	pair, _, err := cp.kv.Get(cp.key(path), queryOpts(ctx))
	if err != nil {
		return nil, nil, err
	}
	if pair == nil {
		return nil, nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	return pair.Value, data.NewMetadata(path, cp.id, data.KindBinary, indexTime(pair.ModifyIndex)), nil
}

func (cp *ConsulProvider) Store(ctx context.Context, path data.Path, doc data.Document) error {
	return fmt.Errorf("%w: %s", data.ErrReadOnly, cp.id)
}

func (cp *ConsulProvider) StoreBinary(ctx context.Context, path data.Path, raw []byte) error {
	return fmt.Errorf("%w: %s", data.ErrReadOnly, cp.id)
}

func (cp *ConsulProvider) Remove(ctx context.Context, path data.Path) error {
	return fmt.Errorf("%w: %s", data.ErrReadOnly, cp.id)
}

func (cp *ConsulProvider) List(ctx context.Context, path data.Path) (*data.Index, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	prefix := cp.key(path)
	if prefix != "" {
		prefix += "/"
	}

	keys, _, err := cp.kv.Keys(prefix, "/", queryOpts(ctx))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 && !path.IsRoot() {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	index := data.NewIndex()
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		if rest == "" {
			continue
		}
		if strings.HasSuffix(rest, "/") {
			index.AddChild(strings.TrimSuffix(rest, "/"))
		} else {
			index.AddObject(rest)
		}
	}

	return index, nil
}

func (cp *ConsulProvider) Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error) {
	return provider.NewCursor(func() ([]*data.Metadata, error) {
		cp.mu.RLock()
		defer cp.mu.RUnlock()

		prefix := cp.key(query.Prefix)
		if prefix != "" {
			prefix += "/"
		}

		pairs, _, err := cp.kv.List(prefix, queryOpts(ctx))
		if err != nil {
			return nil, err
		}

		var metas []*data.Metadata
		for _, pair := range pairs {
			rest := strings.TrimPrefix(pair.Key, cp.config.Prefix)
			path, err := data.ParsePath(rest)
			if err != nil || path.IsIndex() {
				continue
			}

			meta := data.NewMetadata(path, cp.id, data.KindObject, indexTime(pair.ModifyIndex))
			if query.Matches(meta) {
				metas = append(metas, meta)
			}
		}
		return metas, nil
	}), nil
}

// key maps a relative tree path onto the configured KV prefix.
func (cp *ConsulProvider) key(path data.Path) string {
	joined := strings.TrimSuffix(strings.TrimPrefix(path.String(), "/"), "/")
	if cp.config.Prefix == "" {
		return joined
	}
	if joined == "" {
		return strings.TrimSuffix(cp.config.Prefix, "/")
	}
	return strings.TrimSuffix(cp.config.Prefix, "/") + "/" + joined
}

func queryOpts(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{}).WithContext(ctx)
}

func indexTime(modifyIndex uint64) time.Time {
	return time.Unix(0, int64(modifyIndex))
}
