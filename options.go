package unistore

import (
	"time"

	"github.com/mwantia/unistore/expand"
	"github.com/mwantia/unistore/log"
)

// MountOptions configure one mount entry. Exactly one mount may be
// writable; the platform layer is always resolved last regardless of
// priority.
type MountOptions struct {
	Priority int  // Resolution priority, higher wins (default 0)
	ReadOnly bool // Whether writes into this mount are rejected
	Platform bool // Whether this is the base layer, searched last
}

type MountOption func(*MountOptions) error

func newDefaultMountOptions() *MountOptions {
	return &MountOptions{
		Priority: 0,
		ReadOnly: true,
		Platform: false,
	}
}

// WithPriority sets the shadowing priority for this mount.
func WithPriority(priority int) MountOption {
	return func(mo *MountOptions) error {
		mo.Priority = priority
		return nil
	}
}

// AsWritable marks this mount as the single read-write layer. It is always
// searched first for object resolution.
func AsWritable() MountOption {
	return func(mo *MountOptions) error {
		mo.ReadOnly = false
		return nil
	}
}

// AsPlatform marks this mount as the base layer, always searched last.
func AsPlatform() MountOption {
	return func(mo *MountOptions) error {
		mo.Platform = true
		mo.ReadOnly = true
		return nil
	}
}

// StorageOptions configure a UnionStorage.
type StorageOptions struct {
	Logger        *log.Logger
	Expander      *expand.Registry
	SweepInterval time.Duration
	TypesPrefix   string
}

type StorageOption func(*StorageOptions) error

func newDefaultStorageOptions() *StorageOptions {
	return &StorageOptions{
		SweepInterval: 30 * time.Second,
		TypesPrefix:   "system/types/",
	}
}

// WithLogger wires a logger; without one everything is discarded.
func WithLogger(logger *log.Logger) StorageOption {
	return func(so *StorageOptions) error {
		so.Logger = logger
		return nil
	}
}

// WithExpander replaces the default vault registry (env and props vaults).
func WithExpander(registry *expand.Registry) StorageOption {
	return func(so *StorageOptions) error {
		so.Expander = registry
		return nil
	}
}

// WithSweepInterval changes how often the cache asks live instances
// whether they are still active.
func WithSweepInterval(interval time.Duration) StorageOption {
	return func(so *StorageOptions) error {
		so.SweepInterval = interval
		return nil
	}
}

// WithTypesPrefix relocates the reserved sub-tree holding type
// descriptors.
func WithTypesPrefix(prefix string) StorageOption {
	return func(so *StorageOptions) error {
		so.TypesPrefix = prefix
		return nil
	}
}
