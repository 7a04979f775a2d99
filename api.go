package entcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/entcache/codec"
	gen "github.com/unkn0wn-root/entcache/genstore"
	pr "github.com/unkn0wn-root/entcache/provider"
)

type SetCostFunc func(storageKey string, raw []byte, isQuery bool) int64

// Store is the process-wide entity cache. It is an explicit service handed
// to every reconciler and view instead of an ambient singleton.
//
// Writers take turns on one store-wide lock; readers never observe a
// half-applied replace, patch or eviction.
type Store interface {
	Enabled() bool
	Close(context.Context) error

	// Entities
	Read(ctx context.Context, ref Ref) (Snapshot, bool, error)
	SnapshotGen(ref Ref) uint64
	WriteWithGen(ctx context.Context, ref Ref, snap Snapshot, observedGen uint64, ttl time.Duration) error
	Replace(ctx context.Context, ref Ref, snap Snapshot) error
	Patch(ctx context.Context, ref Ref, fields Snapshot) (bool, error)
	Evict(ctx context.Context, ref Ref) error

	// Subscriptions. fn runs after the change is visible to readers.
	Watch(ref Ref, fn func(Event)) (cancel func())

	// Named list queries
	ReadQuery(ctx context.Context, q QueryKey) ([]Ref, bool, error)
	QueryGen(name string) uint64
	WriteQuery(ctx context.Context, q QueryKey, refs []Ref, observedQueryGen uint64) error
	InvalidateQueries(ctx context.Context, names ...string) error
	Query(ctx context.Context, q QueryKey, load Loader) ([]Snapshot, error)
}

// Options tune the store. Namespace, Provider and Codec are required.
type Options struct {
	Namespace string // e.g. "console:prod"
	Provider  pr.Provider
	Codec     c.Codec[map[string]any]

	Logger          Logger        // nil => NopLogger
	Hooks           Hooks         // nil => NopHooks
	EntityTTL       time.Duration // 0 => 10m
	QueryTTL        time.Duration // 0 => 5m
	CleanupInterval time.Duration // local genstore sweep; 0 => 1h
	GenRetention    time.Duration // 0 => 30d
	Disabled        bool
	ComputeSetCost  SetCostFunc  // default 1
	GenStore        gen.GenStore // nil => LocalGenStore
}

func New(opts Options) (Store, error) {
	return newStore(opts)
}
