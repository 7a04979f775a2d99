// Package genstore keeps the generation counters entcache validates entries
// against. An entity or query name that was never bumped is at generation 0.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// LocalGenStore (default) is per process; RedisGenStore is shared.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes counters idle for longer than retention and reports
	// how many were removed (always 0 for stores with native expiry).
	Cleanup(retention time.Duration) int
	Close(context.Context) error
}
