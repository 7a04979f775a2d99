package entcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/entcache/codec"
	gen "github.com/unkn0wn-root/entcache/genstore"
	"github.com/unkn0wn-root/entcache/internal/wire"
	pr "github.com/unkn0wn-root/entcache/provider"
)

type store struct {
	ns             string
	provider       pr.Provider
	codec          c.Codec[map[string]any]
	log            Logger
	hooks          Hooks
	enabled        bool
	entityTTL      time.Duration
	queryTTL       time.Duration
	computeSetCost SetCostFunc
	gen            gen.GenStore

	// single-writer turn: replace/patch/evict hold mu; reads share it
	mu       sync.RWMutex
	watchers *watchers
	flight   singleflight.Group

	// eviction fences for list loads in flight, all guarded by mu:
	// evictSeq counts evictions, evictedAt holds the sequence of the last
	// eviction per storage key while some load that started earlier is
	// still running, loads counts running loads per starting sequence.
	evictSeq  uint64
	evictedAt map[string]uint64
	loads     map[uint64]int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newStore(opts Options) (*store, error) {
	if opts.Provider == nil {
		return nil, ErrProviderRequired
	}
	if opts.Codec == nil {
		return nil, ErrCodecRequired
	}
	if opts.Namespace == "" {
		return nil, ErrNamespaceRequired
	}

	s := &store{
		ns:        opts.Namespace,
		provider:  opts.Provider,
		codec:     opts.Codec,
		enabled:   !opts.Disabled,
		watchers:  newWatchers(),
		evictedAt: make(map[string]uint64),
		loads:     make(map[uint64]int),
	}

	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.entityTTL = coalesce(opts.EntityTTL, defaultEntityTTL)
	s.queryTTL = coalesce(opts.QueryTTL, defaultQueryTTL)

	if opts.ComputeSetCost != nil {
		s.computeSetCost = opts.ComputeSetCost
	} else {
		s.computeSetCost = func(string, []byte, bool) int64 { return 1 }
	}

	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		s.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}
	return s, nil
}

func (s *store) Enabled() bool { return s.enabled }

// Close releases the genstore and provider. Every later operation fails
// with ErrClosed.
func (s *store) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.gen != nil {
			_ = s.gen.Close(ctx)
		}
		s.closeErr = s.provider.Close(ctx)
	})
	return s.closeErr
}

func (s *store) Read(ctx context.Context, ref Ref) (Snapshot, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	if !s.enabled {
		return nil, false, nil
	}
	if !ref.Valid() {
		return nil, false, ErrInvalidRef
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLocked(ctx, ref)
}

func (s *store) readLocked(ctx context.Context, ref Ref) (Snapshot, bool, error) {
	k := s.entityKey(ref)
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	g, payload, err := wire.DecodeEntity(raw)
	if err != nil {
		s.heal(ctx, k, "corrupt")
		return nil, false, nil
	}
	if g != s.snapshotGen(ctx, k) {
		s.heal(ctx, k, "gen_mismatch")
		return nil, false, nil
	}
	v, err := s.codec.Decode(payload)
	if err != nil {
		s.heal(ctx, k, "value_decode")
		return nil, false, nil
	}
	return Snapshot(v), true, nil
}

func (s *store) heal(ctx context.Context, storageKey, reason string) {
	_ = s.provider.Del(ctx, storageKey)
	s.hooks.SelfHeal(storageKey, reason)
}

func (s *store) SnapshotGen(ref Ref) uint64 {
	return s.snapshotGen(context.Background(), s.entityKey(ref))
}

// WriteWithGen stores snap iff the entity generation still equals
// observedGen. Server reads use it so that an eviction racing the read wins.
func (s *store) WriteWithGen(ctx context.Context, ref Ref, snap Snapshot, observedGen uint64, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.enabled {
		return nil
	}
	if !ref.Valid() {
		return ErrInvalidRef
	}
	s.mu.Lock()
	k := s.entityKey(ref)
	if s.snapshotGen(ctx, k) != observedGen {
		s.mu.Unlock()
		s.log.Debug("WriteWithGen skipped (gen mismatch)", Fields{"ref": ref.String(), "obs": observedGen})
		return nil
	}
	stored, err := s.putLocked(ctx, k, snap, observedGen, ttl)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if stored {
		s.watchers.publish(Event{Ref: ref, Kind: EventReplaced, Snapshot: snap})
	}
	return nil
}

// Replace writes snap as the whole new state of ref. The generation is
// bumped first so that reads started earlier cannot write back over it.
func (s *store) Replace(ctx context.Context, ref Ref, snap Snapshot) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.enabled {
		return nil
	}
	if !ref.Valid() {
		return ErrInvalidRef
	}
	s.mu.Lock()
	stored, err := s.replaceLocked(ctx, ref, snap)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if stored {
		s.watchers.publish(Event{Ref: ref, Kind: EventReplaced, Snapshot: snap})
	}
	return nil
}

// Patch overwrites exactly the keys of fields on the cached snapshot and
// writes the result back as one replace. An absent snapshot is left absent.
func (s *store) Patch(ctx context.Context, ref Ref, fields Snapshot) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	if !s.enabled {
		s.hooks.PatchSkipped(ref, "disabled")
		return false, nil
	}
	if !ref.Valid() {
		return false, ErrInvalidRef
	}
	s.mu.Lock()
	prev, ok, err := s.readLocked(ctx, ref)
	if err != nil || !ok {
		s.mu.Unlock()
		if err == nil {
			s.log.Debug("patch skipped (absent)", Fields{"ref": ref.String()})
			s.hooks.PatchSkipped(ref, "absent")
		}
		return false, err
	}
	next := prev.Merge(fields)
	stored, err := s.replaceLocked(ctx, ref, next)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if !stored {
		return false, nil
	}
	s.hooks.Patched(ref, len(fields))
	s.watchers.publish(Event{Ref: ref, Kind: EventReplaced, Snapshot: next})
	return true, nil
}

func (s *store) Evict(ctx context.Context, ref Ref) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.enabled {
		return nil
	}
	if !ref.Valid() {
		return ErrInvalidRef
	}
	k := s.entityKey(ref)

	s.mu.Lock()
	newGen, bumpErr := s.gen.Bump(ctx, k)
	delErr := s.provider.Del(ctx, k)
	s.evictSeq++
	if len(s.loads) > 0 {
		s.evictedAt[k] = s.evictSeq
	}
	s.mu.Unlock()

	if bumpErr != nil {
		s.hooks.GenBumpError(k, bumpErr)
	}
	if bumpErr != nil || delErr != nil {
		err := &EvictError{Ref: ref, BumpErr: bumpErr, DelErr: delErr}
		if err.Outage() {
			s.log.Error("evict failed", Fields{"ref": ref.String(), "err": err})
			return err
		}
		// one half succeeded: the entry is gone or unreadable
		s.log.Warn("evict degraded", Fields{"ref": ref.String(), "err": err})
	}
	s.log.Debug("evicted entity (bumped gen + cleared entry)", Fields{"ref": ref.String(), "newGen": newGen})
	s.hooks.Evicted(ref)
	s.watchers.publish(Event{Ref: ref, Kind: EventEvicted})
	return nil
}

// beginLoad fences a list load against evictions that happen while it runs.
// The returned sequence must be handed to endLoad.
func (s *store) beginLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.evictSeq
	s.loads[seq]++
	return seq
}

func (s *store) endLoad(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loads[seq]--; s.loads[seq] <= 0 {
		delete(s.loads, seq)
	}
	oldest, running := uint64(0), false
	for b := range s.loads {
		if !running || b < oldest {
			oldest, running = b, true
		}
	}
	for k, at := range s.evictedAt {
		if !running || at <= oldest {
			delete(s.evictedAt, k)
		}
	}
}

// evictedSinceLocked reports whether storageKey was evicted after the load
// that started at seq. Requires mu.
func (s *store) evictedSinceLocked(storageKey string, seq uint64) bool {
	at, ok := s.evictedAt[storageKey]
	return ok && at > seq
}

func (s *store) Watch(ref Ref, fn func(Event)) func() {
	return s.watchers.add(ref, fn)
}

func (s *store) replaceLocked(ctx context.Context, ref Ref, snap Snapshot) (bool, error) {
	k := s.entityKey(ref)
	g, err := s.gen.Bump(ctx, k)
	if err != nil {
		s.hooks.GenBumpError(k, err)
		// the old entry can no longer be trusted either
		_ = s.provider.Del(ctx, k)
		return false, err
	}
	return s.putLocked(ctx, k, snap, g, s.entityTTL)
}

func (s *store) putLocked(ctx context.Context, storageKey string, snap Snapshot, g uint64, ttl time.Duration) (bool, error) {
	if ttl == 0 {
		ttl = s.entityTTL
	}
	payload, err := s.codec.Encode(map[string]any(snap))
	if err != nil {
		return false, err
	}
	b := wire.EncodeEntity(g, payload)
	ok, err := s.provider.Set(ctx, storageKey, b, s.computeSetCost(storageKey, b, false), ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		s.log.Debug("entity write rejected by provider (pressure)", Fields{"key": storageKey})
		s.hooks.ProviderSetRejected(storageKey)
	}
	return ok, nil
}

func (s *store) snapshotGen(ctx context.Context, storageKey string) uint64 {
	g, err := s.gen.Snapshot(ctx, storageKey)
	if err != nil {
		// treat as 0: CAS writes skip and reads self-heal
		s.log.Warn("gen snapshot error", Fields{"key": storageKey, "err": err})
		return 0
	}
	return g
}

func (s *store) entityKey(ref Ref) string {
	return "entity:" + s.ns + ":" + ref.Type + ":" + ref.ID
}
