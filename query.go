package entcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/entcache/internal/util"
	"github.com/unkn0wn-root/entcache/internal/wire"
)

// QueryKey names a list-shaped read: the query name plus its variables.
// Invalidation works per Name and covers every variable set.
type QueryKey struct {
	Name string
	Vars map[string]any
}

// Loader fetches a list query from the server. Every returned snapshot
// must carry its identity; fallbackType applies when __typename is absent.
type Loader func(ctx context.Context) (snaps []Snapshot, fallbackType string, err error)

var ErrQueryMember = errors.New("entcache: query member without identity")

func (s *store) ReadQuery(ctx context.Context, q QueryKey) ([]Ref, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	if !s.enabled {
		return nil, false, nil
	}
	k, err := s.queryKey(q)
	if err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	qg, members, err := wire.DecodeQuery(raw)
	if err != nil {
		s.rejectQuery(ctx, k, q.Name, "corrupt")
		return nil, false, nil
	}
	if qg != s.snapshotGen(ctx, s.queryGenKey(q.Name)) {
		s.rejectQuery(ctx, k, q.Name, "query_gen")
		return nil, false, nil
	}

	storage := make([]string, len(members))
	for i, m := range members {
		storage[i] = m.Key
	}
	gens, err := s.gen.SnapshotMany(ctx, storage)
	if err != nil {
		return nil, false, err
	}
	refs := make([]Ref, 0, len(members))
	for _, m := range members {
		if g := gens[m.Key]; g != m.Gen {
			// moved since the list was cached: a patch keeps the list valid,
			// an eviction does not
			if g < m.Gen || !s.liveAt(ctx, m.Key, g) {
				s.rejectQuery(ctx, k, q.Name, "member_evicted")
				return nil, false, nil
			}
		}
		ref, err := s.refFromKey(m.Key)
		if err != nil {
			s.rejectQuery(ctx, k, q.Name, "corrupt")
			return nil, false, nil
		}
		refs = append(refs, ref)
	}
	return refs, true, nil
}

// liveAt reports whether an entity entry exists at generation g.
func (s *store) liveAt(ctx context.Context, storageKey string, g uint64) bool {
	raw, ok, err := s.provider.Get(ctx, storageKey)
	if err != nil || !ok {
		return false
	}
	eg, _, err := wire.DecodeEntity(raw)
	return err == nil && eg == g
}

func (s *store) rejectQuery(ctx context.Context, storageKey, name, reason string) {
	_ = s.provider.Del(ctx, storageKey)
	s.hooks.QueryRejected(name, reason)
}

func (s *store) QueryGen(name string) uint64 {
	return s.snapshotGen(context.Background(), s.queryGenKey(name))
}

// WriteQuery caches refs for q iff the query name was not invalidated since
// observedQueryGen was taken. Member generations are captured now.
func (s *store) WriteQuery(ctx context.Context, q QueryKey, refs []Ref, observedQueryGen uint64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.enabled {
		return nil
	}
	k, err := s.queryKey(q)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshotGen(ctx, s.queryGenKey(q.Name)) != observedQueryGen {
		s.log.Debug("WriteQuery skipped (query invalidated)", Fields{"query": q.Name, "obs": observedQueryGen})
		return nil
	}
	storage := make([]string, len(refs))
	for i, r := range refs {
		if !r.Valid() {
			return ErrInvalidRef
		}
		storage[i] = s.entityKey(r)
	}
	gens, err := s.gen.SnapshotMany(ctx, storage)
	if err != nil {
		return err
	}
	members := make([]wire.Member, len(refs))
	for i, sk := range storage {
		members[i] = wire.Member{Key: sk, Gen: gens[sk]}
	}
	b, err := wire.EncodeQuery(observedQueryGen, members)
	if err != nil {
		return err
	}
	ok, err := s.provider.Set(ctx, k, b, s.computeSetCost(k, b, true), s.queryTTL)
	if err != nil {
		return err
	}
	if !ok {
		s.hooks.ProviderSetRejected(k)
	}
	return nil
}

// InvalidateQueries marks every cached result of the named queries stale.
// The next read of any of them goes to the server.
func (s *store) InvalidateQueries(ctx context.Context, names ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.enabled || len(names) == 0 {
		return nil
	}
	s.mu.Lock()
	var errs []error
	for _, n := range names {
		k := s.queryGenKey(n)
		if _, err := s.gen.Bump(ctx, k); err != nil {
			s.hooks.GenBumpError(k, err)
			errs = append(errs, fmt.Errorf("invalidate query %q: %w", n, err))
		}
	}
	s.mu.Unlock()

	s.log.Debug("queries invalidated", Fields{"queries": names})
	s.hooks.QueriesInvalidated(names)
	return errors.Join(errs...)
}

// Query is a read-through for list queries. Concurrent misses for the same
// key share one load.
func (s *store) Query(ctx context.Context, q QueryKey, load Loader) ([]Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if refs, ok, err := s.ReadQuery(ctx, q); err == nil && ok {
		out := make([]Snapshot, 0, len(refs))
		complete := true
		for _, r := range refs {
			snap, ok, err := s.Read(ctx, r)
			if err != nil || !ok {
				complete = false
				break
			}
			out = append(out, snap)
		}
		if complete {
			return out, nil
		}
		s.hooks.QueryRejected(q.Name, "member_absent")
	}

	k, err := s.queryKey(q)
	if err != nil {
		return nil, err
	}
	v, err, _ := s.flight.Do(k, func() (any, error) {
		return s.loadQuery(ctx, q, load)
	})
	if err != nil {
		return nil, err
	}
	snaps := v.([]Snapshot)
	out := make([]Snapshot, len(snaps))
	for i, sn := range snaps {
		out[i] = sn.Clone()
	}
	return out, nil
}

func (s *store) loadQuery(ctx context.Context, q QueryKey, load Loader) ([]Snapshot, error) {
	obsQuery := s.QueryGen(q.Name)
	fence := s.beginLoad()
	defer s.endLoad(fence)

	snaps, fallbackType, err := load(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, len(snaps))
	for i, sn := range snaps {
		ref, ok := sn.Ref(fallbackType)
		if !ok {
			return nil, fmt.Errorf("%w: query %q item %d", ErrQueryMember, q.Name, i)
		}
		refs[i] = ref
	}
	complete := true
	for i, sn := range snaps {
		stored, err := s.refresh(ctx, refs[i], sn, fence)
		if err != nil {
			s.log.Warn("query member write failed", Fields{"query": q.Name, "ref": refs[i].String(), "err": err})
			return snaps, nil
		}
		complete = complete && stored
	}
	if !complete {
		// a member was evicted while the response was in flight; the list is
		// already stale, so only the caller sees it
		s.hooks.QueryRejected(q.Name, "member_evicted")
		return snaps, nil
	}
	if err := s.WriteQuery(ctx, q, refs, obsQuery); err != nil {
		s.log.Warn("query write failed", Fields{"query": q.Name, "err": err})
	}
	return snaps, nil
}

// refresh stores fresh server data at the entity's current generation.
// Unlike Replace it does not bump, so other cached lists holding the same
// entity stay valid. Members evicted after the load started at fence are
// skipped: the response predates the eviction.
func (s *store) refresh(ctx context.Context, ref Ref, snap Snapshot, fence uint64) (bool, error) {
	if !s.enabled {
		return true, nil
	}
	k := s.entityKey(ref)
	s.mu.Lock()
	if s.evictedSinceLocked(k, fence) {
		s.mu.Unlock()
		s.log.Debug("query member skipped (evicted during load)", Fields{"ref": ref.String()})
		return false, nil
	}
	stored, err := s.putLocked(ctx, k, snap, s.snapshotGen(ctx, k), s.entityTTL)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if stored {
		s.watchers.publish(Event{Ref: ref, Kind: EventReplaced, Snapshot: snap})
	}
	return true, nil
}

func (s *store) queryKey(q QueryKey) (string, error) {
	if q.Name == "" {
		return "", errors.New("entcache: query name is required")
	}
	h, err := util.VarsHash(q.Vars)
	if err != nil {
		return "", fmt.Errorf("entcache: hash query vars: %w", err)
	}
	return "query:" + s.ns + ":" + q.Name + ":" + h, nil
}

func (s *store) queryGenKey(name string) string {
	return "qgen:" + s.ns + ":" + name
}

func (s *store) refFromKey(storageKey string) (Ref, error) {
	prefix := "entity:" + s.ns + ":"
	if len(storageKey) <= len(prefix) || storageKey[:len(prefix)] != prefix {
		return Ref{}, ErrInvalidRef
	}
	return ParseRef(storageKey[len(prefix):])
}
