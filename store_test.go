package entcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/entcache/codec"
	gen "github.com/unkn0wn-root/entcache/genstore"
	"github.com/unkn0wn-root/entcache/internal/wire"
	pr "github.com/unkn0wn-root/entcache/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu     sync.Mutex
	m      map[string]memEntry
	reject bool
	delErr error
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return p.delErr
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

type failingGenStore struct {
	*gen.LocalGenStore
	bumpErr error
}

func (f failingGenStore) Bump(ctx context.Context, k string) (uint64, error) {
	if f.bumpErr != nil {
		return 0, f.bumpErr
	}
	return f.LocalGenStore.Bump(ctx, k)
}

type recordingHooks struct {
	NopHooks
	mu       sync.Mutex
	skipped  []Ref
	patched  []Ref
	selfHeal []string
}

func (r *recordingHooks) PatchSkipped(ref Ref, _ string) {
	r.mu.Lock()
	r.skipped = append(r.skipped, ref)
	r.mu.Unlock()
}

func (r *recordingHooks) Patched(ref Ref, _ int) {
	r.mu.Lock()
	r.patched = append(r.patched, ref)
	r.mu.Unlock()
}

func (r *recordingHooks) SelfHeal(_, reason string) {
	r.mu.Lock()
	r.selfHeal = append(r.selfHeal, reason)
	r.mu.Unlock()
}

func newTestStore(t *testing.T, mp pr.Provider, optsOpt func(*Options)) Store {
	t.Helper()
	opts := Options{
		Namespace: "test",
		Provider:  mp,
		Codec:     c.JSON[map[string]any]{},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func mustImpl(t *testing.T, s Store) *store {
	t.Helper()
	impl, ok := s.(*store)
	if !ok {
		t.Fatalf("unexpected concrete type for Store")
	}
	return impl
}

var (
	customerC1     = Ref{Type: "Customer", ID: "C1"}
	subscriptionS1 = Ref{Type: "Subscription", ID: "S1"}
)

func mustRead(t *testing.T, s Store, ref Ref) (Snapshot, bool) {
	t.Helper()
	snap, ok, err := s.Read(context.Background(), ref)
	if err != nil {
		t.Fatalf("Read %s: %v", ref, err)
	}
	return snap, ok
}

func TestNewRequiresProviderCodecNamespace(t *testing.T) {
	if _, err := New(Options{Namespace: "x", Codec: c.JSON[map[string]any]{}}); !errors.Is(err, ErrProviderRequired) {
		t.Fatalf("want ErrProviderRequired, got %v", err)
	}
	if _, err := New(Options{Namespace: "x", Provider: newMemProvider()}); !errors.Is(err, ErrCodecRequired) {
		t.Fatalf("want ErrCodecRequired, got %v", err)
	}
	if _, err := New(Options{Provider: newMemProvider(), Codec: c.JSON[map[string]any]{}}); !errors.Is(err, ErrNamespaceRequired) {
		t.Fatalf("want ErrNamespaceRequired, got %v", err)
	}
}

// TestWriteWithGenFlow verifies CAS write, read, eviction and stale write skip.
func TestWriteWithGenFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)

	if _, ok := mustRead(t, s, customerC1); ok {
		t.Fatalf("expected miss on empty store")
	}

	obs := s.SnapshotGen(customerC1)
	if err := s.WriteWithGen(ctx, customerC1, Snapshot{"id": "C1", "name": "Acme"}, obs, 0); err != nil {
		t.Fatalf("WriteWithGen: %v", err)
	}
	got, ok := mustRead(t, s, customerC1)
	if !ok || got["name"] != "Acme" {
		t.Fatalf("read after write: ok=%v got=%v", ok, got)
	}

	if err := s.Evict(ctx, customerC1); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, ok := mustRead(t, s, customerC1); ok {
		t.Fatalf("read after evict should miss")
	}

	// a read that started before the eviction must not repopulate the cache
	if err := s.WriteWithGen(ctx, customerC1, Snapshot{"id": "C1", "name": "stale"}, obs, 0); err != nil {
		t.Fatalf("stale WriteWithGen: %v", err)
	}
	if _, ok := mustRead(t, s, customerC1); ok {
		t.Fatalf("stale write should not populate cache")
	}

	fresh := s.SnapshotGen(customerC1)
	if err := s.WriteWithGen(ctx, customerC1, Snapshot{"id": "C1", "name": "Acme"}, fresh, 0); err != nil {
		t.Fatalf("fresh WriteWithGen: %v", err)
	}
	if _, ok := mustRead(t, s, customerC1); !ok {
		t.Fatalf("fresh write should be readable")
	}
}

func TestPatchIsFieldScoped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)

	if err := s.Replace(ctx, customerC1, Snapshot{"id": "C1", "activeSubscriptionCount": 3.0, "name": "Acme"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	ok, err := s.Patch(ctx, customerC1, Snapshot{"id": "C1", "activeSubscriptionCount": 2.0})
	if err != nil || !ok {
		t.Fatalf("Patch: ok=%v err=%v", ok, err)
	}

	got, _ := mustRead(t, s, customerC1)
	if len(got) != 3 || got["id"] != "C1" || got["activeSubscriptionCount"] != 2.0 || got["name"] != "Acme" {
		t.Fatalf("unexpected snapshot after patch: %v", got)
	}
}

func TestPatchAbsentCreatesNothing(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	hooks := &recordingHooks{}
	s := newTestStore(t, mp, func(o *Options) { o.Hooks = hooks })

	ok, err := s.Patch(ctx, customerC1, Snapshot{"id": "C1", "activeSubscriptionCount": 2.0})
	if err != nil || ok {
		t.Fatalf("Patch on absent: ok=%v err=%v", ok, err)
	}
	if _, ok := mustRead(t, s, customerC1); ok {
		t.Fatalf("patch on absent entity created an entry")
	}
	if mp.has(mustImpl(t, s).entityKey(customerC1)) {
		t.Fatalf("provider holds a phantom entry")
	}
	if len(hooks.skipped) != 1 || hooks.skipped[0] != customerC1 {
		t.Fatalf("PatchSkipped not reported: %v", hooks.skipped)
	}
}

func TestEvictedEntityNeverShowsPatchData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)

	if err := s.Replace(ctx, subscriptionS1, Snapshot{"id": "S1", "status": "active"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Patch(ctx, subscriptionS1, Snapshot{"status": "pending"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Evict(ctx, subscriptionS1); err != nil {
		t.Fatal(err)
	}
	if _, ok := mustRead(t, s, subscriptionS1); ok {
		t.Fatalf("evicted entity still readable")
	}
	// patching after eviction is a no-op, not a resurrection
	if ok, _ := s.Patch(ctx, subscriptionS1, Snapshot{"status": "pending"}); ok {
		t.Fatalf("patch resurrected an evicted entity")
	}
}

func TestReadReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)
	if err := s.Replace(ctx, customerC1, Snapshot{"id": "C1", "name": "Acme"}); err != nil {
		t.Fatal(err)
	}
	a, _ := mustRead(t, s, customerC1)
	a["name"] = "changed"
	b, _ := mustRead(t, s, customerC1)
	if b["name"] != "Acme" {
		t.Fatalf("mutating a read leaked into the cache: %v", b)
	}
}

// TestSelfHealOnCorrupt ensures corrupt bytes and stale frames are deleted and missed.
func TestSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	hooks := &recordingHooks{}
	s := newTestStore(t, mp, func(o *Options) { o.Hooks = hooks })
	impl := mustImpl(t, s)
	k := impl.entityKey(customerC1)

	if _, err := mp.Set(ctx, k, []byte("not-wire-format"), 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := mustRead(t, s, customerC1); ok {
		t.Fatalf("corrupt entry should miss")
	}
	if mp.has(k) {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}

	payload, err := c.JSON[map[string]any]{}.Encode(map[string]any{"id": "C1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mp.Set(ctx, k, wire.EncodeEntity(0, payload), 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := impl.gen.Bump(ctx, k); err != nil {
		t.Fatal(err)
	}
	if _, ok := mustRead(t, s, customerC1); ok {
		t.Fatalf("stale frame should miss")
	}
	if mp.has(k) {
		t.Fatalf("stale entry was not deleted by self-heal")
	}
	if len(hooks.selfHeal) != 2 || hooks.selfHeal[0] != "corrupt" || hooks.selfHeal[1] != "gen_mismatch" {
		t.Fatalf("self-heal reasons: %v", hooks.selfHeal)
	}
}

func TestEvictErrors(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	bumpErr := errors.New("redis down")
	gs := failingGenStore{LocalGenStore: gen.NewLocalGenStore(0, 0), bumpErr: bumpErr}
	s := newTestStore(t, mp, func(o *Options) { o.GenStore = gs })

	// delete succeeds: degraded but not an error
	if err := s.Evict(ctx, customerC1); err != nil {
		t.Fatalf("bump-only failure should not fail Evict: %v", err)
	}

	mp.delErr = errors.New("provider down")
	err := s.Evict(ctx, customerC1)
	var ee *EvictError
	if !errors.As(err, &ee) || !ee.Outage() {
		t.Fatalf("want EvictError outage, got %v", err)
	}
	if !errors.Is(err, bumpErr) {
		t.Fatalf("EvictError should unwrap to the bump error")
	}
}

func TestReplaceRejectedByProviderIsNotPublished(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	s := newTestStore(t, mp, nil)

	var events []Event
	cancel := s.Watch(customerC1, func(e Event) { events = append(events, e) })
	defer cancel()

	mp.reject = true
	if err := s.Replace(ctx, customerC1, Snapshot{"id": "C1"}); err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("rejected write was published: %v", events)
	}
}

func TestWatchSeesCommittedState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)

	var kinds []EventKind
	var seen []any
	cancel := s.Watch(customerC1, func(e Event) {
		kinds = append(kinds, e.Kind)
		// the write must already be visible when watchers run
		snap, ok, _ := s.Read(ctx, customerC1)
		if ok {
			seen = append(seen, snap["activeSubscriptionCount"])
		} else {
			seen = append(seen, nil)
		}
	})

	_ = s.Replace(ctx, customerC1, Snapshot{"id": "C1", "activeSubscriptionCount": 3.0})
	_, _ = s.Patch(ctx, customerC1, Snapshot{"activeSubscriptionCount": 2.0})
	_ = s.Evict(ctx, customerC1)
	cancel()
	_ = s.Replace(ctx, customerC1, Snapshot{"id": "C1"})

	wantKinds := []EventKind{EventReplaced, EventReplaced, EventEvicted}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("events: got %v want %v", kinds, wantKinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Fatalf("event %d: got %v want %v", i, kinds[i], wantKinds[i])
		}
	}
	if seen[0] != 3.0 || seen[1] != 2.0 || seen[2] != nil {
		t.Fatalf("watchers observed uncommitted state: %v", seen)
	}
}

func TestDisabledStoreIsInert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), func(o *Options) { o.Disabled = true })
	if err := s.Replace(ctx, customerC1, Snapshot{"id": "C1"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := mustRead(t, s, customerC1); ok {
		t.Fatalf("disabled store returned a hit")
	}
	if ok, _ := s.Patch(ctx, customerC1, Snapshot{"x": 1.0}); ok {
		t.Fatalf("disabled store applied a patch")
	}
}

func TestInvalidRefRejected(t *testing.T) {
	s := newTestStore(t, newMemProvider(), nil)
	if _, _, err := s.Read(context.Background(), Ref{Type: "Customer"}); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("want ErrInvalidRef, got %v", err)
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.Read(ctx, customerC1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Read after Close: %v", err)
	}
	if err := s.Replace(ctx, customerC1, Snapshot{"id": "C1"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Replace after Close: %v", err)
	}
	if _, err := s.Patch(ctx, customerC1, Snapshot{"name": "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Patch after Close: %v", err)
	}
	if err := s.Evict(ctx, customerC1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Evict after Close: %v", err)
	}
	if err := s.InvalidateQueries(ctx, "getCustomer"); !errors.Is(err, ErrClosed) {
		t.Fatalf("InvalidateQueries after Close: %v", err)
	}
	_, err := s.Query(ctx, QueryKey{Name: "getCustomer"}, func(context.Context) ([]Snapshot, string, error) {
		t.Fatal("loader ran on a closed store")
		return nil, "", nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Query after Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
