// Package testkit holds fakes shared by the package tests.
package testkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/entcache"
	c "github.com/unkn0wn-root/entcache/codec"
	pr "github.com/unkn0wn-root/entcache/provider"
)

// MemProvider is a map-backed provider. Writes are visible immediately.
type MemProvider struct {
	mu sync.Mutex
	m  map[string][]byte
}

var _ pr.Provider = (*MemProvider)(nil)

func NewMemProvider() *MemProvider { return &MemProvider{m: make(map[string][]byte)} }

func (p *MemProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *MemProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	p.m[key] = value
	p.mu.Unlock()
	return true, nil
}

func (p *MemProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *MemProvider) Close(context.Context) error { return nil }

// Len counts stored keys, entity and query entries alike.
func (p *MemProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// NewStore returns an enabled store over a fresh MemProvider, closed with t.
func NewStore(t testing.TB) entcache.Store {
	t.Helper()
	s, err := entcache.New(entcache.Options{
		Namespace: "test",
		Provider:  NewMemProvider(),
		Codec:     c.JSON[map[string]any]{},
	})
	if err != nil {
		t.Fatalf("entcache.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// Seed replaces each snapshot in the store under its own identity.
func Seed(t testing.TB, s entcache.Store, snaps ...entcache.Snapshot) {
	t.Helper()
	for _, sn := range snaps {
		ref, ok := sn.Ref("")
		if !ok {
			t.Fatalf("seed snapshot without identity: %v", sn)
		}
		if err := s.Replace(context.Background(), ref, sn); err != nil {
			t.Fatalf("seed %s: %v", ref, err)
		}
	}
}

// Read fails the test on a store error.
func Read(t testing.TB, s entcache.Store, ref entcache.Ref) (entcache.Snapshot, bool) {
	t.Helper()
	snap, ok, err := s.Read(context.Background(), ref)
	if err != nil {
		t.Fatalf("Read %s: %v", ref, err)
	}
	return snap, ok
}
