package asynchook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/entcache"
)

type countingHooks struct {
	entcache.NopHooks
	mu      sync.Mutex
	evicted []entcache.Ref
	queries [][]string
}

func (c *countingHooks) Evicted(ref entcache.Ref) {
	c.mu.Lock()
	c.evicted = append(c.evicted, ref)
	c.mu.Unlock()
}

func (c *countingHooks) QueriesInvalidated(names []string) {
	c.mu.Lock()
	c.queries = append(c.queries, names)
	c.mu.Unlock()
}

func TestAsyncHooksDeliverBeforeClose(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 2, 16)

	h.Evicted(entcache.Ref{Type: "Subscription", ID: "S1"})
	names := []string{"getCustomer"}
	h.QueriesInvalidated(names)
	names[0] = "mutated"
	h.Close()

	require.Equal(t, []entcache.Ref{{Type: "Subscription", ID: "S1"}}, inner.evicted)
	require.Equal(t, [][]string{{"getCustomer"}}, inner.queries, "names are copied before queuing")
}

func TestAsyncHooksDropAfterClose(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 1, 1)
	h.Close()
	h.Close()

	h.Evicted(entcache.Ref{Type: "Customer", ID: "C1"})
	require.Empty(t, inner.evicted)
	require.Equal(t, uint64(1), h.Dropped())
}
