package promhooks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/entcache"
)

func TestCountersByTypeAndQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	require.NoError(t, err)

	h.Evicted(entcache.Ref{Type: "Subscription", ID: "S1"})
	h.Evicted(entcache.Ref{Type: "Subscription", ID: "S2"})
	h.Patched(entcache.Ref{Type: "Customer", ID: "C1"}, 1)
	h.PatchSkipped(entcache.Ref{Type: "Customer", ID: "C9"}, "absent")
	h.QueriesInvalidated([]string{"getCustomer", "getCustomerWalletList"})

	require.Equal(t, 2.0, testutil.ToFloat64(h.evicted.WithLabelValues("Subscription")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.patched.WithLabelValues("Customer")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.patchSkipped.WithLabelValues("Customer", "absent")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.invalidated.WithLabelValues("getCustomerWalletList")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}
