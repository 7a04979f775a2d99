package codec

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		"__typename":              "Customer",
		"id":                      "C1",
		"name":                    "Acme",
		"activeSubscriptionCount": float64(3),
		"billingConfiguration": map[string]any{
			"vatRate": 20.5,
			"tags":    []any{"a", "b"},
		},
	}
}

func TestSnapshotCodecsPreserveShape(t *testing.T) {
	for _, name := range []string{"json", "cbor", "msgpack", "protobuf"} {
		t.Run(name, func(t *testing.T) {
			cd, err := ForSnapshots(name)
			require.NoError(t, err)

			b, err := cd.Encode(sampleSnapshot())
			require.NoError(t, err)
			got, err := cd.Decode(b)
			require.NoError(t, err)

			if diff := cmp.Diff(sampleSnapshot(), got); diff != "" {
				t.Fatalf("snapshot changed through %s (-want +got):\n%s", name, diff)
			}
		})
	}
}

func TestForSnapshotsUnknown(t *testing.T) {
	_, err := ForSnapshots("xml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "xml")
}

func TestLimitCodecRejectsOversized(t *testing.T) {
	lc := LimitCodec[Snapshot]{Inner: JSON[Snapshot]{}, MaxDecode: 16}

	b, err := lc.Encode(Snapshot{"id": strings.Repeat("x", 32)})
	require.NoError(t, err)

	_, err = lc.Decode(b)
	require.ErrorContains(t, err, "payload too large")

	small, err := lc.Encode(Snapshot{"id": "C1"})
	require.NoError(t, err)
	got, err := lc.Decode(small)
	require.NoError(t, err)
	require.Equal(t, "C1", got["id"])
}

func TestStructPBRejectsNonJSONValues(t *testing.T) {
	_, err := StructPB{}.Encode(Snapshot{"ch": make(chan int)})
	require.Error(t, err)
}

func TestDeterministicEncodings(t *testing.T) {
	a := Snapshot{"id": "C1", "name": "Acme", "currency": "USD", "vat": 20.0}
	b := Snapshot{"vat": 20.0, "currency": "USD", "name": "Acme", "id": "C1"}
	for _, name := range []string{"cbor", "msgpack"} {
		cd, err := ForSnapshots(name)
		require.NoError(t, err)
		ea, err := cd.Encode(a)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			eb, err := cd.Encode(b)
			require.NoError(t, err)
			require.Equal(t, ea, eb, name)
		}
	}
}

func TestCBORNestingLimit(t *testing.T) {
	cd, err := NewCBOR[Snapshot](CBOROptions{MaxNesting: 4})
	require.NoError(t, err)
	deep := Snapshot{"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": map[string]any{"e": 1.0}}}}}
	raw, err := cd.Encode(deep)
	require.NoError(t, err)
	_, err = cd.Decode(raw)
	require.Error(t, err)
}
