package entcache

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		want Ref
		err  bool
	}{
		{in: "Customer:C1", want: Ref{Type: "Customer", ID: "C1"}},
		{in: "Wallet:urn:lago:W1", want: Ref{Type: "Wallet", ID: "urn:lago:W1"}},
		{in: "Customer", err: true},
		{in: ":C1", err: true},
		{in: "Customer:", err: true},
	}
	for _, tc := range cases {
		got, err := ParseRef(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidRef) {
				t.Fatalf("ParseRef(%q): want ErrInvalidRef, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseRef(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if got.String() != tc.in {
			t.Fatalf("String() = %q, want %q", got.String(), tc.in)
		}
	}
}

func TestSnapshotRefFallsBackToType(t *testing.T) {
	if r, ok := (Snapshot{"id": "S1"}).Ref("Subscription"); !ok || r != subscriptionS1 {
		t.Fatalf("fallback type not applied: %v %v", r, ok)
	}
	if r, ok := (Snapshot{"id": "C1", "__typename": "Customer"}).Ref("Subscription"); !ok || r != customerC1 {
		t.Fatalf("__typename should win over fallback: %v", r)
	}
	if _, ok := (Snapshot{"name": "x"}).Ref("Customer"); ok {
		t.Fatalf("snapshot without id resolved")
	}
}

func TestMergeDoesNotShareNestedState(t *testing.T) {
	prev := Snapshot{"id": "C1", "billing": map[string]any{"vat": 20.0}}
	next := prev.Merge(Snapshot{"name": "Acme"})

	next["billing"].(map[string]any)["vat"] = 0.0
	if prev["billing"].(map[string]any)["vat"] != 20.0 {
		t.Fatalf("merge shared a nested map with its source")
	}
	if next["name"] != "Acme" || next["id"] != "C1" {
		t.Fatalf("unexpected merge result: %v", next)
	}
}
