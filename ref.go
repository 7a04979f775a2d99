package entcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tiendc/go-deepcopy"
)

// Field names the server uses to identify an object.
const (
	FieldID       = "id"
	FieldTypename = "__typename"
)

var ErrInvalidRef = errors.New("entcache: invalid entity reference")

// Ref addresses one cached entity. It is a lookup handle only.
type Ref struct {
	Type string
	ID   string
}

// String renders the canonical cache id, e.g. "Customer:C1".
func (r Ref) String() string { return r.Type + ":" + r.ID }

func (r Ref) Valid() bool { return r.Type != "" && r.ID != "" }

// ParseRef is the inverse of Ref.String. The id may itself contain ':'.
func ParseRef(s string) (Ref, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok || typ == "" || id == "" {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Ref{Type: typ, ID: id}, nil
}

// Snapshot is the last observed field set of one entity.
type Snapshot map[string]any

// Clone returns a deep copy; nested maps and slices are not shared.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	var out map[string]any
	if err := deepcopy.Copy(&out, (*map[string]any)(&s)); err != nil {
		// deepcopy only fails on non-copyable kinds (chan, func); fall back to a shallow copy
		out = make(map[string]any, len(s))
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// Merge returns a copy of s with exactly the keys present in fields overwritten.
func (s Snapshot) Merge(fields Snapshot) Snapshot {
	out := s.Clone()
	if out == nil {
		out = make(Snapshot, len(fields))
	}
	for k, v := range fields.Clone() {
		out[k] = v
	}
	return out
}

// Ref resolves the snapshot's identity. fallbackType is used when the
// payload carries no __typename.
func (s Snapshot) Ref(fallbackType string) (Ref, bool) {
	id := scalarString(s[FieldID])
	typ, _ := s[FieldTypename].(string)
	if typ == "" {
		typ = fallbackType
	}
	r := Ref{Type: typ, ID: id}
	return r, r.Valid()
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64, int, int64, uint64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}
