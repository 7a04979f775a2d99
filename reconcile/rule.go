package reconcile

import (
	"fmt"
	"strings"
)

// Effect is what a mutation does to its primary entity.
type Effect int

const (
	// None leaves the primary entity alone; only relations are patched.
	None Effect = iota
	// Evict removes the primary entity; the next read goes to the server.
	Evict
	// Patch overwrites the primary entity's cached fields with the payload.
	Patch
)

func (e Effect) String() string {
	switch e {
	case None:
		return "none"
	case Evict:
		return "evict"
	case Patch:
		return "patch"
	default:
		return fmt.Sprintf("effect(%d)", int(e))
	}
}

// Relation names a different entity nested in the mutation payload whose
// cached snapshot derives new values from the mutation.
type Relation struct {
	// Path is a dot-separated path into the payload, e.g. "customer".
	Path string
	// Type is used when the nested object carries no __typename.
	Type string
	// Fields limits the patch to these keys. Empty means every field the
	// payload carries.
	Fields []string
	// Optional relations may be null or missing in the payload.
	Optional bool
}

// Rule describes how one mutation field reconciles the cache.
type Rule struct {
	Type    string
	Effect  Effect
	Related []Relation
}

func (r Rule) validate() error {
	if r.Type == "" {
		return fmt.Errorf("reconcile: rule type is required")
	}
	for i, rel := range r.Related {
		if strings.TrimSpace(rel.Path) == "" {
			return fmt.Errorf("reconcile: relation %d: path is required", i)
		}
		if rel.Type == "" {
			return fmt.Errorf("reconcile: relation %q: type is required", rel.Path)
		}
	}
	return nil
}

// lookup walks a dot-separated path through nested objects.
func lookup(payload map[string]any, path string) (map[string]any, bool) {
	cur := payload
	for _, part := range strings.Split(path, ".") {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
