// Package reconcile applies a confirmed mutation result to the entity
// cache: the primary entity is evicted or patched, related entities get a
// field-scoped patch, and nothing is ever half-written.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/entcache"
)

// ErrMalformedResult is returned when the payload lacks an identifier a rule
// needs. No cache write happens for that call.
var ErrMalformedResult = errors.New("reconcile: malformed mutation result")

// Report lists what one reconciliation did.
type Report struct {
	Mutation string
	Evicted  []entcache.Ref
	Patched  []entcache.Ref
	// Skipped related entities were absent from the cache.
	Skipped []entcache.Ref
}

// Changed reports whether any cache entry was touched.
func (r Report) Changed() bool { return len(r.Evicted)+len(r.Patched) > 0 }

type Reconciler struct {
	store entcache.Store
	log   entcache.Logger

	mu    sync.RWMutex
	rules map[string]Rule
}

func New(store entcache.Store, log entcache.Logger) *Reconciler {
	if log == nil {
		log = entcache.NopLogger{}
	}
	return &Reconciler{store: store, log: log, rules: make(map[string]Rule)}
}

// Register sets the rule for the mutation root field, replacing any
// previous one.
func (r *Reconciler) Register(mutation string, rule Rule) error {
	if mutation == "" {
		return errors.New("reconcile: mutation name is required")
	}
	if err := rule.validate(); err != nil {
		return fmt.Errorf("%s: %w", mutation, err)
	}
	r.mu.Lock()
	r.rules[mutation] = rule
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) Rule(mutation string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[mutation]
	return rule, ok
}

type patchOp struct {
	ref    entcache.Ref
	fields entcache.Snapshot
}

// Reconcile applies the rule registered for mutation to its payload (the
// value of the mutation root field). Unknown mutations are a no-op.
//
// Every reference is resolved before the first write; when one is missing
// the call fails with ErrMalformedResult and the cache is left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, mutation string, payload map[string]any) (Report, error) {
	rep := Report{Mutation: mutation}
	rule, ok := r.Rule(mutation)
	if !ok {
		r.log.Debug("no reconcile rule", entcache.Fields{"mutation": mutation})
		return rep, nil
	}
	if payload == nil {
		return rep, fmt.Errorf("%w: %s: empty payload", ErrMalformedResult, mutation)
	}

	primary, ok := entcache.Snapshot(payload).Ref(rule.Type)
	if !ok {
		return rep, fmt.Errorf("%w: %s: missing %s id", ErrMalformedResult, mutation, rule.Type)
	}

	var patches []patchOp
	if rule.Effect == Patch {
		patches = append(patches, patchOp{ref: primary, fields: scalarFields(payload, nil)})
	}
	for _, rel := range rule.Related {
		obj, ok := lookup(payload, rel.Path)
		if !ok {
			if rel.Optional {
				continue
			}
			return rep, fmt.Errorf("%w: %s: missing %q", ErrMalformedResult, mutation, rel.Path)
		}
		ref, ok := entcache.Snapshot(obj).Ref(rel.Type)
		if !ok {
			return rep, fmt.Errorf("%w: %s: missing %s id at %q", ErrMalformedResult, mutation, rel.Type, rel.Path)
		}
		if rule.Effect == Evict && ref == primary {
			// an evicted entity is never patched in the same pass
			continue
		}
		patches = append(patches, patchOp{ref: ref, fields: scalarFields(obj, rel.Fields)})
	}

	if rule.Effect == Evict {
		if err := r.store.Evict(ctx, primary); err != nil {
			return rep, fmt.Errorf("reconcile %s: %w", mutation, err)
		}
		rep.Evicted = append(rep.Evicted, primary)
	}

	var errs []error
	for _, p := range patches {
		if len(p.fields) == 0 {
			continue
		}
		applied, err := r.store.Patch(ctx, p.ref, p.fields)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("patch %s: %w", p.ref, err))
		case applied:
			rep.Patched = append(rep.Patched, p.ref)
		default:
			// nothing stale to correct; the next direct read fetches it
			r.log.Debug("related entity not cached", entcache.Fields{"mutation": mutation, "ref": p.ref.String()})
			rep.Skipped = append(rep.Skipped, p.ref)
		}
	}
	if len(errs) > 0 {
		return rep, fmt.Errorf("reconcile %s: %w", mutation, errors.Join(errs...))
	}

	r.log.Debug("reconciled", entcache.Fields{
		"mutation": mutation,
		"evicted":  len(rep.Evicted),
		"patched":  len(rep.Patched),
		"skipped":  len(rep.Skipped),
	})
	return rep, nil
}

// scalarFields picks the fields a patch may overwrite. Nested objects are
// other entities and are reconciled through their own relation; identity
// keys never change.
func scalarFields(obj map[string]any, allow []string) entcache.Snapshot {
	out := make(entcache.Snapshot, len(obj))
	if len(allow) > 0 {
		for _, k := range allow {
			if v, ok := obj[k]; ok {
				out[k] = v
			}
		}
		return out
	}
	for k, v := range obj {
		if k == entcache.FieldID || k == entcache.FieldTypename {
			continue
		}
		if _, nested := v.(map[string]any); nested {
			continue
		}
		out[k] = v
	}
	return out
}
