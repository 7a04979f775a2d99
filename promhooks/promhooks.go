// Package promhooks counts entcache events with Prometheus.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/entcache"
)

const namespace = "entcache"

type Hooks struct {
	selfHeal      *prometheus.CounterVec
	evicted       *prometheus.CounterVec
	patched       *prometheus.CounterVec
	patchSkipped  *prometheus.CounterVec
	invalidated   *prometheus.CounterVec
	queryRejected *prometheus.CounterVec
	setRejected   prometheus.Counter
	genBumpErrors prometheus.Counter
}

var _ entcache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg. Entity ids never become labels;
// only entity types and query names do.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "self_heal_total",
			Help: "Entries dropped on read, by reason.",
		}, []string{"reason"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "evicted_total",
			Help: "Entity snapshots evicted, by type.",
		}, []string{"type"}),
		patched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "patched_total",
			Help: "Entity snapshots replaced by a field-scoped patch, by type.",
		}, []string{"type"}),
		patchSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "patch_skipped_total",
			Help: "Patches not applied, by type and reason.",
		}, []string{"type", "reason"}),
		invalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queries_invalidated_total",
			Help: "Query names marked stale after a mutation.",
		}, []string{"query"}),
		queryRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "query_rejected_total",
			Help: "Cached query results rejected on read, by query and reason.",
		}, []string{"query", "reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_set_rejected_total",
			Help: "Writes refused by the provider under pressure.",
		}),
		genBumpErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gen_bump_errors_total",
			Help: "Generation bumps that failed.",
		}),
	}
	for _, c := range []prometheus.Collector{
		h.selfHeal, h.evicted, h.patched, h.patchSkipped,
		h.invalidated, h.queryRejected, h.setRejected, h.genBumpErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_, reason string)       { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) Evicted(ref entcache.Ref)        { h.evicted.WithLabelValues(ref.Type).Inc() }
func (h *Hooks) Patched(ref entcache.Ref, _ int) { h.patched.WithLabelValues(ref.Type).Inc() }
func (h *Hooks) ProviderSetRejected(string)      { h.setRejected.Inc() }
func (h *Hooks) GenBumpError(string, error)      { h.genBumpErrors.Inc() }
func (h *Hooks) QueryRejected(name, reason string) {
	h.queryRejected.WithLabelValues(name, reason).Inc()
}
func (h *Hooks) PatchSkipped(ref entcache.Ref, reason string) {
	h.patchSkipped.WithLabelValues(ref.Type, reason).Inc()
}
func (h *Hooks) QueriesInvalidated(names []string) {
	for _, n := range names {
		h.invalidated.WithLabelValues(n).Inc()
	}
}
