package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/entcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery     uint64
	PatchSkippedEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix. Entity ids are
	// customer data, so refs go through it too.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr     atomic.Uint64
	patchSkippedCtr atomic.Uint64
}

var _ entcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("entcache.self_heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) Evicted(ref entcache.Ref) {
	if h.l == nil {
		return
	}
	h.l.Debug("entcache.evicted", "type", ref.Type, "ref", h.redact(ref.String()))
}

func (h *Hooks) Patched(ref entcache.Ref, fields int) {
	if h.l == nil {
		return
	}
	h.l.Debug("entcache.patched", "type", ref.Type, "ref", h.redact(ref.String()), "fields", fields)
}

func (h *Hooks) PatchSkipped(ref entcache.Ref, reason string) {
	if h.l == nil || !sample(h.opts.PatchSkippedEvery, &h.patchSkippedCtr) {
		return
	}
	h.l.Debug("entcache.patch_skipped", "type", ref.Type, "ref", h.redact(ref.String()), "reason", reason)
}

func (h *Hooks) QueriesInvalidated(names []string) {
	if h.l == nil {
		return
	}
	h.l.Info("entcache.queries_invalidated", "queries", names)
}

func (h *Hooks) QueryRejected(name, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("entcache.query_rejected", "query", name, "reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("entcache.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("entcache.gen_bump_error", "key", h.redact(storageKey), "err", err)
}
