package entcache

// Hooks receives high-signal store events.
// Implementations MUST be cheap and non-blocking; they run on the write path.
type Hooks interface {
	// An entry was dropped on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// An entity snapshot was evicted.
	Evicted(ref Ref)

	// An entity snapshot was replaced by a field-scoped patch.
	Patched(ref Ref, fields int)

	// A patch was not applied. reason ∈ {"absent", "disabled"}
	PatchSkipped(ref Ref, reason string)

	// A named query set was marked stale.
	QueriesInvalidated(names []string)

	// A cached query result was rejected on read.
	// reason ∈ {"corrupt", "query_gen", "member_evicted", "member_absent"}
	QueryRejected(name, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore bump failed.
	GenBumpError(storageKey string, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)      {}
func (NopHooks) Evicted(Ref)                  {}
func (NopHooks) Patched(Ref, int)             {}
func (NopHooks) PatchSkipped(Ref, string)     {}
func (NopHooks) QueriesInvalidated([]string)  {}
func (NopHooks) QueryRejected(string, string) {}
func (NopHooks) ProviderSetRejected(string)   {}
func (NopHooks) GenBumpError(string, error)   {}

// MultiHooks calls every hook set in order.
type MultiHooks []Hooks

func (m MultiHooks) SelfHeal(k, r string) {
	for _, h := range m {
		h.SelfHeal(k, r)
	}
}

func (m MultiHooks) Evicted(ref Ref) {
	for _, h := range m {
		h.Evicted(ref)
	}
}

func (m MultiHooks) Patched(ref Ref, n int) {
	for _, h := range m {
		h.Patched(ref, n)
	}
}

func (m MultiHooks) PatchSkipped(ref Ref, r string) {
	for _, h := range m {
		h.PatchSkipped(ref, r)
	}
}

func (m MultiHooks) QueriesInvalidated(names []string) {
	for _, h := range m {
		h.QueriesInvalidated(names)
	}
}

func (m MultiHooks) QueryRejected(name, r string) {
	for _, h := range m {
		h.QueryRejected(name, r)
	}
}

func (m MultiHooks) ProviderSetRejected(k string) {
	for _, h := range m {
		h.ProviderSetRejected(k)
	}
}

func (m MultiHooks) GenBumpError(k string, err error) {
	for _, h := range m {
		h.GenBumpError(k, err)
	}
}
