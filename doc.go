// Package entcache implements a normalized entity cache for the billing
// console, plus the reconciliation primitives mutations use to keep it
// consistent without a full refetch.
//
// Components:
//   - Provider: byte store with TTL (Ristretto, BigCache, Redis).
//   - Codec: (de)serializes snapshots <-> []byte (JSON, CBOR, msgpack, protobuf).
//   - GenStore: generation counter per entity and per query name. Local by
//     default, Redis for multi-replica consoles.
//
// Keys:
//
//	entity:<ns>:<Type>:<ID>     - one entity snapshot
//	query:<ns>:<name>:<hash>    - list query result (member refs + gens)
//	qgen:<ns>:<name>            - generation of a query name (refetch list)
//
// Reconciliation primitives:
//
//	store.Evict(ctx, ref)          // bump gen + delete; lists holding ref go stale
//	store.Patch(ctx, ref, fields)  // whole-snapshot replace with fields overwritten
//	store.InvalidateQueries(ctx, "getCustomerWalletList")
//
// Server reads use the CAS pattern:
//
//	obs := store.SnapshotGen(ref) // before the network read
//	snap := fetch(ref)
//	_ = store.WriteWithGen(ctx, ref, snap, obs, 0) // write iff gen == obs
package entcache
