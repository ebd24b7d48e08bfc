// Package run defines the workflow run aggregate: the Run instance and its
// status machine, the append-only per-run Context, execution Records,
// Suspensions, async step state, and the persistence contracts the engine
// consumes.
//
// The engine is persistence-agnostic. It depends only on the interfaces in
// this package; the in-memory backend is sufficient for tests and any
// durable backend (Redis, MongoDB, PostgreSQL) swaps in with zero engine
// changes.
package run
