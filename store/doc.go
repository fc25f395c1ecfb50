// Package store provides the persistence backends for chunks, edges and
// document records.
//
// Three concerns live here:
//   - vector stores (in-memory, Redis) answering similarity queries,
//   - graph stores (in-memory, FalkorDB, PostgreSQL) answering bounded
//     neighborhood traversals over the typed chunk graph,
//   - the document catalog (in-memory, SQLite) tracking ingestion state.
//
// All implementations satisfy the interfaces declared in the root package,
// so pipelines and retrievers never depend on a concrete backend. The
// in-memory variants double as test fixtures.
package store
