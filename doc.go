// Package docgraph implements a Knowledge-Augmented Graph RAG pipeline:
// documents are normalized into layout-aware content blocks, split into a
// dual set of fine and coarse chunks, linked into a typed relationship
// graph, and stored so that queries can combine vector similarity with
// bounded graph traversal.
//
// # Architecture
//
// Leaves first:
//
//   - layout: normalizes external layout-analysis output into ordered
//     ContentBlocks with heading breadcrumbs. Markdown and HTML sources are
//     included; any external provider can be plugged in via LayoutSource.
//   - chunker: produces coarse section chunks and fine overlapping window
//     chunks; every fine chunk nests inside exactly one coarse chunk.
//   - relation: infers sequential, parent-child, cross-reference and
//     entity-co-occurrence edges between chunks.
//   - store: vector store and graph store adapters (in-memory, Redis,
//     FalkorDB, Postgres) plus a SQLite document catalog.
//   - retriever: answers queries with similarity candidates expanded
//     through the graph under a hop and score-decay budget.
//   - Pipeline (this package): runs one document end-to-end and keeps the
//     two stores consistent with saga-style compensation.
//
// # Quick start
//
//	pipe, err := docgraph.NewPipeline(docgraph.PipelineConfig{
//		Adapter:     layout.NewAdapter(),
//		Chunker:     chunker.NewDualChunker(),
//		Extractor:   relation.NewExtractor(),
//		Embedder:    embedder,
//		VectorStore: vectorStore,
//		GraphStore:  graphStore,
//		Catalog:     catalog,
//	})
//
//	src := layout.NewMarkdownSource("guide.md", data)
//	doc, err := pipe.Process(ctx, "guide.md", src)
//
//	orch := retriever.NewOrchestrator(embedder, vectorStore, graphStore)
//	results, err := orch.Retrieve(ctx, "how are sections linked?")
//
// Embedding models, vector-index internals and OCR belong to the external
// collaborators behind the Embedder, VectorStore and LayoutSource
// interfaces.
package docgraph // import "github.com/smallnest/docgraph"
