package docgraph

import "context"

// LayoutSource produces the external layout-analysis output for one
// document. Implementations wrap external document-analysis providers or
// local parsers; errors from malformed output surface as *LayoutParseError
// once the adapter validates the blocks.
type LayoutSource interface {
	Blocks(ctx context.Context) ([]RawBlock, error)
}

// Embedder turns chunk text into fixed-dimension vectors.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists and queries chunk embeddings. Chunks travel with
// their vectors so that similarity hits can be returned without a second
// lookup.
type VectorStore interface {
	Upsert(ctx context.Context, documentID string, chunks []Chunk, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, k int) ([]ChunkMatch, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// GraphStore persists the chunk graph and answers bounded traversals.
// Traversal never follows more than maxHops edges, which also bounds walks
// over cross-reference cycles.
type GraphStore interface {
	UpsertGraph(ctx context.Context, documentID string, nodes []Chunk, edges []Edge) error
	Neighbors(ctx context.Context, chunkID string, edgeTypes []EdgeType, maxHops int) ([]Neighbor, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// BlockNormalizer turns a layout source's raw output into ordered content
// blocks. The layout package provides the standard implementation.
type BlockNormalizer interface {
	FromSource(ctx context.Context, documentID string, src LayoutSource) ([]ContentBlock, error)
}

// Chunker splits a block sequence into coarse and fine chunks.
type Chunker interface {
	Chunk(documentID string, blocks []ContentBlock) (coarse, fine []Chunk, err error)
}

// RelationExtractor derives the typed edge set from a document's chunks.
type RelationExtractor interface {
	Extract(coarse, fine []Chunk) []Edge
}

// Catalog tracks per-document ingestion state.
type Catalog interface {
	Put(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context) ([]Document, error)
	Delete(ctx context.Context, id string) error
}
