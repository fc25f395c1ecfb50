package docgraph

import (
	"time"
)

// BlockKind identifies the layout type of a content block.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockHeading   BlockKind = "heading"
	BlockTable     BlockKind = "table"
	BlockListItem  BlockKind = "list-item"
)

// BBox is the position rectangle of a block on its page.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RawBlock is one element of the external layout-analysis output, before
// normalization. Heading blocks carry a Level; other kinds leave it zero.
type RawBlock struct {
	Kind  string  `json:"kind"`
	Text  string  `json:"text"`
	Page  int     `json:"page"`
	BBox  BBox    `json:"bbox"`
	Level int     `json:"level,omitempty"`
}

// ContentBlock is a normalized, typed block of document content with
// reading-order position and a section breadcrumb. Blocks are created once
// per document by the layout adapter and are immutable afterwards.
type ContentBlock struct {
	ID          string    `json:"id"`
	Kind        BlockKind `json:"kind"`
	Text        string    `json:"text"`
	Page        int       `json:"page"`
	BBox        BBox      `json:"bbox"`
	Level       int       `json:"level,omitempty"`
	HeadingPath []string  `json:"heading_path"`
	OrderIndex  int       `json:"order_index"`
}

// Granularity distinguishes fine (small, high-precision) chunks from coarse
// (large, section-level) chunks.
type Granularity string

const (
	Fine   Granularity = "fine"
	Coarse Granularity = "coarse"
)

// Span records which content blocks contributed to a chunk. Block order
// indexes inside a span are contiguous and monotonically increasing.
type Span struct {
	BlockIDs []string `json:"block_ids"`
	First    int      `json:"first"`
	Last     int      `json:"last"`
}

// Contains reports whether other is fully nested inside this span.
func (s Span) Contains(other Span) bool {
	return other.First >= s.First && other.Last <= s.Last
}

// Chunk is a retrieval unit of document text. Chunks are immutable after
// creation; re-processing a document supersedes its chunks instead of
// mutating them.
type Chunk struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"document_id"`
	Granularity Granularity `json:"granularity"`
	Text        string      `json:"text"`
	HeadingPath []string    `json:"heading_path"`
	Span        Span        `json:"span"`
	SectionID   string      `json:"section_id"`
}

// EdgeType identifies the relationship a graph edge represents.
type EdgeType string

const (
	EdgeSequential   EdgeType = "sequential"
	EdgeParentChild  EdgeType = "parent-child"
	EdgeCrossRef     EdgeType = "cross-reference"
	EdgeCoOccurrence EdgeType = "entity-co-occurrence"
)

// Edge is a typed, weighted relationship between two chunks. No duplicate
// (source, target, type) triple exists within a document's edge set.
type Edge struct {
	ID       string   `json:"id"`
	Source   string   `json:"source_chunk_id"`
	Target   string   `json:"target_chunk_id"`
	Type     EdgeType `json:"type"`
	Weight   float64  `json:"weight"`
	Directed bool     `json:"directed"`
}

// EdgeID builds the deterministic identifier for a (source, target, type)
// triple. Extraction must be a pure function of chunk contents, so edge ids
// cannot contain random components.
func EdgeID(source, target string, t EdgeType) string {
	return source + "->" + target + ":" + string(t)
}

// DocumentStatus tracks ingestion progress for a document.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusProcessed DocumentStatus = "processed"
	StatusFailed    DocumentStatus = "failed"
)

// Document is the aggregate owning all chunks and edges produced from one
// source file. Deleting a document cascades deletion through both stores.
type Document struct {
	ID         string         `json:"id"`
	SourcePath string         `json:"source_path"`
	IngestedAt time.Time      `json:"ingested_at"`
	ChunkIDs   []string       `json:"chunk_ids"`
	Status     DocumentStatus `json:"status"`
	FailReason string         `json:"fail_reason,omitempty"`
}

// Provenance tags how a retrieval result was reached.
type Provenance string

const (
	ProvenanceVectorMatch    Provenance = "vector-match"
	ProvenanceGraphExpansion Provenance = "graph-expansion"
)

// RetrievalResult is one ranked entry of a query answer. Results are
// ephemeral and never persisted.
type RetrievalResult struct {
	Chunk      Chunk      `json:"chunk"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
	// HopDistance is zero for direct vector matches and the traversal
	// distance for graph-expanded results.
	HopDistance int `json:"hop_distance,omitempty"`
}

// ChunkMatch is a similarity-search hit returned by a vector store.
type ChunkMatch struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Neighbor is one graph-traversal hit returned by a graph store.
type Neighbor struct {
	Chunk       Chunk `json:"chunk"`
	Edge        Edge  `json:"edge"`
	HopDistance int   `json:"hop_distance"`
}
