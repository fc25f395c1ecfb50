package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/smallnest/docgraph"
)

// MemoryVectorStore is an in-memory vector store. It is safe for concurrent
// use and doubles as the test backend.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	entries map[string]vectorEntry
	byDoc   map[string][]string
}

type vectorEntry struct {
	chunk  docgraph.Chunk
	vector []float32
}

var _ docgraph.VectorStore = (*MemoryVectorStore)(nil)

// NewMemoryVectorStore creates an empty in-memory vector store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		entries: make(map[string]vectorEntry),
		byDoc:   make(map[string][]string),
	}
}

// Upsert stores chunks with their embeddings, superseding the document's
// previous entries.
func (s *MemoryVectorStore) Upsert(ctx context.Context, documentID string, chunks []docgraph.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors must have same length: %d != %d", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byDoc[documentID] {
		delete(s.entries, id)
	}
	s.byDoc[documentID] = nil

	for i, chunk := range chunks {
		s.byDoc[documentID] = append(s.byDoc[documentID], chunk.ID)
		s.entries[chunk.ID] = vectorEntry{chunk: chunk, vector: vectors[i]}
	}
	return nil
}

// Query returns the k most similar chunks by cosine similarity, highest
// first, ties broken by ascending chunk id.
func (s *MemoryVectorStore) Query(ctx context.Context, vector []float32, k int) ([]docgraph.ChunkMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]docgraph.ChunkMatch, 0, len(s.entries))
	for _, entry := range s.entries {
		matches = append(matches, docgraph.ChunkMatch{
			Chunk: entry.chunk,
			Score: cosineSimilarity(vector, entry.vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Chunk.ID < matches[j].Chunk.ID
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// DeleteByDocument removes every entry belonging to the document.
func (s *MemoryVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byDoc[documentID] {
		delete(s.entries, id)
	}
	delete(s.byDoc, documentID)
	return nil
}

// Len reports the number of stored chunks.
func (s *MemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// MemoryGraphStore is an in-memory graph store with breadth-first
// neighborhood traversal.
type MemoryGraphStore struct {
	mu       sync.RWMutex
	nodes    map[string]docgraph.Chunk
	adjacent map[string][]docgraph.Edge
	byDoc    map[string]docSlice
}

type docSlice struct {
	nodeIDs []string
	edgeIDs map[string]bool
}

var _ docgraph.GraphStore = (*MemoryGraphStore)(nil)

// NewMemoryGraphStore creates an empty in-memory graph store.
func NewMemoryGraphStore() *MemoryGraphStore {
	return &MemoryGraphStore{
		nodes:    make(map[string]docgraph.Chunk),
		adjacent: make(map[string][]docgraph.Edge),
		byDoc:    make(map[string]docSlice),
	}
}

// UpsertGraph stores a document's chunk nodes and edges, replacing any
// previous graph slice for the same document.
func (s *MemoryGraphStore) UpsertGraph(ctx context.Context, documentID string, nodes []docgraph.Chunk, edges []docgraph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeDocumentLocked(documentID)

	slice := docSlice{edgeIDs: make(map[string]bool)}
	for _, node := range nodes {
		s.nodes[node.ID] = node
		slice.nodeIDs = append(slice.nodeIDs, node.ID)
	}
	for _, edge := range edges {
		if slice.edgeIDs[edge.ID] {
			continue
		}
		slice.edgeIDs[edge.ID] = true
		// Traversal is undirected: an edge is reachable from both of its
		// endpoints regardless of its Directed flag.
		s.adjacent[edge.Source] = append(s.adjacent[edge.Source], edge)
		s.adjacent[edge.Target] = append(s.adjacent[edge.Target], edge)
	}
	s.byDoc[documentID] = slice

	return nil
}

// Neighbors walks at most maxHops edges out from chunkID and returns each
// chunk reached once, at its shortest hop distance. An empty edgeTypes
// slice follows every edge type.
func (s *MemoryGraphStore) Neighbors(ctx context.Context, chunkID string, edgeTypes []docgraph.EdgeType, maxHops int) ([]docgraph.Neighbor, error) {
	if maxHops < 1 {
		return nil, nil
	}

	allowed := make(map[docgraph.EdgeType]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		allowed[t] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.nodes[chunkID]; !exists {
		return nil, fmt.Errorf("chunk not found: %s", chunkID)
	}

	visited := map[string]bool{chunkID: true}
	frontier := []string{chunkID}
	var out []docgraph.Neighbor

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			edges := append([]docgraph.Edge(nil), s.adjacent[id]...)
			sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

			for _, edge := range edges {
				if len(allowed) > 0 && !allowed[edge.Type] {
					continue
				}
				other := edge.Target
				if other == id {
					other = edge.Source
				}
				if visited[other] {
					continue
				}
				visited[other] = true

				chunk, exists := s.nodes[other]
				if !exists {
					continue
				}
				out = append(out, docgraph.Neighbor{
					Chunk:       chunk,
					Edge:        edge,
					HopDistance: hop,
				})
				next = append(next, other)
			}
		}
		frontier = next
	}

	return out, nil
}

// DeleteByDocument removes the document's nodes and all their incident
// edges.
func (s *MemoryGraphStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeDocumentLocked(documentID)
	return nil
}

func (s *MemoryGraphStore) removeDocumentLocked(documentID string) {
	slice, exists := s.byDoc[documentID]
	if !exists {
		return
	}
	for _, id := range slice.nodeIDs {
		delete(s.nodes, id)
		delete(s.adjacent, id)
	}
	for id, edges := range s.adjacent {
		kept := edges[:0]
		for _, edge := range edges {
			if !slice.edgeIDs[edge.ID] {
				kept = append(kept, edge)
			}
		}
		s.adjacent[id] = kept
	}
	delete(s.byDoc, documentID)
}

// MemoryCatalog is an in-memory document catalog.
type MemoryCatalog struct {
	mu   sync.RWMutex
	docs map[string]docgraph.Document
}

var _ docgraph.Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{docs: make(map[string]docgraph.Document)}
}

// Put stores or replaces a document record.
func (c *MemoryCatalog) Put(ctx context.Context, doc docgraph.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.ID] = doc
	return nil
}

// Get returns a document record by id.
func (c *MemoryCatalog) Get(ctx context.Context, id string) (docgraph.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, exists := c.docs[id]
	if !exists {
		return docgraph.Document{}, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

// List returns all document records ordered by id.
func (c *MemoryCatalog) List(ctx context.Context) ([]docgraph.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]docgraph.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a document record. Deleting an unknown id is a no-op.
func (c *MemoryCatalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, id)
	return nil
}

// cosineSimilarity calculates cosine similarity between two float32 vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
