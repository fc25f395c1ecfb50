package store

import (
	"context"
	"math"

	"github.com/smallnest/docgraph"
)

// MockEmbedder is a deterministic embedder for testing. The same text
// always yields the same normalized vector.
type MockEmbedder struct {
	Dimension int
	// FailAfter, when positive, fails every call after that many successes.
	FailAfter int
	// Err is returned on injected failures.
	Err error

	calls int
}

var _ docgraph.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a MockEmbedder with the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{Dimension: dimension}
}

// EmbedDocument generates a deterministic embedding for one text.
func (e *MockEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if err := e.maybeFail(); err != nil {
		return nil, err
	}
	return e.generateEmbedding(text), nil
}

// EmbedDocuments generates deterministic embeddings for a batch.
func (e *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.maybeFail(); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.generateEmbedding(text)
	}
	return embeddings, nil
}

func (e *MockEmbedder) maybeFail() error {
	e.calls++
	if e.FailAfter > 0 && e.calls > e.FailAfter {
		return e.Err
	}
	return nil
}

func (e *MockEmbedder) generateEmbedding(text string) []float32 {
	embedding := make([]float32, e.Dimension)

	for i := 0; i < e.Dimension; i++ {
		var sum float64
		for j, char := range text {
			sum += float64(char) * float64(i+j+1)
		}
		embedding[i] = float32(math.Sin(sum / 1000.0))
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}

	return embedding
}

// MockVectorStore wraps a MemoryVectorStore with error injection and call
// counting for failure-path tests.
type MockVectorStore struct {
	*MemoryVectorStore

	UpsertErr error
	QueryErr  error
	DeleteErr error

	UpsertCalls int
	DeleteCalls int
}

var _ docgraph.VectorStore = (*MockVectorStore)(nil)

// NewMockVectorStore creates a MockVectorStore with empty backing storage.
func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{MemoryVectorStore: NewMemoryVectorStore()}
}

func (s *MockVectorStore) Upsert(ctx context.Context, documentID string, chunks []docgraph.Chunk, vectors [][]float32) error {
	s.UpsertCalls++
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	return s.MemoryVectorStore.Upsert(ctx, documentID, chunks, vectors)
}

func (s *MockVectorStore) Query(ctx context.Context, vector []float32, k int) ([]docgraph.ChunkMatch, error) {
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	return s.MemoryVectorStore.Query(ctx, vector, k)
}

func (s *MockVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.DeleteCalls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	return s.MemoryVectorStore.DeleteByDocument(ctx, documentID)
}

// MockGraphStore wraps a MemoryGraphStore with error injection and call
// counting for failure-path tests.
type MockGraphStore struct {
	*MemoryGraphStore

	UpsertErr    error
	NeighborsErr error
	DeleteErr    error

	UpsertCalls int
	DeleteCalls int
}

var _ docgraph.GraphStore = (*MockGraphStore)(nil)

// NewMockGraphStore creates a MockGraphStore with empty backing storage.
func NewMockGraphStore() *MockGraphStore {
	return &MockGraphStore{MemoryGraphStore: NewMemoryGraphStore()}
}

func (s *MockGraphStore) UpsertGraph(ctx context.Context, documentID string, nodes []docgraph.Chunk, edges []docgraph.Edge) error {
	s.UpsertCalls++
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	return s.MemoryGraphStore.UpsertGraph(ctx, documentID, nodes, edges)
}

func (s *MockGraphStore) Neighbors(ctx context.Context, chunkID string, edgeTypes []docgraph.EdgeType, maxHops int) ([]docgraph.Neighbor, error) {
	if s.NeighborsErr != nil {
		return nil, s.NeighborsErr
	}
	return s.MemoryGraphStore.Neighbors(ctx, chunkID, edgeTypes, maxHops)
}

func (s *MockGraphStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.DeleteCalls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	return s.MemoryGraphStore.DeleteByDocument(ctx, documentID)
}
