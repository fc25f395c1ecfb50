package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/docgraph"
	"github.com/smallnest/docgraph/store"
)

// stubEmbedder returns a fixed query vector so similarity scores are fully
// controlled by the vectors stored alongside the chunks.
type stubEmbedder struct {
	vector []float32
	delay  time.Duration
}

func (e *stubEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector, nil
}

func (e *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func queryChunk(id string) docgraph.Chunk {
	return docgraph.Chunk{
		ID:          id,
		DocumentID:  "doc1",
		Granularity: docgraph.Coarse,
		Text:        "text of " + id,
	}
}

func TestOrchestrator_VectorOnly(t *testing.T) {
	ctx := context.Background()
	vectors := store.NewMemoryVectorStore()
	require.NoError(t, vectors.Upsert(ctx, "doc1",
		[]docgraph.Chunk{queryChunk("c1"), queryChunk("c2")},
		[][]float32{{1, 0}, {0, 1}},
	))

	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, vectors, nil)

	results, err := o.Retrieve(ctx, "anything")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, docgraph.ProvenanceVectorMatch, results[0].Provenance)
	assert.Equal(t, 0, results[0].HopDistance)
}

func TestOrchestrator_GraphExpansion(t *testing.T) {
	ctx := context.Background()

	t.Run("neighbors gain decayed scores", func(t *testing.T) {
		vectors := store.NewMemoryVectorStore()
		require.NoError(t, vectors.Upsert(ctx, "doc1",
			[]docgraph.Chunk{queryChunk("c1")}, [][]float32{{1, 0}},
		))

		graph := store.NewMemoryGraphStore()
		edge := docgraph.Edge{
			ID:     docgraph.EdgeID("c1", "c2", docgraph.EdgeParentChild),
			Source: "c1", Target: "c2",
			Type: docgraph.EdgeParentChild, Weight: 0.8, Directed: true,
		}
		require.NoError(t, graph.UpsertGraph(ctx, "doc1",
			[]docgraph.Chunk{queryChunk("c1"), queryChunk("c2")},
			[]docgraph.Edge{edge},
		))

		o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, vectors, graph)

		results, err := o.Retrieve(ctx, "anything")
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "c1", results[0].Chunk.ID)
		assert.Equal(t, "c2", results[1].Chunk.ID)
		// candidate score 1.0 times edge weight 0.8 times hop decay 0.5.
		assert.InDelta(t, 0.4, results[1].Score, 1e-6)
		assert.Equal(t, docgraph.ProvenanceGraphExpansion, results[1].Provenance)
		assert.Equal(t, 1, results[1].HopDistance)
	})

	t.Run("sequential edges reach earlier and later sections", func(t *testing.T) {
		intro := queryChunk("doc1:coarse:0000")
		methods := queryChunk("doc1:coarse:0001")
		results := queryChunk("doc1:coarse:0002")

		vectors := store.NewMemoryVectorStore()
		require.NoError(t, vectors.Upsert(ctx, "doc1",
			[]docgraph.Chunk{methods}, [][]float32{{1, 0}},
		))

		graph := store.NewMemoryGraphStore()
		edges := []docgraph.Edge{
			{
				ID:     docgraph.EdgeID(intro.ID, methods.ID, docgraph.EdgeSequential),
				Source: intro.ID, Target: methods.ID,
				Type: docgraph.EdgeSequential, Weight: 1.0, Directed: true,
			},
			{
				ID:     docgraph.EdgeID(methods.ID, results.ID, docgraph.EdgeSequential),
				Source: methods.ID, Target: results.ID,
				Type: docgraph.EdgeSequential, Weight: 1.0, Directed: true,
			},
		}
		require.NoError(t, graph.UpsertGraph(ctx, "doc1",
			[]docgraph.Chunk{intro, methods, results}, edges,
		))

		config := docgraph.DefaultRetrievalConfig()
		config.EdgeTypes = []docgraph.EdgeType{docgraph.EdgeSequential}

		o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, vectors, graph, WithConfig(config))

		got, err := o.Retrieve(ctx, "methods")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, methods.ID, got[0].Chunk.ID)

		// Both neighbors sit one hop out at equal weight, so ids break the tie.
		assert.Equal(t, intro.ID, got[1].Chunk.ID)
		assert.Equal(t, results.ID, got[2].Chunk.ID)
		assert.InDelta(t, 0.5, got[1].Score, 1e-6)
		assert.InDelta(t, 0.5, got[2].Score, 1e-6)
	})

	t.Run("direct matches win over expanded duplicates", func(t *testing.T) {
		vectors := store.NewMemoryVectorStore()
		require.NoError(t, vectors.Upsert(ctx, "doc1",
			[]docgraph.Chunk{queryChunk("c1"), queryChunk("c2")},
			[][]float32{{1, 0}, {0.9, 0.1}},
		))

		graph := store.NewMemoryGraphStore()
		edge := docgraph.Edge{
			ID:     docgraph.EdgeID("c1", "c2", docgraph.EdgeParentChild),
			Source: "c1", Target: "c2",
			Type: docgraph.EdgeParentChild, Weight: 1.0, Directed: true,
		}
		require.NoError(t, graph.UpsertGraph(ctx, "doc1",
			[]docgraph.Chunk{queryChunk("c1"), queryChunk("c2")},
			[]docgraph.Edge{edge},
		))

		o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, vectors, graph)

		got, err := o.Retrieve(ctx, "anything")
		require.NoError(t, err)
		require.Len(t, got, 2)
		// c2's direct similarity beats its 0.5 expanded score, so the
		// vector-match provenance survives the merge.
		assert.Equal(t, docgraph.ProvenanceVectorMatch, got[1].Provenance)
		assert.Greater(t, got[1].Score, 0.5)
	})
}

// flakyGraphStore serves a fixed number of traversals before failing.
type flakyGraphStore struct {
	*store.MemoryGraphStore
	failAfter int
	calls     int
}

func (g *flakyGraphStore) Neighbors(ctx context.Context, chunkID string, edgeTypes []docgraph.EdgeType, maxHops int) ([]docgraph.Neighbor, error) {
	g.calls++
	if g.calls > g.failAfter {
		return nil, errors.New("connection reset")
	}
	return g.MemoryGraphStore.Neighbors(ctx, chunkID, edgeTypes, maxHops)
}

func TestOrchestrator_DegradedMode(t *testing.T) {
	ctx := context.Background()

	t.Run("graph store down serves vector-only results", func(t *testing.T) {
		vectors := store.NewMemoryVectorStore()
		require.NoError(t, vectors.Upsert(ctx, "doc1",
			[]docgraph.Chunk{queryChunk("c1")}, [][]float32{{1, 0}},
		))

		graph := store.NewMockGraphStore()
		graph.NeighborsErr = errors.New("connection refused")

		o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, vectors, graph)

		results, err := o.Retrieve(ctx, "anything")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, docgraph.ProvenanceVectorMatch, results[0].Provenance)
	})

	t.Run("mid-expansion failure discards earlier expansions too", func(t *testing.T) {
		vectors := store.NewMemoryVectorStore()
		require.NoError(t, vectors.Upsert(ctx, "doc1",
			[]docgraph.Chunk{queryChunk("c1"), queryChunk("c2")},
			[][]float32{{1, 0}, {0.9, 0.1}},
		))

		memGraph := store.NewMemoryGraphStore()
		edge := docgraph.Edge{
			ID:     docgraph.EdgeID("c1", "c3", docgraph.EdgeParentChild),
			Source: "c1", Target: "c3",
			Type: docgraph.EdgeParentChild, Weight: 1.0, Directed: true,
		}
		require.NoError(t, memGraph.UpsertGraph(ctx, "doc1",
			[]docgraph.Chunk{queryChunk("c1"), queryChunk("c2"), queryChunk("c3")},
			[]docgraph.Edge{edge},
		))

		// First candidate expands fine and reaches c3; the second traversal
		// fails, so c3 must not appear in the answer.
		graph := &flakyGraphStore{MemoryGraphStore: memGraph, failAfter: 1}
		o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, vectors, graph)

		results, err := o.Retrieve(ctx, "anything")
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, result := range results {
			assert.NotEqual(t, "c3", result.Chunk.ID)
			assert.Equal(t, docgraph.ProvenanceVectorMatch, result.Provenance)
		}
	})
}

func TestOrchestrator_EmptyCandidates(t *testing.T) {
	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, store.NewMemoryVectorStore(), store.NewMemoryGraphStore())

	results, err := o.Retrieve(context.Background(), "nothing matches")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestOrchestrator_Timeout(t *testing.T) {
	config := docgraph.DefaultRetrievalConfig()
	config.Timeout = time.Nanosecond

	embedder := &stubEmbedder{vector: []float32{1, 0}, delay: 5 * time.Millisecond}
	o := NewOrchestrator(embedder, store.NewMemoryVectorStore(), nil, WithConfig(config))

	_, err := o.Retrieve(context.Background(), "anything")
	require.Error(t, err)

	var timeout *docgraph.RetrievalTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, time.Nanosecond, timeout.Budget)
}

func TestOrchestrator_Limit(t *testing.T) {
	ctx := context.Background()
	vectors := store.NewMemoryVectorStore()
	require.NoError(t, vectors.Upsert(ctx, "doc1",
		[]docgraph.Chunk{queryChunk("c1"), queryChunk("c2"), queryChunk("c3")},
		[][]float32{{1, 0}, {0.9, 0.1}, {0.8, 0.2}},
	))

	config := docgraph.DefaultRetrievalConfig()
	config.Limit = 2

	o := NewOrchestrator(&stubEmbedder{vector: []float32{1, 0}}, vectors, nil, WithConfig(config))

	results, err := o.Retrieve(ctx, "anything")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
