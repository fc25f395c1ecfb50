package docgraph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/docgraph"
	"github.com/smallnest/docgraph/chunker"
	"github.com/smallnest/docgraph/layout"
	"github.com/smallnest/docgraph/relation"
	"github.com/smallnest/docgraph/store"
)

const reportMarkdown = `# Introduction

Alpha beta gamma delta epsilon zeta eta theta.

# Methods

We describe the gradient descent procedure and its convergence behavior.
`

// rawSource feeds canned layout output into the pipeline.
type rawSource struct {
	blocks []docgraph.RawBlock
	err    error
}

func (s *rawSource) Blocks(ctx context.Context) ([]docgraph.RawBlock, error) {
	return s.blocks, s.err
}

// failingEmbedder always fails, counting attempts.
type failingEmbedder struct {
	calls int
}

func (e *failingEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("rate limited")
}

func (e *failingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	return nil, errors.New("rate limited")
}

// deadlineVectorStore honors context expiry on every call, like a real
// networked store.
type deadlineVectorStore struct {
	*store.MemoryVectorStore
}

func (s *deadlineVectorStore) Upsert(ctx context.Context, documentID string, chunks []docgraph.Chunk, vectors [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryVectorStore.Upsert(ctx, documentID, chunks, vectors)
}

func (s *deadlineVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryVectorStore.DeleteByDocument(ctx, documentID)
}

// stalledGraphStore blocks every write until the caller's deadline passes.
type stalledGraphStore struct {
	*store.MemoryGraphStore
}

func (s *stalledGraphStore) UpsertGraph(ctx context.Context, documentID string, nodes []docgraph.Chunk, edges []docgraph.Edge) error {
	<-ctx.Done()
	return ctx.Err()
}

type pipelineFixture struct {
	pipeline *docgraph.Pipeline
	vectors  *store.MockVectorStore
	graph    *store.MockGraphStore
	catalog  *store.MemoryCatalog
}

func newPipelineFixture(t *testing.T, mutate func(*docgraph.PipelineConfig)) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		vectors: store.NewMockVectorStore(),
		graph:   store.NewMockGraphStore(),
		catalog: store.NewMemoryCatalog(),
	}

	config := docgraph.PipelineConfig{
		Adapter:      layout.NewAdapter(),
		Chunker:      chunker.NewDualChunker(),
		Extractor:    relation.NewExtractor(),
		Embedder:     store.NewMockEmbedder(8),
		VectorStore:  f.vectors,
		GraphStore:   f.graph,
		Catalog:      f.catalog,
		RetryBackoff: time.Millisecond,
	}
	if mutate != nil {
		mutate(&config)
	}

	pipeline, err := docgraph.NewPipeline(config)
	require.NoError(t, err)
	f.pipeline = pipeline
	return f
}

func TestNewPipeline_RequiresComponents(t *testing.T) {
	_, err := docgraph.NewPipeline(docgraph.PipelineConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adapter")
}

func TestPipeline_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("markdown document lands in both stores and the catalog", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		src := layout.NewMarkdownSource("report.md", []byte(reportMarkdown))

		doc, err := f.pipeline.Process(ctx, "report.md", src)
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, docgraph.StatusProcessed, doc.Status)
		assert.NotEmpty(t, doc.ChunkIDs)

		got, err := f.catalog.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ChunkIDs, got.ChunkIDs)

		assert.Equal(t, len(doc.ChunkIDs), f.vectors.Len())
		assert.Equal(t, 1, f.vectors.UpsertCalls)
		assert.Equal(t, 1, f.graph.UpsertCalls)

		// The first coarse chunk must be reachable in the graph.
		neighbors, err := f.pipeline.NodeContext(ctx, doc.ChunkIDs[0], nil, 1)
		require.NoError(t, err)
		assert.NotEmpty(t, neighbors)
	})

	t.Run("empty document is processed without store writes", func(t *testing.T) {
		f := newPipelineFixture(t, nil)

		doc, err := f.pipeline.Process(ctx, "empty.md", &rawSource{})
		require.NoError(t, err)
		assert.Equal(t, docgraph.StatusProcessed, doc.Status)
		assert.Empty(t, doc.ChunkIDs)
		assert.Zero(t, f.vectors.UpsertCalls)
		assert.Zero(t, f.graph.UpsertCalls)
	})

	t.Run("malformed layout fails the document before any store write", func(t *testing.T) {
		f := newPipelineFixture(t, nil)
		src := &rawSource{blocks: []docgraph.RawBlock{
			{Kind: "figure", Text: "unsupported", Page: 1},
		}}

		doc, err := f.pipeline.Process(ctx, "bad.md", src)
		require.Error(t, err)

		var parseErr *docgraph.LayoutParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, 0, parseErr.BlockIndex)

		assert.Zero(t, f.vectors.UpsertCalls)
		assert.Zero(t, f.graph.UpsertCalls)

		got, catErr := f.catalog.Get(ctx, doc.ID)
		require.NoError(t, catErr)
		assert.Equal(t, docgraph.StatusFailed, got.Status)
		assert.NotEmpty(t, got.FailReason)
	})
}

func TestPipeline_FailurePaths(t *testing.T) {
	ctx := context.Background()
	src := layout.NewMarkdownSource("report.md", []byte(reportMarkdown))

	t.Run("embedding failure exhausts retries and persists nothing", func(t *testing.T) {
		embedder := &failingEmbedder{}
		f := newPipelineFixture(t, func(c *docgraph.PipelineConfig) {
			c.Embedder = embedder
			c.EmbedRetries = 3
		})

		_, err := f.pipeline.Process(ctx, "report.md", src)
		require.Error(t, err)

		var embedErr *docgraph.EmbeddingError
		require.ErrorAs(t, err, &embedErr)
		assert.Equal(t, 3, embedErr.Attempts)
		assert.Equal(t, 3, embedder.calls)
		assert.Zero(t, f.vectors.UpsertCalls)
		assert.Zero(t, f.graph.UpsertCalls)
	})

	t.Run("vector write failure stops before the graph write", func(t *testing.T) {
		f := newPipelineFixture(t, func(c *docgraph.PipelineConfig) {
			c.StoreRetries = 2
		})
		f.vectors.UpsertErr = errors.New("connection reset")

		_, err := f.pipeline.Process(ctx, "report.md", src)
		require.Error(t, err)

		var storeErr *docgraph.StoreWriteError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "vector", storeErr.Store)
		assert.Equal(t, 2, f.vectors.UpsertCalls)
		assert.Zero(t, f.graph.UpsertCalls)
	})

	t.Run("compensation survives the ingestion deadline", func(t *testing.T) {
		vectors := &deadlineVectorStore{MemoryVectorStore: store.NewMemoryVectorStore()}
		graph := &stalledGraphStore{MemoryGraphStore: store.NewMemoryGraphStore()}
		f := newPipelineFixture(t, func(c *docgraph.PipelineConfig) {
			c.VectorStore = vectors
			c.GraphStore = graph
			c.StoreRetries = 1
		})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := f.pipeline.Process(ctx, "report.md", src)
		require.Error(t, err)

		var storeErr *docgraph.StoreWriteError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "graph", storeErr.Store)
		// The caller's context is dead by now, yet the vector slice must
		// still have been rolled back.
		assert.True(t, storeErr.Compensated)
		assert.Zero(t, vectors.Len())
	})

	t.Run("graph write failure compensates the vector write", func(t *testing.T) {
		f := newPipelineFixture(t, func(c *docgraph.PipelineConfig) {
			c.StoreRetries = 2
		})
		f.graph.UpsertErr = errors.New("connection reset")

		_, err := f.pipeline.Process(ctx, "report.md", src)
		require.Error(t, err)

		var storeErr *docgraph.StoreWriteError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "graph", storeErr.Store)
		assert.True(t, storeErr.Compensated)
		assert.Equal(t, 2, f.graph.UpsertCalls)
		assert.Equal(t, 1, f.vectors.DeleteCalls)
		assert.Zero(t, f.vectors.Len())
	})
}

func TestPipeline_Reprocessing(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)

	first := layout.NewMarkdownSource("report.md", []byte(reportMarkdown))
	doc, err := f.pipeline.ProcessWithID(ctx, "doc1", "report.md", first)
	require.NoError(t, err)
	require.NotEmpty(t, doc.ChunkIDs)

	second := layout.NewMarkdownSource("report.md", []byte("# Summary\n\nOne short line.\n"))
	redone, err := f.pipeline.ProcessWithID(ctx, "doc1", "report.md", second)
	require.NoError(t, err)

	assert.NotEqual(t, len(doc.ChunkIDs), len(redone.ChunkIDs))
	assert.Equal(t, len(redone.ChunkIDs), f.vectors.Len())

	got, err := f.catalog.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, redone.ChunkIDs, got.ChunkIDs)
}

func TestPipeline_Delete(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)

	src := layout.NewMarkdownSource("report.md", []byte(reportMarkdown))
	doc, err := f.pipeline.ProcessWithID(ctx, "doc1", "report.md", src)
	require.NoError(t, err)
	require.NotEmpty(t, doc.ChunkIDs)

	require.NoError(t, f.pipeline.Delete(ctx, "doc1"))

	assert.Zero(t, f.vectors.Len())
	_, err = f.catalog.Get(ctx, "doc1")
	assert.Error(t, err)
	_, err = f.pipeline.NodeContext(ctx, doc.ChunkIDs[0], nil, 1)
	assert.Error(t, err)
}
