package docgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/docgraph/log"
)

// PipelineConfig wires the components and tuning knobs of an ingestion
// pipeline.
type PipelineConfig struct {
	Adapter     BlockNormalizer
	Chunker     Chunker
	Extractor   RelationExtractor
	Embedder    Embedder
	VectorStore VectorStore
	GraphStore  GraphStore
	Catalog     Catalog

	// EmbedRetries is the number of embedding attempts before the document
	// fails with *EmbeddingError.
	EmbedRetries int
	// StoreRetries is the number of write attempts per store before
	// compensation kicks in.
	StoreRetries int
	// RetryBackoff is the initial wait between attempts; it doubles each
	// retry.
	RetryBackoff time.Duration

	Logger log.Logger
}

// compensationTimeout bounds the rollback deletion after a failed graph
// write. It is independent of the caller's deadline.
const compensationTimeout = 30 * time.Second

// Pipeline runs document ingestion end to end: layout normalization, dual
// chunking, relationship extraction, embedding and dual-store persistence.
// Documents are processed one at a time; concurrent Process calls serialize
// on an internal lock.
type Pipeline struct {
	config PipelineConfig
	mu     sync.Mutex
}

// NewPipeline creates a pipeline. Adapter, Chunker, Extractor, Embedder,
// VectorStore, GraphStore and Catalog are required.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	switch {
	case config.Adapter == nil:
		return nil, fmt.Errorf("adapter is required")
	case config.Chunker == nil:
		return nil, fmt.Errorf("chunker is required")
	case config.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case config.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case config.VectorStore == nil:
		return nil, fmt.Errorf("vector store is required")
	case config.GraphStore == nil:
		return nil, fmt.Errorf("graph store is required")
	case config.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	}

	if config.EmbedRetries <= 0 {
		config.EmbedRetries = 3
	}
	if config.StoreRetries <= 0 {
		config.StoreRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}

	return &Pipeline{config: config}, nil
}

// Process ingests one document under a fresh id and returns its catalog
// record. A failure at any stage leaves the vector and graph stores free of
// the document; only the catalog keeps the failed record.
func (p *Pipeline) Process(ctx context.Context, sourcePath string, src LayoutSource) (Document, error) {
	return p.ProcessWithID(ctx, uuid.NewString(), sourcePath, src)
}

// ProcessWithID ingests one document under a caller-chosen id.
// Re-processing an existing id supersedes its chunks and edges in both
// stores.
func (p *Pipeline) ProcessWithID(ctx context.Context, documentID, sourcePath string, src LayoutSource) (Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc := Document{
		ID:         documentID,
		SourcePath: sourcePath,
		IngestedAt: time.Now().UTC(),
		Status:     StatusPending,
	}

	chunkIDs, err := p.ingest(ctx, doc.ID, src)
	if err != nil {
		doc.Status = StatusFailed
		doc.FailReason = err.Error()
		if catErr := p.config.Catalog.Put(ctx, doc); catErr != nil {
			p.config.Logger.Error("failed to record failed document %s: %v", doc.ID, catErr)
		}
		return doc, err
	}

	doc.ChunkIDs = chunkIDs
	doc.Status = StatusProcessed
	if err := p.config.Catalog.Put(ctx, doc); err != nil {
		return doc, fmt.Errorf("failed to record document %s: %w", doc.ID, err)
	}

	p.config.Logger.Info("processed document %s: %d chunks", doc.ID, len(chunkIDs))
	return doc, nil
}

// ingest runs the stages that touch the vector and graph stores. Nothing
// is persisted unless every stage before persistence succeeds.
func (p *Pipeline) ingest(ctx context.Context, documentID string, src LayoutSource) ([]string, error) {
	blocks, err := p.config.Adapter.FromSource(ctx, documentID, src)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		p.config.Logger.Info("document %s is empty, nothing to persist", documentID)
		return nil, nil
	}

	coarse, fine, err := p.config.Chunker.Chunk(documentID, blocks)
	if err != nil {
		return nil, err
	}

	edges := p.config.Extractor.Extract(coarse, fine)

	chunks := make([]Chunk, 0, len(coarse)+len(fine))
	chunks = append(chunks, coarse...)
	chunks = append(chunks, fine...)

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, documentID, chunks, vectors, edges); err != nil {
		return nil, err
	}

	chunkIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
	}
	return chunkIDs, nil
}

// embedChunks embeds all chunk texts in one batch, retrying with doubling
// backoff before giving up with *EmbeddingError.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := p.withRetry(ctx, p.config.EmbedRetries, func() error {
		var embedErr error
		vectors, embedErr = p.config.Embedder.EmbedDocuments(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, &EmbeddingError{Attempts: p.config.EmbedRetries, Err: err}
	}
	if len(vectors) != len(chunks) {
		return nil, &EmbeddingError{
			Attempts: 1,
			Err:      fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}
	return vectors, nil
}

// persist writes both stores. If the vector write succeeds but the graph
// write fails, the vector slice is compensated away so the stores stay
// consistent.
func (p *Pipeline) persist(ctx context.Context, documentID string, chunks []Chunk, vectors [][]float32, edges []Edge) error {
	err := p.withRetry(ctx, p.config.StoreRetries, func() error {
		return p.config.VectorStore.Upsert(ctx, documentID, chunks, vectors)
	})
	if err != nil {
		return &StoreWriteError{Store: "vector", Err: err}
	}

	err = p.withRetry(ctx, p.config.StoreRetries, func() error {
		return p.config.GraphStore.UpsertGraph(ctx, documentID, chunks, edges)
	})
	if err != nil {
		// The graph write may have failed because ctx expired; the rollback
		// must still run, so it gets a detached context with its own budget.
		compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()

		compensated := true
		if delErr := p.config.VectorStore.DeleteByDocument(compCtx, documentID); delErr != nil {
			compensated = false
			p.config.Logger.Error("compensation failed for document %s: %v", documentID, delErr)
		}
		return &StoreWriteError{Store: "graph", Compensated: compensated, Err: err}
	}

	return nil
}

// Delete removes a document from both stores and the catalog. All three
// deletions are attempted even when one fails.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if err := p.config.VectorStore.DeleteByDocument(ctx, documentID); err != nil {
		errs = append(errs, fmt.Errorf("vector store: %w", err))
	}
	if err := p.config.GraphStore.DeleteByDocument(ctx, documentID); err != nil {
		errs = append(errs, fmt.Errorf("graph store: %w", err))
	}
	if err := p.config.Catalog.Delete(ctx, documentID); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	return errors.Join(errs...)
}

// NodeContext returns the bounded neighborhood around one chunk. An empty
// edgeTypes slice follows every edge type.
func (p *Pipeline) NodeContext(ctx context.Context, chunkID string, edgeTypes []EdgeType, maxHops int) ([]Neighbor, error) {
	return p.config.GraphStore.Neighbors(ctx, chunkID, edgeTypes, maxHops)
}

// withRetry runs fn up to attempts times with doubling backoff, honoring
// context cancellation between attempts.
func (p *Pipeline) withRetry(ctx context.Context, attempts int, fn func() error) error {
	backoff := p.config.RetryBackoff
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		p.config.Logger.Warn("attempt %d/%d failed, retrying in %s: %v", attempt, attempts, backoff, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return err
}
