// Package retriever answers queries by combining vector similarity search
// with bounded graph expansion over the chunk graph.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/smallnest/docgraph"
	"github.com/smallnest/docgraph/log"
)

// Orchestrator runs the two-stage retrieval flow: top-K vector candidates
// first, then bounded-hop expansion through the graph store. When the graph
// store is unavailable it degrades to vector-only results instead of
// failing the query.
type Orchestrator struct {
	embedder    docgraph.Embedder
	vectorStore docgraph.VectorStore
	graphStore  docgraph.GraphStore
	config      docgraph.RetrievalConfig
	logger      log.Logger
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConfig replaces the default retrieval configuration.
func WithConfig(config docgraph.RetrievalConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.config = config
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates a retrieval orchestrator. The graph store may be
// nil, in which case every query runs in vector-only mode.
func NewOrchestrator(embedder docgraph.Embedder, vectorStore docgraph.VectorStore, graphStore docgraph.GraphStore, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		embedder:    embedder,
		vectorStore: vectorStore,
		graphStore:  graphStore,
		config:      docgraph.DefaultRetrievalConfig(),
		logger:      log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Retrieve answers a query with the orchestrator's configuration.
func (o *Orchestrator) Retrieve(ctx context.Context, query string) ([]docgraph.RetrievalResult, error) {
	return o.RetrieveWithConfig(ctx, query, o.config)
}

// RetrieveWithConfig answers a query with an explicit configuration. A
// query matching nothing returns an empty list, not an error. Exceeding
// the configured timeout returns *docgraph.RetrievalTimeout with no
// partial results.
func (o *Orchestrator) RetrieveWithConfig(ctx context.Context, query string, config docgraph.RetrievalConfig) ([]docgraph.RetrievalResult, error) {
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	candidates, err := o.vectorCandidates(ctx, query, config)
	if err != nil {
		return nil, o.timeoutOr(ctx, config, err)
	}
	if len(candidates) == 0 {
		return []docgraph.RetrievalResult{}, nil
	}

	merged := make(map[string]docgraph.RetrievalResult, len(candidates))
	for _, match := range candidates {
		keepBest(merged, docgraph.RetrievalResult{
			Chunk:      match.Chunk,
			Score:      match.Score,
			Provenance: docgraph.ProvenanceVectorMatch,
		})
	}

	if o.graphStore != nil && config.MaxHops > 0 {
		expanded, err := o.expand(ctx, candidates, config)
		if err != nil {
			if timeout := asTimeout(ctx, config, err); timeout != nil {
				return nil, timeout
			}
			// Graph store down: serve vector-only results rather than fail
			// the query. Expansion is all-or-nothing, so nothing reached
			// through the graph leaks into the answer.
			o.logger.Warn("graph expansion unavailable, serving vector-only results: %v", err)
		} else {
			for _, result := range expanded {
				keepBest(merged, result)
			}
		}
	}

	return rank(merged, config.Limit), nil
}

// RetrieveVector answers a query from the vector store alone.
func (o *Orchestrator) RetrieveVector(ctx context.Context, query string) ([]docgraph.RetrievalResult, error) {
	config := o.config
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	candidates, err := o.vectorCandidates(ctx, query, config)
	if err != nil {
		return nil, o.timeoutOr(ctx, config, err)
	}

	merged := make(map[string]docgraph.RetrievalResult, len(candidates))
	for _, match := range candidates {
		keepBest(merged, docgraph.RetrievalResult{
			Chunk:      match.Chunk,
			Score:      match.Score,
			Provenance: docgraph.ProvenanceVectorMatch,
		})
	}

	return rank(merged, config.Limit), nil
}

func (o *Orchestrator) vectorCandidates(ctx context.Context, query string, config docgraph.RetrievalConfig) ([]docgraph.ChunkMatch, error) {
	vector, err := o.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	k := config.K
	if k <= 0 {
		k = docgraph.DefaultRetrievalConfig().K
	}

	candidates, err := o.vectorStore.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	return candidates, nil
}

// expand walks the graph out from each candidate and returns the decayed
// results, staged so a failure midway discards the whole expansion. The
// expanded score is the candidate score multiplied by the reaching edge's
// weight and the per-hop decay.
func (o *Orchestrator) expand(ctx context.Context, candidates []docgraph.ChunkMatch, config docgraph.RetrievalConfig) (map[string]docgraph.RetrievalResult, error) {
	staged := make(map[string]docgraph.RetrievalResult)

	for _, candidate := range candidates {
		neighbors, err := o.graphStore.Neighbors(ctx, candidate.Chunk.ID, config.EdgeTypes, config.MaxHops)
		if err != nil {
			return nil, err
		}

		for _, neighbor := range neighbors {
			score := candidate.Score * neighbor.Edge.Weight * math.Pow(config.HopDecay, float64(neighbor.HopDistance))
			keepBest(staged, docgraph.RetrievalResult{
				Chunk:       neighbor.Chunk,
				Score:       score,
				Provenance:  docgraph.ProvenanceGraphExpansion,
				HopDistance: neighbor.HopDistance,
			})
		}
	}
	return staged, nil
}

// keepBest records the result unless a higher-scoring entry for the same
// chunk already exists.
func keepBest(merged map[string]docgraph.RetrievalResult, result docgraph.RetrievalResult) {
	existing, found := merged[result.Chunk.ID]
	if found && existing.Score >= result.Score {
		return
	}
	merged[result.Chunk.ID] = result
}

// rank orders merged results by descending score, ties broken by ascending
// chunk id, and truncates to limit.
func rank(merged map[string]docgraph.RetrievalResult, limit int) []docgraph.RetrievalResult {
	out := make([]docgraph.RetrievalResult, 0, len(merged))
	for _, result := range merged {
		out = append(out, result)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (o *Orchestrator) timeoutOr(ctx context.Context, config docgraph.RetrievalConfig, err error) error {
	if timeout := asTimeout(ctx, config, err); timeout != nil {
		return timeout
	}
	return err
}

func asTimeout(ctx context.Context, config docgraph.RetrievalConfig, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &docgraph.RetrievalTimeout{Budget: config.Timeout}
	}
	return nil
}
