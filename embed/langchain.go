package embed

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/smallnest/docgraph"
)

// LangChainEmbedder adapts a langchaingo embeddings.Embedder, opening the
// pipeline to every provider langchaingo supports.
type LangChainEmbedder struct {
	embedder embeddings.Embedder
}

var _ docgraph.Embedder = (*LangChainEmbedder)(nil)

// NewLangChainEmbedder wraps a langchaingo embedder.
func NewLangChainEmbedder(embedder embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: embedder}
}

// EmbedDocument embeds a single text through the underlying embedder.
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return l.embedder.EmbedQuery(ctx, text)
}

// EmbedDocuments embeds a batch of texts through the underlying embedder.
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return l.embedder.EmbedDocuments(ctx, texts)
}
