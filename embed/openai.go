// Package embed provides Embedder implementations for turning chunk text
// into vectors.
package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/docgraph"
)

// embeddingClient is the slice of the OpenAI API the embedder uses. Tests
// substitute a fake.
type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client embeddingClient
	model  openai.EmbeddingModel
}

// OpenAIOption configures the OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithModel sets the embedding model. Defaults to text-embedding-3-small.
func WithModel(model openai.EmbeddingModel) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.model = model
	}
}

var _ docgraph.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder calling the OpenAI API.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIOption) *OpenAIEmbedder {
	return NewOpenAIEmbedderWithClient(openai.NewClient(apiKey), opts...)
}

// NewOpenAIEmbedderWithClient wraps an existing client, for custom base
// URLs and tests.
func NewOpenAIEmbedderWithClient(client embeddingClient, opts ...OpenAIOption) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		client: client,
		model:  openai.SmallEmbedding3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedDocument embeds a single text.
func (e *OpenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of texts in one API call.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}
