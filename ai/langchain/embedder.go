package langchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragchat/ai"
	"github.com/tmc/langchaingo/embeddings"
)

// DefaultEmbeddingBatchSize is the number of texts sent per embedding request.
const DefaultEmbeddingBatchSize = 64

// Embedder implements ai.Embedder on top of any langchaingo embedding client.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// newEmbedder is the internal constructor that returns the concrete type.
func newEmbedder(client embeddings.EmbedderClient, batchSize int, component string) (*Embedder, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}

	// Wrap in langchaingo embedder
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batchSize),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		logger:   slog.Default().With("component", component),
	}, nil
}

// NewEmbedder wraps a langchaingo embedding client (openai.LLM, ollama.LLM, ...).
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(client embeddings.EmbedderClient, batchSize int, component string) (ai.Embedder, error) {
	return newEmbedder(client, batchSize, component)
}

// EmbedText generates an embedding for a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}

	if len(vectors) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return vectors[0], nil
}

// EmbedTexts generates embeddings for texts, preserving input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	// langchaingo strips newlines in place; keep the caller's slice intact
	input := make([]string, len(texts))
	copy(input, texts)

	vectors, err := e.embedder.EmbedDocuments(ctx, input)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmptyEmbedding, len(texts), len(vectors))
	}

	return vectors, nil
}
