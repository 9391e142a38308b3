package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/index"
	"github.com/poiesic/ragchat/storage"
)

// BatchProcessor embeds batches of chunks and stages them into a generation.
type BatchProcessor struct {
	repo           storage.IndexRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
	dimension      int
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.IndexRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Dimension returns the vector dimension seen so far, or 0 before the first batch.
func (bp *BatchProcessor) Dimension() int {
	return bp.dimension
}

// Process embeds chunks and stages them into generation of namespace.
// Vectors are normalized after embedding to ensure compatibility with cosine similarity.
func (bp *BatchProcessor) Process(ctx context.Context, namespace string, generation uint64, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	var embeddings [][]float32
	err := index.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	entries := make([]*core.IndexEntry, len(chunks))
	for i := range chunks {
		if bp.dimension == 0 {
			bp.dimension = len(embeddings[i])
		}
		if len(embeddings[i]) != bp.dimension {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionChanged, len(embeddings[i]), bp.dimension)
		}
		entries[i] = &core.IndexEntry{Chunk: chunks[i], Vector: index.NormalizeVector(embeddings[i])}
	}

	if err := bp.repo.StageEntries(ctx, namespace, generation, entries...); err != nil {
		return fmt.Errorf("failed to stage entries: %w", err)
	}

	return nil
}
