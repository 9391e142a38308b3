package reembed

import "errors"

var (
	// ErrRepositoryRequired is returned when no index repository is provided.
	ErrRepositoryRequired = errors.New("index repository required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionChanged is returned when the new embedder produces vectors
	// of varying dimension within one run.
	ErrDimensionChanged = errors.New("embedding dimension changed during re-embedding")
)
