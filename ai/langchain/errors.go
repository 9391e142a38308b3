package langchain

import "errors"

var (
	// ErrClientRequired is returned when a nil langchaingo client is supplied.
	ErrClientRequired = errors.New("langchaingo client required")

	// ErrEmptyEmbedding is returned when the embedding service returns fewer vectors than requested.
	ErrEmptyEmbedding = errors.New("embedding service returned no vector")

	// ErrNoChoices is returned when the model produced no usable completion.
	ErrNoChoices = errors.New("model returned no completion")
)
