package answer

import "errors"

var (
	// ErrRetrieverRequired is returned when no retriever is provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrGeneratorRequired is returned when no generator is provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrRetrieval wraps failures while querying the index.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrPrompt wraps failures while rendering the prompt.
	ErrPrompt = errors.New("prompt assembly failed")

	// ErrGeneration wraps failures and cancellation while generating.
	ErrGeneration = errors.New("generation failed")

	// ErrClosed is returned by Ask after Close.
	ErrClosed = errors.New("pipeline closed")

	// ErrRecording wraps failures while persisting the turn.
	ErrRecording = errors.New("recording failed")
)
