package index

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrIndexExists is returned by a create build when the namespace is already published.
	ErrIndexExists = errors.New("index already exists")

	// ErrIndexNotFound is returned when a namespace has no published index.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexMismatch is returned when an index was built with a different embedding model.
	ErrIndexMismatch = errors.New("index embedding mismatch")

	// ErrInvalidBuildMode is returned for an unknown build mode name.
	ErrInvalidBuildMode = errors.New("invalid build mode")

	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrRepositoryRequired is returned when no repository is supplied.
	ErrRepositoryRequired = errors.New("index repository is required")
)
