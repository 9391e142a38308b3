package ingestion

import (
	"errors"

	"github.com/poiesic/ragchat/loader"
)

var (
	// ErrLoaderRequired is returned when a loader is not provided.
	ErrLoaderRequired = errors.New("loader required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrIndexRequired is returned when an index is not provided.
	ErrIndexRequired = errors.New("index required")

	// ErrEmptyCorpus is returned when the corpus yields no documents or no
	// chunks. Nothing is written to the index.
	ErrEmptyCorpus = loader.ErrEmptyCorpus
)
