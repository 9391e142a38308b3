package loader

import "errors"

var (
	// ErrRootNotFound indicates the corpus root does not exist or is not a directory.
	ErrRootNotFound = errors.New("document root not found")

	// ErrLoad indicates a single file could not be extracted.
	ErrLoad = errors.New("failed to load file")

	// ErrEmptyCorpus indicates no documents were loaded.
	ErrEmptyCorpus = errors.New("no documents loaded")

	// ErrUnknownPDFBackend indicates an unsupported PDF backend name.
	ErrUnknownPDFBackend = errors.New("unknown pdf backend")
)
