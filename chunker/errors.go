package chunker

import "errors"

var (
	// ErrSplitNotFound indicates a custom splitter returned text that does not
	// occur in the source document.
	ErrSplitNotFound = errors.New("split not found in source text")
)
