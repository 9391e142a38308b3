package server

import "errors"

var (
	// ErrRetrieverRequired is returned when no retriever is provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrFactoryRequired is returned when no pipeline factory is provided.
	ErrFactoryRequired = errors.New("pipeline factory required")

	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
)
