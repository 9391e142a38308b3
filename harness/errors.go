package harness

import "errors"

var (
	// ErrFactoryRequired is returned when no pipeline factory is provided.
	ErrFactoryRequired = errors.New("pipeline factory required")

	// ErrInvalidInput is returned when the question file is not a JSON array.
	ErrInvalidInput = errors.New("question file must be a JSON array")
)
