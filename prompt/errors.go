package prompt

import "errors"

var (
	// ErrUnknownTemplate is returned when a template name is not registered.
	ErrUnknownTemplate = errors.New("unknown prompt template")

	// ErrRender is returned when a template fails to render.
	ErrRender = errors.New("prompt render failed")
)
