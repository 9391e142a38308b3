package index

import (
	"fmt"
	"strings"
)

// BuildMode decides what happens when a build targets a published namespace.
type BuildMode int

const (
	// ModeCreate fails with ErrIndexExists if the namespace is published.
	ModeCreate BuildMode = iota
	// ModeUpsert adds chunks whose IDs are not yet indexed.
	ModeUpsert
	// ModeOverwrite replaces the namespace's content atomically.
	ModeOverwrite
)

func (m BuildMode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpsert:
		return "upsert"
	case ModeOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("BuildMode(%d)", int(m))
	}
}

// ParseBuildMode parses create, upsert or overwrite, ignoring case.
func ParseBuildMode(s string) (BuildMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create":
		return ModeCreate, nil
	case "upsert":
		return ModeUpsert, nil
	case "overwrite":
		return ModeOverwrite, nil
	default:
		return 0, fmt.Errorf("%w: %q (want create, upsert or overwrite)", ErrInvalidBuildMode, s)
	}
}
