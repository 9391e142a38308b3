package search

import (
	"fmt"
	"strings"
)

// DefaultK is the number of hits requested per query.
const DefaultK = 8

// Mode selects how many queries are issued per question.
type Mode int

const (
	// SingleQuery sends the raw question only.
	SingleQuery Mode = iota
	// MultiQuery sends the question plus fixed paraphrases.
	MultiQuery
)

func (m Mode) String() string {
	switch m {
	case SingleQuery:
		return "single"
	case MultiQuery:
		return "multi"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "single" or "multi".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "":
		return SingleQuery, nil
	case "multi":
		return MultiQuery, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Params are the parameters of one retrieval. The zero value is usable:
// a non-positive K means DefaultK.
type Params struct {
	K    int
	Mode Mode
}

// DefaultParams returns single-query retrieval of DefaultK hits.
func DefaultParams() Params {
	return Params{K: DefaultK, Mode: SingleQuery}
}

// WithK returns a copy of p requesting k hits per query.
func (p Params) WithK(k int) Params {
	p.K = k
	return p
}

// WithMode returns a copy of p using mode m.
func (p Params) WithMode(m Mode) Params {
	p.Mode = m
	return p
}

func (p Params) k() int {
	if p.K <= 0 {
		return DefaultK
	}
	return p.K
}

// Variants returns the queries issued for question in the given mode.
// Multi query mode always returns them in the same order.
func Variants(question string, mode Mode) []string {
	if mode != MultiQuery {
		return []string{question}
	}
	return []string{
		question,
		"what does " + question + " mean?",
		"explain in detail: " + question,
		"give examples of: " + question,
	}
}
