package chunker

import (
	"strings"

	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultSeparators are tried in order: paragraph, line, word, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Span is a half-open rune range [Start, End) of a source text.
type Span struct {
	Start int
	End   int
}

// Len returns the span length in runes.
func (s Span) Len() int {
	return s.End - s.Start
}

// Recursive is a separator-preserving recursive character splitter.
// Lengths are measured in runes.
type Recursive struct {
	size       int
	overlap    int
	separators []string
}

var _ textsplitter.TextSplitter = (*Recursive)(nil)

// NewRecursive creates a splitter producing chunks of at most size runes
// sharing up to overlap runes with their predecessor.
func NewRecursive(size, overlap int) (*Recursive, error) {
	if err := core.ValidateChunkParams(size, overlap); err != nil {
		return nil, err
	}
	return &Recursive{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// SplitText implements textsplitter.TextSplitter.
func (r *Recursive) SplitText(text string) ([]string, error) {
	runes := []rune(text)
	spans := r.split(runes)
	out := make([]string, len(spans))
	for i, span := range spans {
		out[i] = string(runes[span.Start:span.End])
	}
	return out, nil
}

// Spans returns the chunk boundaries of text in rune offsets.
func (r *Recursive) Spans(text string) []Span {
	return r.split([]rune(text))
}

func (r *Recursive) split(runes []rune) []Span {
	if len(runes) == 0 {
		return nil
	}
	return r.splitRange(runes, Span{0, len(runes)}, r.separators)
}

// splitRange splits runes[span] on the first separator present, recursing
// into pieces that are still too long.
func (r *Recursive) splitRange(runes []rune, span Span, separators []string) []Span {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(string(runes[span.Start:span.End]), candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var chunks, good []Span
	for _, piece := range pieces(runes, span, sep) {
		if piece.Len() <= r.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, r.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
			continue
		}
		chunks = append(chunks, r.splitRange(runes, piece, rest)...)
	}
	if len(good) > 0 {
		chunks = append(chunks, r.merge(good)...)
	}
	return chunks
}

// merge packs consecutive pieces into chunks of at most size runes, starting
// each new chunk with the trailing pieces of the previous one that fit into
// the overlap.
func (r *Recursive) merge(parts []Span) []Span {
	var chunks, window []Span
	total := 0
	for _, part := range parts {
		n := part.Len()
		if total+n > r.size && len(window) > 0 {
			chunks = append(chunks, Span{window[0].Start, window[len(window)-1].End})
			for total > r.overlap || (total+n > r.size && total > 0) {
				total -= window[0].Len()
				window = window[1:]
			}
		}
		window = append(window, part)
		total += n
	}
	if len(window) > 0 {
		chunks = append(chunks, Span{window[0].Start, window[len(window)-1].End})
	}
	return chunks
}

// pieces cuts runes[span] after every occurrence of sep. An empty separator
// yields single runes.
func pieces(runes []rune, span Span, sep string) []Span {
	if sep == "" {
		out := make([]Span, 0, span.Len())
		for i := span.Start; i < span.End; i++ {
			out = append(out, Span{i, i + 1})
		}
		return out
	}

	sepRunes := []rune(sep)
	var out []Span
	start := span.Start
	for i := span.Start; i+len(sepRunes) <= span.End; {
		if hasPrefix(runes[i:span.End], sepRunes) {
			i += len(sepRunes)
			out = append(out, Span{start, i})
			start = i
			continue
		}
		i++
	}
	if start < span.End {
		out = append(out, Span{start, span.End})
	}
	return out
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}
