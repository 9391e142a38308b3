package chunker

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of runes shared by consecutive chunks.
	DefaultChunkOverlap = 100
)

// Chunker turns documents into chunks.
type Chunker struct {
	recursive *Recursive
	splitter  textsplitter.TextSplitter
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithSplitter replaces the default recursive splitter. Chunk offsets are
// recovered by locating each split in the document text, so the splitter
// must return substrings of its input.
func WithSplitter(splitter textsplitter.TextSplitter) Option {
	return func(c *Chunker) error {
		if splitter == nil {
			return fmt.Errorf("splitter cannot be nil")
		}
		c.splitter = splitter
		return nil
	}
}

// WithLogger sets a custom logger for the chunker.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "chunker")
		return nil
	}
}

// New creates a Chunker. Size and overlap are validated even when a custom
// splitter is installed.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	recursive, err := NewRecursive(size, overlap)
	if err != nil {
		return nil, err
	}
	c := &Chunker{
		recursive: recursive,
		logger:    slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Split chunks documents with the default splitter.
func Split(documents []core.Document, size, overlap int) ([]core.Chunk, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(documents)
}

// Split chunks every document in order. Chunk indexes restart at zero for
// each document and chunks never span two documents.
func (c *Chunker) Split(documents []core.Document) ([]core.Chunk, error) {
	var chunks []core.Chunk
	for i := range documents {
		doc := &documents[i]
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		spans, err := c.spans(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", doc.SourceID, err)
		}
		chunks = append(chunks, c.build(doc, spans)...)
	}
	c.logger.Debug("split documents", "documents", len(documents), "chunks", len(chunks))
	return chunks, nil
}

func (c *Chunker) spans(text string) ([]Span, error) {
	if c.splitter == nil {
		return c.recursive.Spans(text), nil
	}
	splits, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	return locate(text, splits)
}

func (c *Chunker) build(doc *core.Document, spans []Span) []core.Chunk {
	runes := []rune(doc.Text)
	page := doc.Metadata[core.MetaPage]
	chunks := make([]core.Chunk, 0, len(spans))
	for _, span := range spans {
		text := string(runes[span.Start:span.End])
		index := len(chunks)
		metadata := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		metadata[core.MetaSource] = doc.SourceID
		metadata[core.MetaChunkIndex] = strconv.Itoa(index)
		chunks = append(chunks, core.Chunk{
			ID:         core.ChunkID(doc.SourceID, page, span.Start, text),
			Text:       text,
			SourceID:   doc.SourceID,
			ChunkIndex: index,
			Start:      span.Start,
			Metadata:   metadata,
		})
	}
	return chunks
}

// locate finds each split in text, searching forward from just after the
// previous match so that overlapping splits resolve to increasing offsets.
func locate(text string, splits []string) ([]Span, error) {
	spans := make([]Span, 0, len(splits))
	from := 0
	for _, split := range splits {
		if split == "" {
			continue
		}
		idx := strings.Index(text[from:], split)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrSplitNotFound, truncate(split, 40))
		}
		byteStart := from + idx
		start := utf8.RuneCountInString(text[:byteStart])
		spans = append(spans, Span{start, start + utf8.RuneCountInString(split)})
		_, width := utf8.DecodeRuneInString(text[byteStart:])
		from = byteStart + width
	}
	return spans, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
