package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

const (
	// PDFBackendNative extracts PDFs with the pure Go reader used by langchaingo.
	PDFBackendNative = "native"
	// PDFBackendFitz extracts PDFs with MuPDF through go-fitz (requires cgo).
	PDFBackendFitz = "fitz"
)

// Extractor turns one file into documents. SourceID is filled in by the Loader.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]core.Document, error)
}

// TextExtractor reads UTF-8 plain text files.
type TextExtractor struct{}

// Extract returns the file as a single document.
func (TextExtractor) Extract(ctx context.Context, path string) ([]core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", path)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, err
	}
	return fromSchema(docs), nil
}

// PDFExtractor reads PDFs page by page with langchaingo's PDF loader.
type PDFExtractor struct {
	Password string
}

// Extract returns one document per page.
func (e PDFExtractor) Extract(ctx context.Context, path string) (docs []core.Document, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// The underlying reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	var opts []documentloaders.PDFOptions
	if e.Password != "" {
		opts = append(opts, documentloaders.WithPassword(e.Password))
	}
	pages, err := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)), opts...).Load(ctx)
	if err != nil {
		return nil, err
	}
	return fromSchema(pages), nil
}

// FitzExtractor reads PDFs page by page with MuPDF.
type FitzExtractor struct{}

// Extract returns one document per page.
func (FitzExtractor) Extract(ctx context.Context, path string) ([]core.Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	docs := make([]core.Document, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		docs = append(docs, core.Document{
			Text: text,
			Metadata: map[string]string{
				core.MetaPage:       strconv.Itoa(i + 1),
				core.MetaTotalPages: strconv.Itoa(total),
			},
		})
	}
	return docs, nil
}

// NewPDFExtractor returns the extractor for a PDF backend name.
// An empty name selects PDFBackendNative.
func NewPDFExtractor(backend string) (Extractor, error) {
	switch strings.ToLower(backend) {
	case "", PDFBackendNative:
		return PDFExtractor{}, nil
	case PDFBackendFitz:
		return FitzExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPDFBackend, backend)
	}
}

func fromSchema(in []schema.Document) []core.Document {
	out := make([]core.Document, 0, len(in))
	for _, d := range in {
		metadata := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			metadata[k] = fmt.Sprint(v)
		}
		out = append(out, core.Document{Text: d.PageContent, Metadata: metadata})
	}
	return out
}
