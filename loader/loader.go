package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragchat/core"
)

// Failure records a file that could not be extracted.
type Failure struct {
	SourceID string
	Err      error
}

// Result is the outcome of loading a corpus.
type Result struct {
	Documents []core.Document
	Failures  []Failure
	Skipped   []string // Files with unsupported extensions
	Loaded    int      // Files extracted successfully
}

// Loader enumerates and extracts the files of a corpus.
type Loader struct {
	extractors map[string]Extractor
	poolSize   int
	logger     *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithPoolSize sets the number of files extracted concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(l *Loader) error {
		if size < 1 {
			size = 1
		}
		l.poolSize = size
		return nil
	}
}

// WithExtractor registers an extractor for a file extension such as ".md".
func WithExtractor(ext string, extractor Extractor) Option {
	return func(l *Loader) error {
		if extractor == nil {
			return fmt.Errorf("extractor for %q cannot be nil", ext)
		}
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		l.extractors[ext] = extractor
		return nil
	}
}

// WithPDFBackend selects the PDF extractor by name.
func WithPDFBackend(backend string) Option {
	return func(l *Loader) error {
		extractor, err := NewPDFExtractor(backend)
		if err != nil {
			return err
		}
		l.extractors[".pdf"] = extractor
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger.With("component", "loader")
		return nil
	}
}

// New creates a Loader for .txt and .pdf files.
func New(opts ...Option) (*Loader, error) {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	l := &Loader{
		extractors: map[string]Extractor{
			".txt": TextExtractor{},
			".pdf": PDFExtractor{},
		},
		poolSize: poolSize,
		logger:   slog.Default().With("component", "loader"),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Load reads every supported file below root. Per-file failures are
// collected in the result. When nothing was loaded the result is returned
// together with ErrEmptyCorpus.
func (l *Loader) Load(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootNotFound, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	files, skipped, unreadable, err := l.enumerate(root)
	if err != nil {
		return nil, err
	}
	result := &Result{Skipped: skipped, Failures: unreadable}

	pool, err := ants.NewPool(l.poolSize)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	type extraction struct {
		docs []core.Document
		err  error
	}
	extracted := make([]extraction, len(files))

	var wg sync.WaitGroup
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			docs, err := file.extractor.Extract(ctx, file.path)
			extracted[i] = extraction{docs: docs, err: err}
		})
		if err != nil {
			wg.Done()
			extracted[i] = extraction{err: err}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, file := range files {
		if err := extracted[i].err; err != nil {
			l.logger.Warn("failed to load file", "source", file.sourceID, "err", err)
			result.Failures = append(result.Failures, Failure{
				SourceID: file.sourceID,
				Err:      fmt.Errorf("%w %s: %w", ErrLoad, file.sourceID, err),
			})
			continue
		}
		result.Loaded++
		for _, doc := range extracted[i].docs {
			if strings.TrimSpace(doc.Text) == "" {
				continue
			}
			doc.SourceID = file.sourceID
			if doc.Metadata == nil {
				doc.Metadata = map[string]string{}
			}
			doc.Metadata[core.MetaSource] = file.sourceID
			result.Documents = append(result.Documents, doc)
		}
	}

	l.logger.Info("loaded corpus",
		"root", root,
		"files", result.Loaded,
		"documents", len(result.Documents),
		"failed", len(result.Failures),
		"skipped", len(result.Skipped))

	if len(result.Documents) == 0 {
		return result, ErrEmptyCorpus
	}
	return result, nil
}

type sourceFile struct {
	path      string
	sourceID  string
	extractor Extractor
}

// enumerate walks root in lexical order. Entries below root that cannot be
// read are reported as failures and skipped.
func (l *Loader) enumerate(root string) ([]sourceFile, []string, []Failure, error) {
	var files []sourceFile
	var skipped []string
	var failures []Failure
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			sourceID := sourceIDFor(root, path)
			l.logger.Warn("failed to read path", "source", sourceID, "err", err)
			failures = append(failures, Failure{
				SourceID: sourceID,
				Err:      fmt.Errorf("%w %s: %w", ErrLoad, sourceID, err),
			})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		sourceID := sourceIDFor(root, path)
		extractor, ok := l.extractors[strings.ToLower(filepath.Ext(path))]
		if !ok {
			l.logger.Warn("skipping unsupported file", "source", sourceID)
			skipped = append(skipped, sourceID)
			return nil
		}
		files = append(files, sourceFile{path: path, sourceID: sourceID, extractor: extractor})
		return nil
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, skipped, failures, nil
}

// sourceIDFor returns path relative to root with forward slashes.
func sourceIDFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}
