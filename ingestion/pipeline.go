package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragchat/chunker"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/index"
	"github.com/poiesic/ragchat/loader"
)

// Report summarizes an ingestion run.
type Report struct {
	Root      string
	Mode      index.BuildMode
	Loaded    int              // Files extracted successfully
	Failures  []loader.Failure // Files that could not be extracted
	Skipped   []string         // Files with unsupported extensions
	Documents int              // Documents after dropping blank ones
	Chunks    int              // Chunks produced by the chunker
	Indexed   int              // Entries in the published index
	Timings   []StageTiming
}

// Failed returns the number of files that could not be loaded.
func (r *Report) Failed() int {
	return len(r.Failures)
}

// runState is shared by the stages of one run.
type runState struct {
	root      string
	mode      index.BuildMode
	documents []core.Document
	chunks    []core.Chunk
	handle    *index.Handle
	report    *Report
}

// Pipeline orchestrates loading, chunking and indexing.
type Pipeline struct {
	loader  *loader.Loader
	chunker *chunker.Chunker
	index   *index.Index
	stages  []stage
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(l *loader.Loader, c *chunker.Chunker, idx *index.Index, opts ...Option) (*Pipeline, error) {
	if l == nil {
		return nil, ErrLoaderRequired
	}
	if c == nil {
		return nil, ErrChunkerRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}

	p := &Pipeline{
		loader:  l,
		chunker: c,
		index:   idx,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	p.stages = []stage{
		&loadStage{loader: l, logger: p.logger},
		&chunkStage{chunker: c, logger: p.logger},
		&indexStage{index: idx},
	}
	return p, nil
}

// Run ingests every supported file under root into the index.
// The report is returned even when the run fails, describing how far it got.
func (p *Pipeline) Run(ctx context.Context, root string, mode index.BuildMode) (*Report, *index.Handle, error) {
	state := &runState{
		root:   root,
		mode:   mode,
		report: &Report{Root: root, Mode: mode},
	}
	return p.execute(ctx, state, p.stages)
}

// Ingest indexes documents that are already in memory, skipping the load
// stage.
func (p *Pipeline) Ingest(ctx context.Context, documents []core.Document, mode index.BuildMode) (*Report, *index.Handle, error) {
	state := &runState{
		mode:      mode,
		documents: documents,
		report:    &Report{Mode: mode, Documents: len(documents)},
	}
	return p.execute(ctx, state, p.stages[1:])
}

func (p *Pipeline) execute(ctx context.Context, state *runState, stages []stage) (*Report, *index.Handle, error) {
	for _, s := range stages {
		started := time.Now()
		err := s.run(ctx, state)
		state.report.Timings = append(state.report.Timings, StageTiming{Stage: s.name(), Elapsed: time.Since(started)})
		if err != nil {
			p.logger.Error("ingestion stage failed", "stage", s.name(), "err", err)
			return state.report, nil, err
		}
	}

	p.logger.Info("ingestion finished",
		"loaded", state.report.Loaded,
		"failed", state.report.Failed(),
		"skipped", len(state.report.Skipped),
		"chunks", state.report.Chunks,
		"indexed", state.report.Indexed)
	return state.report, state.handle, nil
}

type loadStage struct {
	loader *loader.Loader
	logger *slog.Logger
}

func (s *loadStage) name() string { return "load" }

func (s *loadStage) run(ctx context.Context, state *runState) error {
	result, err := s.loader.Load(ctx, state.root)
	if result != nil {
		state.report.Loaded = result.Loaded
		state.report.Failures = result.Failures
		state.report.Skipped = result.Skipped
		state.report.Documents = len(result.Documents)
		state.documents = result.Documents
		for _, failure := range result.Failures {
			s.logger.Warn("skipping file", "source", failure.SourceID, "err", failure.Err)
		}
	}
	return err
}

type chunkStage struct {
	chunker *chunker.Chunker
	logger  *slog.Logger
}

func (s *chunkStage) name() string { return "chunk" }

func (s *chunkStage) run(_ context.Context, state *runState) error {
	chunks, err := s.chunker.Split(state.documents)
	if err != nil {
		return err
	}
	state.chunks = chunks
	state.report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %d documents produced no chunks", ErrEmptyCorpus, len(state.documents))
	}
	s.logger.Debug("split documents", "documents", len(state.documents), "chunks", len(chunks))
	return nil
}

type indexStage struct {
	index *index.Index
}

func (s *indexStage) name() string { return "index" }

func (s *indexStage) run(ctx context.Context, state *runState) error {
	handle, err := s.index.Build(ctx, state.chunks, state.mode)
	if err != nil {
		return err
	}
	state.handle = handle
	state.report.Indexed = handle.Count()
	return nil
}
