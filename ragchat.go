// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ragchat wires storage and an AI provider into the components of
// the retrieval augmented chat pipeline.
package ragchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/ai/ollama"
	"github.com/poiesic/ragchat/ai/openai"
	"github.com/poiesic/ragchat/answer"
	"github.com/poiesic/ragchat/chunker"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/index"
	"github.com/poiesic/ragchat/ingestion"
	"github.com/poiesic/ragchat/loader"
	"github.com/poiesic/ragchat/reembed"
	"github.com/poiesic/ragchat/search"
	"github.com/poiesic/ragchat/storage"
	"github.com/poiesic/ragchat/storage/badger"
	"github.com/poiesic/ragchat/storage/pgvector"
)

// DefaultNamespace is the index namespace used when none is configured.
const DefaultNamespace = "default"

type Engine struct {
	backend     *badger.Backend
	pg          *pgvector.DB
	indexRepo   storage.IndexRepository
	transcripts storage.TranscriptRepository
	provider    ai.AIProvider
	namespace   string
	base        *slog.Logger // handed to the components
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	namespace   string
	inMemory    bool
	postgresDSN string
	logger      *slog.Logger
}

// WithAIConfig sets the configuration used to create the AI provider.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *engineOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an existing AI provider instead of creating one.
// The engine takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithNamespace selects the index namespace.
func WithNamespace(namespace string) Option {
	return func(o *engineOptions) {
		o.namespace = namespace
	}
}

// WithInMemory keeps the badger store in memory. The path is ignored.
func WithInMemory() Option {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithPostgres stores the index and transcripts in PostgreSQL with pgvector
// instead of badger.
func WithPostgres(dsn string) Option {
	return func(o *engineOptions) {
		o.postgresDSN = dsn
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open opens the store at path and creates the AI provider.
func Open(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	options := &engineOptions{
		aiConfig:  ai.DefaultConfig(),
		namespace: DefaultNamespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := core.ValidateNamespace(options.namespace); err != nil {
		return nil, err
	}

	e := &Engine{
		namespace: options.namespace,
		base:      options.logger,
		logger:    options.logger.With("component", "engine"),
	}

	if options.postgresDSN != "" {
		if err := e.openPostgres(ctx, options.postgresDSN); err != nil {
			return nil, err
		}
	} else if err := e.openBadger(path, options.inMemory); err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = NewProvider(options.aiConfig)
		if err != nil {
			e.closeStore()
			return nil, err
		}
	}
	e.provider = provider
	return e, nil
}

func (e *Engine) openBadger(path string, inMemory bool) error {
	backend, err := badger.OpenBackend(path, inMemory)
	if err != nil {
		return err
	}
	indexRepo, err := badger.NewIndexRepository(backend)
	if err != nil {
		backend.Close()
		return err
	}
	transcripts, err := badger.NewTranscriptRepository(backend)
	if err != nil {
		indexRepo.Close()
		backend.Close()
		return err
	}
	e.backend = backend
	e.indexRepo = indexRepo
	e.transcripts = transcripts
	return nil
}

func (e *Engine) openPostgres(ctx context.Context, dsn string) error {
	db, err := pgvector.Open(ctx, dsn)
	if err != nil {
		return err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return err
	}
	e.pg = db
	e.indexRepo = pgvector.NewIndexRepository(db)
	e.transcripts = pgvector.NewTranscriptRepository(db)
	return nil
}

// NewProvider creates the AI provider selected by cfg.Provider.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if cfg == nil {
		cfg = ai.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderOllama:
		return ollama.NewProvider(cfg)
	default:
		return openai.NewProvider(cfg)
	}
}

// Close releases the provider and the store.
func (e *Engine) Close() error {
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}
	return e.closeStore()
}

func (e *Engine) closeStore() error {
	var errs []error
	if e.transcripts != nil {
		if err := e.transcripts.Close(); err != nil {
			e.logger.Error("error closing transcript repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.indexRepo != nil {
		if err := e.indexRepo.Close(); err != nil {
			e.logger.Error("error closing index repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	if e.pg != nil {
		e.pg.Close()
	}
	return errors.Join(errs...)
}

func (e *Engine) Namespace() string {
	return e.namespace
}

func (e *Engine) Provider() ai.AIProvider {
	return e.provider
}

func (e *Engine) IndexRepository() storage.IndexRepository {
	return e.indexRepo
}

func (e *Engine) Transcripts() storage.TranscriptRepository {
	return e.transcripts
}

// NewIndex creates an index over the engine's namespace.
func (e *Engine) NewIndex(opts ...index.Option) (*index.Index, error) {
	opts = append([]index.Option{index.WithLogger(e.base)}, opts...)
	return index.New(e.indexRepo, e.provider.Embedder(), e.provider.Fingerprint(), e.namespace, opts...)
}

// OpenIndex opens the published index of the engine's namespace.
func (e *Engine) OpenIndex(ctx context.Context, opts ...index.Option) (*index.Handle, error) {
	idx, err := e.NewIndex(opts...)
	if err != nil {
		return nil, err
	}
	return idx.Open(ctx)
}

// NewIngestionPipeline creates a pipeline that loads, chunks and indexes
// into the engine's namespace.
func (e *Engine) NewIngestionPipeline(chunkSize, chunkOverlap int, loaderOpts []loader.Option, indexOpts ...index.Option) (*ingestion.Pipeline, error) {
	l, err := loader.New(append([]loader.Option{loader.WithLogger(e.base)}, loaderOpts...)...)
	if err != nil {
		return nil, err
	}
	c, err := chunker.New(chunkSize, chunkOverlap, chunker.WithLogger(e.base))
	if err != nil {
		return nil, err
	}
	idx, err := e.NewIndex(indexOpts...)
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline(l, c, idx, ingestion.WithLogger(e.base))
}

// NewRetriever creates a retriever over an opened index.
func (e *Engine) NewRetriever(handle *index.Handle, opts ...search.Option) (*search.Retriever, error) {
	if handle == nil {
		return nil, search.ErrQuerierRequired
	}
	return search.NewRetriever(handle, append([]search.Option{search.WithLogger(e.base)}, opts...)...)
}

// NewAnswerPipeline creates an answering pipeline using the provider's generator.
func (e *Engine) NewAnswerPipeline(retriever answer.Retriever, opts ...answer.Option) (*answer.Pipeline, error) {
	return answer.New(retriever, e.provider.Generator(), append([]answer.Option{answer.WithLogger(e.base)}, opts...)...)
}

// NewReembedder creates a reembedder that moves the namespace to the
// provider's embedding model.
func (e *Engine) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(e.indexRepo, e.provider.Embedder(), e.provider.Fingerprint(), e.namespace, cfg, progress)
}

// Stats returns the manifest of every published namespace.
func (e *Engine) Stats(ctx context.Context) ([]core.IndexManifest, error) {
	namespaces, err := e.indexRepo.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	manifests := make([]core.IndexManifest, 0, len(namespaces))
	for _, ns := range namespaces {
		manifest, err := e.indexRepo.LoadManifest(ctx, ns)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading manifest %s: %w", ns, err)
		}
		manifests = append(manifests, *manifest)
	}
	return manifests, nil
}

// Drop deletes the engine's namespace.
func (e *Engine) Drop(ctx context.Context) error {
	return e.indexRepo.DeleteNamespace(ctx, e.namespace)
}
