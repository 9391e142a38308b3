package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

const (
	// DefaultTopK is the number of chunks returned when a query asks for k <= 0.
	DefaultTopK = 8
	// DefaultBatchSize is the number of chunks embedded per request.
	DefaultBatchSize = 64
	// DefaultMaxRetries is the number of attempts per embedding request.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the delay before the first retry.
	DefaultRetryDelay = time.Second
	// DefaultCallTimeout bounds a single embedding request.
	DefaultCallTimeout = 30 * time.Second
	// DefaultQueryAttempts is the number of embedding attempts per query.
	DefaultQueryAttempts = 1

	// maxQueryRestarts bounds how often a query starts over because the
	// index was republished while it ran.
	maxQueryRestarts = 3
)

// Index embeds and stores chunks under one namespace.
type Index struct {
	repo        storage.IndexRepository
	embedder    ai.Embedder
	fingerprint core.Fingerprint
	namespace   string

	batchSize   int
	maxRetries  int
	retryDelay  time.Duration
	callTimeout time.Duration

	queryAttempts int
	queryDelay    time.Duration

	progress io.Writer
	logger   *slog.Logger
}

// Option configures an Index.
type Option func(*Index) error

// WithBatchSize sets the number of chunks per embedding request.
func WithBatchSize(size int) Option {
	return func(idx *Index) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		idx.batchSize = size
		return nil
	}
}

// WithRetries sets the attempts per build embedding request and the initial
// backoff. Queries are governed by WithQueryRetries.
func WithRetries(maxAttempts int, delay time.Duration) Option {
	return func(idx *Index) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		idx.maxRetries = maxAttempts
		idx.retryDelay = delay
		return nil
	}
}

// WithQueryRetries lets queries retry a failed embedding request. Queries
// make a single attempt unless this is set.
func WithQueryRetries(maxAttempts int, delay time.Duration) Option {
	return func(idx *Index) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		idx.queryAttempts = maxAttempts
		idx.queryDelay = delay
		return nil
	}
}

// WithCallTimeout bounds each embedding request. Zero disables the timeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(idx *Index) error {
		idx.callTimeout = timeout
		return nil
	}
}

// WithProgress reports build progress to w.
func WithProgress(w io.Writer) Option {
	return func(idx *Index) error {
		idx.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		idx.logger = logger.With("component", "index")
		return nil
	}
}

// New creates an Index over repo. fingerprint identifies the embedder's
// model; its Dimension may be zero and is learned from the first vector.
func New(repo storage.IndexRepository, embedder ai.Embedder, fingerprint core.Fingerprint, namespace string, opts ...Option) (*Index, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if err := core.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	idx := &Index{
		repo:        repo,
		embedder:    embedder,
		fingerprint: fingerprint,
		namespace:   namespace,
		batchSize:   DefaultBatchSize,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		callTimeout: DefaultCallTimeout,

		queryAttempts: DefaultQueryAttempts,
		queryDelay:    DefaultRetryDelay,

		logger: slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Namespace returns the namespace the index writes to.
func (idx *Index) Namespace() string {
	return idx.namespace
}

// Handle is a published index that can be queried. Queries follow the
// latest published manifest, so a handle stays valid across overwrites,
// upserts and re-embeds.
type Handle struct {
	index *Index

	mu       sync.RWMutex
	manifest *core.IndexManifest
}

func newHandle(idx *Index, manifest *core.IndexManifest) *Handle {
	return &Handle{index: idx, manifest: manifest}
}

func (h *Handle) current() *core.IndexManifest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.manifest
}

// Manifest returns a copy of the manifest the handle last saw.
func (h *Handle) Manifest() core.IndexManifest {
	manifest := h.current()
	m := *manifest
	m.Generations = slices.Clone(manifest.Generations)
	return m
}

// Count returns the number of indexed chunks as of the last manifest seen.
func (h *Handle) Count() int {
	return h.current().Count
}

// Refresh reloads the published manifest. It fails with ErrIndexNotFound
// once the namespace is deleted and with ErrIndexMismatch when the index
// was rebuilt with an incompatible model.
func (h *Handle) Refresh(ctx context.Context) error {
	_, err := h.index.refresh(ctx, h)
	return err
}

// Query returns the k chunks nearest to text.
func (h *Handle) Query(ctx context.Context, text string, k int) ([]core.ScoredChunk, error) {
	return h.index.Query(ctx, h, text, k)
}

// Open returns a handle to the published index, verifying that it was built
// with a compatible embedding model.
func (idx *Index) Open(ctx context.Context) (*Handle, error) {
	manifest, err := idx.repo.LoadManifest(ctx, idx.namespace)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: namespace %s", ErrIndexNotFound, idx.namespace)
	}
	if err != nil {
		return nil, err
	}
	if err := idx.checkFingerprint(manifest); err != nil {
		return nil, err
	}
	return newHandle(idx, manifest), nil
}

// Build embeds chunks and publishes them according to mode.
func (idx *Index) Build(ctx context.Context, chunks []core.Chunk, mode BuildMode) (*Handle, error) {
	if mode < ModeCreate || mode > ModeOverwrite {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBuildMode, mode)
	}
	for i := range chunks {
		if err := core.ValidateChunk(&chunks[i]); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	current, err := idx.repo.LoadManifest(ctx, idx.namespace)
	if errors.Is(err, storage.ErrNotFound) {
		current = nil
	} else if err != nil {
		return nil, err
	}

	if current != nil {
		switch mode {
		case ModeCreate:
			return nil, fmt.Errorf("%w: namespace %s", ErrIndexExists, idx.namespace)
		case ModeUpsert:
			if err := idx.checkFingerprint(current); err != nil {
				return nil, err
			}
		}
	}

	pending, err := idx.pending(ctx, chunks, current, mode)
	if err != nil {
		return nil, err
	}
	if current != nil && mode == ModeUpsert && len(pending) == 0 {
		idx.logger.Info("index already up to date", "namespace", idx.namespace, "count", current.Count)
		return newHandle(idx, current), nil
	}

	generation, err := idx.repo.NextGeneration(ctx, idx.namespace)
	if err != nil {
		return nil, err
	}

	fingerprint, err := idx.stage(ctx, generation, pending, current, mode)
	if err != nil {
		if discardErr := idx.repo.DiscardGeneration(context.WithoutCancel(ctx), idx.namespace, generation); discardErr != nil {
			idx.logger.Warn("failed to discard staged generation", "generation", generation, "err", discardErr)
		}
		return nil, err
	}

	manifest := &core.IndexManifest{
		Namespace:   idx.namespace,
		Fingerprint: fingerprint,
		Generations: []uint64{generation},
		Count:       len(pending),
	}
	var drop []uint64
	if current != nil {
		manifest.Version = current.Version
		switch mode {
		case ModeUpsert:
			manifest.Generations = append(slices.Clone(current.Generations), generation)
			manifest.Count += current.Count
		case ModeOverwrite:
			drop = current.Generations
		}
	}

	published, err := idx.repo.Publish(ctx, manifest, drop)
	if err != nil {
		if discardErr := idx.repo.DiscardGeneration(context.WithoutCancel(ctx), idx.namespace, generation); discardErr != nil {
			idx.logger.Warn("failed to discard staged generation", "generation", generation, "err", discardErr)
		}
		return nil, err
	}

	idx.logger.Info("published index",
		"namespace", idx.namespace,
		"mode", mode.String(),
		"added", len(pending),
		"count", published.Count,
		"fingerprint", published.Fingerprint.String())
	return newHandle(idx, published), nil
}

// pending drops chunks that repeat an ID earlier in the batch or, for
// upserts, that are already indexed.
func (idx *Index) pending(ctx context.Context, chunks []core.Chunk, current *core.IndexManifest, mode BuildMode) ([]core.Chunk, error) {
	seen := make(map[core.ID]bool, len(chunks))
	out := make([]core.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if seen[chunk.ID] {
			continue
		}
		seen[chunk.ID] = true
		if current != nil && mode == ModeUpsert {
			exists, err := idx.repo.ContainsChunk(ctx, current, chunk.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}
		}
		out = append(out, chunk)
	}
	if skipped := len(chunks) - len(out); skipped > 0 {
		idx.logger.Debug("skipping known chunks", "skipped", skipped)
	}
	return out, nil
}

// stage embeds chunks batch by batch into generation and returns the
// fingerprint with its dimension filled in.
func (idx *Index) stage(ctx context.Context, generation uint64, chunks []core.Chunk, current *core.IndexManifest, mode BuildMode) (core.Fingerprint, error) {
	fingerprint := idx.fingerprint
	if current != nil && mode == ModeUpsert && fingerprint.Dimension == 0 {
		fingerprint.Dimension = current.Fingerprint.Dimension
	}

	var tracker *ProgressTracker
	if idx.progress != nil {
		tracker = NewProgressTracker(idx.progress, "Embedding", "chunks", len(chunks), idx.batchSize)
		tracker.Start()
		defer tracker.Finish()
	}

	for start := 0; start < len(chunks); start += idx.batchSize {
		batch := chunks[start:min(start+idx.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		vectors, err := idx.embed(ctx, texts, idx.maxRetries, idx.retryDelay)
		if err != nil {
			return fingerprint, fmt.Errorf("failed to embed chunks %d-%d: %w", start, start+len(batch)-1, err)
		}

		entries := make([]*core.IndexEntry, len(batch))
		for i, vector := range vectors {
			if fingerprint.Dimension == 0 {
				fingerprint.Dimension = len(vector)
			}
			if len(vector) != fingerprint.Dimension {
				return fingerprint, fmt.Errorf("%w: embedding has dimension %d, index expects %d",
					ErrIndexMismatch, len(vector), fingerprint.Dimension)
			}
			entries[i] = &core.IndexEntry{Chunk: batch[i], Vector: NormalizeVector(vector)}
		}
		if err := idx.repo.StageEntries(ctx, idx.namespace, generation, entries...); err != nil {
			return fingerprint, err
		}
		if tracker != nil {
			tracker.Increment(len(batch))
		}
	}
	return fingerprint, nil
}

// Query embeds text and returns the k nearest chunks of the latest
// published manifest. k <= 0 selects DefaultTopK. A query that races a
// publish starts over against the new manifest, reusing its embedding.
func (idx *Index) Query(ctx context.Context, h *Handle, text string, k int) ([]core.ScoredChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	var vector []float32
	for restart := 0; ; restart++ {
		manifest, err := idx.refresh(ctx, h)
		if err != nil {
			return nil, err
		}
		if manifest.Count == 0 {
			return []core.ScoredChunk{}, nil
		}

		if vector == nil {
			vectors, err := idx.embed(ctx, []string{text}, idx.queryAttempts, idx.queryDelay)
			if err != nil {
				return nil, fmt.Errorf("failed to embed query: %w", err)
			}
			vector = NormalizeVector(vectors[0])
		}
		if dim := manifest.Fingerprint.Dimension; dim != 0 && len(vector) != dim {
			return nil, fmt.Errorf("%w: query embedding has dimension %d, index %s has %d",
				ErrIndexMismatch, len(vector), manifest.Namespace, dim)
		}

		results, err := idx.repo.Nearest(ctx, manifest, vector, k)
		if err != nil {
			return nil, err
		}

		latest, err := idx.refresh(ctx, h)
		if err != nil {
			return nil, err
		}
		if latest.Version != manifest.Version && restart < maxQueryRestarts {
			idx.logger.Debug("index republished during query", "namespace", manifest.Namespace,
				"from", manifest.Version, "to", latest.Version)
			continue
		}
		if results == nil {
			results = []core.ScoredChunk{}
		}
		return results, nil
	}
}

// refresh loads the published manifest into h when its version differs
// from the one h holds.
func (idx *Index) refresh(ctx context.Context, h *Handle) (*core.IndexManifest, error) {
	namespace := h.current().Namespace
	latest, err := idx.repo.LoadManifest(ctx, namespace)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: namespace %s", ErrIndexNotFound, namespace)
	}
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if latest.Version == h.manifest.Version {
		return h.manifest, nil
	}
	if err := idx.checkFingerprint(latest); err != nil {
		return nil, err
	}
	idx.logger.Debug("refreshed index handle", "namespace", namespace,
		"version", latest.Version, "count", latest.Count)
	h.manifest = latest
	return latest, nil
}

// Delete removes the namespace and all of its entries.
func (idx *Index) Delete(ctx context.Context) error {
	return idx.repo.DeleteNamespace(ctx, idx.namespace)
}

// embed calls the embedder with up to maxAttempts attempts, each bounded
// by the call timeout.
func (idx *Index) embed(ctx context.Context, texts []string, maxAttempts int, delay time.Duration) ([][]float32, error) {
	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		callCtx := ctx
		if idx.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, idx.callTimeout)
			defer cancel()
		}
		var err error
		vectors, err = idx.embedder.EmbedTexts(callCtx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return Permanent(fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts)))
		}
		return nil
	}, maxAttempts, delay)
	return vectors, err
}

func (idx *Index) checkFingerprint(manifest *core.IndexManifest) error {
	if !manifest.Fingerprint.Compatible(idx.fingerprint) {
		return fmt.Errorf("%w: namespace %s was built with %s, current embedder is %s",
			ErrIndexMismatch, manifest.Namespace, manifest.Fingerprint, idx.fingerprint)
	}
	return nil
}
