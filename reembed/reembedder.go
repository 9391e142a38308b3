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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/index"
	"github.com/poiesic/ragchat/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to embed per request
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding request
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of one index namespace.
type Reembedder struct {
	repo        storage.IndexRepository
	embedder    ai.Embedder
	fingerprint core.Fingerprint
	namespace   string
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
}

// NewReembedder creates a new reembedder. fingerprint identifies embedder
// and is recorded in the manifest once the run publishes.
// progress: where to write progress output (typically os.Stderr), may be nil
func NewReembedder(repo storage.IndexRepository, embedder ai.Embedder, fingerprint core.Fingerprint, namespace string, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if err := core.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		return nil, index.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo:        repo,
		embedder:    embedder,
		fingerprint: fingerprint,
		namespace:   namespace,
		config:      config,
		progress:    progress,
		logger:      slog.Default().With("component", "reembed", "namespace", namespace),
	}, nil
}

// Run re-embeds every chunk of the namespace and publishes the result.
// On failure the published index is left as it was.
func (r *Reembedder) Run(ctx context.Context) (*core.IndexManifest, error) {
	current, err := r.repo.LoadManifest(ctx, r.namespace)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: namespace %s", index.ErrIndexNotFound, r.namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	if current.Count == 0 {
		fmt.Fprintf(r.progress, "No chunks found in namespace %s (0 chunks)\n", r.namespace)
	} else {
		fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
			current.Count, r.config.BatchSize)
	}

	generation, err := r.repo.NextGeneration(ctx, r.namespace)
	if err != nil {
		return nil, err
	}

	published, err := r.run(ctx, current, generation)
	if err != nil {
		if discardErr := r.repo.DiscardGeneration(context.WithoutCancel(ctx), r.namespace, generation); discardErr != nil {
			r.logger.Warn("failed to discard staged generation", "generation", generation, "err", discardErr)
		}
		return nil, err
	}
	return published, nil
}

func (r *Reembedder) run(ctx context.Context, current *core.IndexManifest, generation uint64) (*core.IndexManifest, error) {
	tracker := index.NewProgressTracker(r.progress, "Reembedding", "chunks", current.Count, r.config.ReportInterval)
	tracker.Start()

	processor := NewBatchProcessor(r.repo, r.embedder, r.config.MaxRetries, r.config.RetryDelay)
	iterator := NewChunkIterator(r.repo, r.config.BatchSize)

	processed := 0
	err := iterator.ForEach(ctx, current, func(chunks []core.Chunk) error {
		if err := processor.Process(ctx, r.namespace, generation, chunks); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(chunks)
		tracker.Increment(len(chunks))
		return nil
	})
	if err != nil {
		return nil, err
	}
	tracker.Finish()

	fingerprint := r.fingerprint
	fingerprint.Dimension = processor.Dimension()
	if fingerprint.Dimension == 0 {
		fingerprint.Dimension = current.Fingerprint.Dimension
	}

	manifest := &core.IndexManifest{
		Namespace:   r.namespace,
		Fingerprint: fingerprint,
		Generations: []uint64{generation},
		Count:       processed,
		Version:     current.Version,
		CreatedAt:   current.CreatedAt,
	}
	published, err := r.repo.Publish(ctx, manifest, current.Generations)
	if err != nil {
		return nil, fmt.Errorf("failed to publish: %w", err)
	}

	elapsed := tracker.Elapsed()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(processed) / elapsed.Seconds()
	}
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Second), rate)
	r.logger.Info("reembedded namespace",
		"chunks", processed,
		"from", current.Fingerprint.String(),
		"to", published.Fingerprint.String())
	return published, nil
}
