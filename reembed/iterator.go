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

	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to embed per request
	DefaultBatchSize = 64
)

// ChunkIterator iterates over the chunks of a published index in batches.
type ChunkIterator struct {
	repo      storage.IndexRepository
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks per batch (defaults to DefaultBatchSize when <= 0)
func NewChunkIterator(repo storage.IndexRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with consecutive batches of the manifest's chunks in
// insertion order. Iteration stops on first error from fn.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, manifest *core.IndexManifest, fn func([]core.Chunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]core.Chunk, 0, it.batchSize)
	err := it.repo.Scan(ctx, manifest, func(entry *core.IndexEntry) error {
		batch = append(batch, entry.Chunk)
		if len(batch) < it.batchSize {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]core.Chunk, 0, it.batchSize)
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
