package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// IndexRepository implements storage.IndexRepository for BadgerDB.
type IndexRepository struct {
	backend *Backend
	seq     *badger.Sequence
	genSeq  *badger.Sequence
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// NewIndexRepository creates a new IndexRepository.
func NewIndexRepository(backend *Backend) (storage.IndexRepository, error) {
	return newIndexRepository(backend)
}

func newIndexRepository(backend *Backend) (*IndexRepository, error) {
	seq, err := backend.GetSequence(entrySeq)
	if err != nil {
		return nil, err
	}
	genSeq, err := backend.GetSequence(generationSeq)
	if err != nil {
		seq.Release()
		return nil, err
	}
	return &IndexRepository{
		backend: backend,
		seq:     seq,
		genSeq:  genSeq,
	}, nil
}

// Close releases the sequences.
func (r *IndexRepository) Close() error {
	return errors.Join(r.seq.Release(), r.genSeq.Release())
}

// LoadManifest returns the published manifest of a namespace.
func (r *IndexRepository) LoadManifest(ctx context.Context, namespace string) (*core.IndexManifest, error) {
	if err := r.backend.checkOpen(); err != nil {
		return nil, err
	}
	var manifest *core.IndexManifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		manifest, err = readManifest(tx, namespace)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, storage.ErrNotFound
	}
	return manifest, nil
}

// NextGeneration reserves a new generation number.
func (r *IndexRepository) NextGeneration(ctx context.Context, namespace string) (uint64, error) {
	if err := r.backend.checkOpen(); err != nil {
		return 0, err
	}
	return nextNonZero(r.genSeq)
}

// StageEntries writes entries and their chunk markers into a generation.
// Large batches are split across transactions by the write batch.
func (r *IndexRepository) StageEntries(ctx context.Context, namespace string, generation uint64, entries ...*core.IndexEntry) error {
	if err := r.backend.checkOpen(); err != nil {
		return err
	}
	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		seq, err := nextNonZero(r.seq)
		if err != nil {
			return err
		}
		entry.Seq = seq

		value, err := storage.MarshalEntry(entry)
		if err != nil {
			return err
		}
		if err := wb.Set(makeEntryKey(namespace, generation, seq), value); err != nil {
			return err
		}
		if err := wb.Set(makeChunkIndexKey(namespace, generation, entry.Chunk.ID), nil); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// ContainsChunk checks the chunk markers of every published generation.
func (r *IndexRepository) ContainsChunk(ctx context.Context, manifest *core.IndexManifest, id core.ID) (bool, error) {
	if err := r.backend.checkOpen(); err != nil {
		return false, err
	}
	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, generation := range manifest.Generations {
			_, err := tx.Get(makeChunkIndexKey(manifest.Namespace, generation, id))
			if err == nil {
				found = true
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	}, false)
	return found, err
}

// Publish swaps the manifest and drops replaced generations.
func (r *IndexRepository) Publish(ctx context.Context, manifest *core.IndexManifest, drop []uint64) (*core.IndexManifest, error) {
	if err := r.backend.checkOpen(); err != nil {
		return nil, err
	}
	published := *manifest
	published.Generations = slices.Clone(manifest.Generations)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readManifest(tx, manifest.Namespace)
		if err != nil {
			return err
		}
		var version uint64
		if current != nil {
			version = current.Version
			published.CreatedAt = current.CreatedAt
		}
		if version != manifest.Version {
			return fmt.Errorf("%w: namespace %s is at version %d, expected %d",
				storage.ErrConflict, manifest.Namespace, version, manifest.Version)
		}

		now := time.Now().UTC()
		if published.CreatedAt.IsZero() {
			published.CreatedAt = now
		}
		published.UpdatedAt = now
		published.Version = version + 1

		value, err := storage.MarshalManifest(&published)
		if err != nil {
			return err
		}
		if err := tx.Set(makeManifestKey(manifest.Namespace), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrConflict) {
		return nil, fmt.Errorf("%w: %w", storage.ErrConflict, err)
	}
	if err != nil {
		return nil, err
	}

	for _, generation := range drop {
		if err := r.DiscardGeneration(ctx, manifest.Namespace, generation); err != nil {
			r.backend.logger.Warn("failed to drop generation",
				"namespace", manifest.Namespace, "generation", generation, "err", err)
		}
	}
	return &published, nil
}

// DiscardGeneration removes the entries and chunk markers of a generation.
func (r *IndexRepository) DiscardGeneration(ctx context.Context, namespace string, generation uint64) error {
	if err := r.backend.DeletePrefix(ctx, makeGenerationPrefix(entryPrefix, namespace, generation)); err != nil {
		return err
	}
	return r.backend.DeletePrefix(ctx, makeGenerationPrefix(chunkIndexPrefix, namespace, generation))
}

// Scan iterates the manifest's entries in insertion order.
func (r *IndexRepository) Scan(ctx context.Context, manifest *core.IndexManifest, fn func(entry *core.IndexEntry) error) error {
	return r.iterate(ctx, manifest, func(item *badger.Item) error {
		return item.Value(func(val []byte) error {
			entry, err := storage.UnmarshalEntry(val)
			if err != nil {
				return err
			}
			return fn(entry)
		})
	})
}

// Nearest ranks every entry by cosine distance to vector.
func (r *IndexRepository) Nearest(ctx context.Context, manifest *core.IndexManifest, vector []float32, k int) ([]core.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	ranker := storage.NewRanker(k)
	err := r.iterate(ctx, manifest, func(item *badger.Item) error {
		return item.Value(func(val []byte) error {
			seq, stored, rest, err := storage.UnmarshalEntryVector(val)
			if err != nil {
				return err
			}
			if len(stored) != len(vector) {
				return fmt.Errorf("%w: query dimension %d, stored dimension %d",
					storage.ErrInvalidQuery, len(vector), len(stored))
			}
			distance := storage.CosineDistance(vector, stored)
			if !ranker.Admits(distance, seq) {
				return nil
			}
			chunk, err := storage.UnmarshalChunk(rest)
			if err != nil {
				return err
			}
			ranker.Add(core.ScoredChunk{Chunk: *chunk, Distance: distance, Seq: seq})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ranker.Results(), nil
}

// iterate visits every entry item of the manifest's generations within one
// read transaction, so a query sees a consistent snapshot.
func (r *IndexRepository) iterate(ctx context.Context, manifest *core.IndexManifest, fn func(item *badger.Item) error) error {
	if err := r.backend.checkOpen(); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, generation := range manifest.Generations {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeGenerationPrefix(entryPrefix, manifest.Namespace, generation)
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				if err := ctx.Err(); err != nil {
					iter.Close()
					return err
				}
				if err := fn(iter.Item()); err != nil {
					iter.Close()
					return err
				}
			}
			iter.Close()
		}
		return nil
	}, false)
}

// DeleteNamespace removes the manifest first so readers stop seeing the
// namespace before its entries disappear.
func (r *IndexRepository) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := r.backend.checkOpen(); err != nil {
		return err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeManifestKey(namespace)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	if err := r.backend.DeletePrefix(ctx, makeNamespacePrefix(entryPrefix, namespace)); err != nil {
		return err
	}
	return r.backend.DeletePrefix(ctx, makeNamespacePrefix(chunkIndexPrefix, namespace))
}

// Namespaces lists published namespaces.
func (r *IndexRepository) Namespaces(ctx context.Context) ([]string, error) {
	if err := r.backend.checkOpen(); err != nil {
		return nil, err
	}
	var namespaces []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(manifestPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			namespaces = append(namespaces, strings.TrimPrefix(string(iter.Item().Key()), manifestPrefix))
		}
		return nil
	}, false)
	return namespaces, err
}

// readManifest returns nil when the namespace has no manifest.
func readManifest(tx *badger.Txn, namespace string) (*core.IndexManifest, error) {
	item, err := tx.Get(makeManifestKey(namespace))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var manifest *core.IndexManifest
	err = item.Value(func(val []byte) error {
		var err error
		manifest, err = storage.UnmarshalManifest(val)
		return err
	})
	return manifest, err
}

// nextNonZero draws from a sequence, skipping the zero BadgerDB can return
// on first use.
func nextNonZero(seq *badger.Sequence) (uint64, error) {
	next, err := seq.Next()
	if err != nil {
		return 0, err
	}
	if next == 0 {
		return seq.Next()
	}
	return next, nil
}
